package access

import (
	"strings"
	"sync"
	"time"
)

// MaxAttempts is the ceiling for failed identifies and admin password tries.
const MaxAttempts = 5

// Well-known groups.
const (
	GroupEveryone    = "EVERYONE"
	GroupVerified    = "VERIFIED"
	GroupLocalGlobal = "LOCAL.GLOBAL"
)

// Player property bits reported to clients.
const (
	IsRegistered uint8 = 1 << iota
	IsVerified
	IsAdmin
)

// AccessInfo is the access record of a session, a durable user or a group.
// Sessions are read by their connection while the Manager refreshes them from
// other goroutines, so every accessor takes the record lock.
type AccessInfo struct {
	mu sync.RWMutex
	accessState
}

type accessState struct {
	name             string
	verified         bool
	admin            bool
	loginTime        time.Time
	loginAttempts    int
	passwordAttempts int

	groups      []string
	allows      PermSet
	denies      PermSet
	customPerms []string

	isGroup      bool
	isReferenced bool
}

// NewAccessInfo creates a session record. Every session starts in EVERYONE.
func NewAccessInfo(callSign string) *AccessInfo {
	info := &AccessInfo{}
	info.loginTime = time.Now()
	info.groups = []string{GroupEveryone}
	info.name = strings.ToUpper(callSign)
	return info
}

func newGroupInfo(name string) *AccessInfo {
	info := &AccessInfo{}
	info.name = strings.ToUpper(name)
	info.isGroup = true
	info.groups = []string{GroupEveryone}
	return info
}

// SetName stores the call sign normalized to upper case.
func (a *AccessInfo) SetName(callSign string) {
	a.mu.Lock()
	a.name = strings.ToUpper(callSign)
	a.mu.Unlock()
}

func (a *AccessInfo) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

func (a *AccessInfo) IsVerified() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.verified
}

func (a *AccessInfo) IsAdmin() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.admin
}

func (a *AccessInfo) LoginTime() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loginTime
}

func (a *AccessInfo) LoginAttempts() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loginAttempts
}

func (a *AccessInfo) IsGroup() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isGroup
}

func (a *AccessInfo) IsReferenced() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.isReferenced
}

func (a *AccessInfo) Allows() PermSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.allows
}

func (a *AccessInfo) Denies() PermSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.denies
}

// Groups returns a copy of the group list in assignment order.
func (a *AccessInfo) Groups() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.groups...)
}

func (a *AccessInfo) CustomPerms() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.customPerms...)
}

// GotAccessFailure reports whether the identify ceiling has been reached.
func (a *AccessInfo) GotAccessFailure() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loginAttempts >= MaxAttempts
}

// SetLoginFail records a failed identify. The counter saturates at the ceiling.
func (a *AccessInfo) SetLoginFail() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loginAttempts < MaxAttempts {
		a.loginAttempts++
	}
}

// PasswordAttemptsMax reports whether admin password tries are exhausted and
// counts the current try when they are not.
func (a *AccessInfo) PasswordAttemptsMax() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	exhausted := a.passwordAttempts >= MaxAttempts
	if !exhausted {
		a.passwordAttempts++
	}
	return exhausted
}

func (a *AccessInfo) SetAdmin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.passwordAttempts = 0
	a.admin = true
}

func (a *AccessInfo) HasGroup(group string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hasGroupLocked(group)
}

func (a *AccessInfo) hasGroupLocked(group string) bool {
	if group == "" {
		return false
	}
	group = strings.ToUpper(group)
	for _, g := range a.groups {
		if g == group {
			return true
		}
	}
	return false
}

// AddGroup appends a group; false if already a member.
func (a *AccessInfo) AddGroup(group string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if group == "" || a.hasGroupLocked(group) {
		return false
	}
	a.groups = append(a.groups, strings.ToUpper(group))
	return true
}

// RemoveGroup drops a group; false if not a member.
func (a *AccessInfo) RemoveGroup(group string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	group = strings.ToUpper(group)
	for i, g := range a.groups {
		if g == group {
			a.groups = append(a.groups[:i:i], a.groups[i+1:]...)
			return true
		}
	}
	return false
}

// GrantPerm allows a right explicitly and lifts an explicit deny.
func (a *AccessInfo) GrantPerm(p Perm) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allows.Set(p)
	a.denies.Clear(p)
}

// RevokePerm denies a right explicitly and drops an explicit allow.
func (a *AccessInfo) RevokePerm(p Perm) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allows.Clear(p)
	a.denies.Set(p)
}

// copyRights replaces the rights and groups of a with those of src.
func (a *AccessInfo) copyRights(src *AccessInfo) {
	if a == src {
		return
	}
	src.mu.RLock()
	allows, denies := src.allows, src.denies
	groups := append([]string(nil), src.groups...)
	src.mu.RUnlock()

	a.mu.Lock()
	a.allows, a.denies, a.groups = allows, denies, groups
	a.mu.Unlock()
}

// replaceState overwrites every field of a with a copy of src.
func (a *AccessInfo) replaceState(src *AccessInfo) {
	c := src.clone()
	a.mu.Lock()
	a.accessState = c.accessState
	a.mu.Unlock()
}

func (a *AccessInfo) clone() *AccessInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c := &AccessInfo{accessState: a.accessState}
	c.groups = append([]string(nil), a.groups...)
	c.customPerms = append([]string(nil), a.customPerms...)
	return c
}
