// Package access implements the call sign registry, group based rights and
// password storage used to authorize players.
package access

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/annel0/mmo-replay/internal/logging"
)

// EventKind names an access change reported to a Notifier.
type EventKind string

const (
	EventIdentified     EventKind = "access.identified"
	EventIdentifyFailed EventKind = "access.identify_failed"
	EventRegistered     EventKind = "access.registered"
	EventPasswordSet    EventKind = "access.password_set"
	EventAdminLogin     EventKind = "access.admin_login"
	EventGroupsChanged  EventKind = "access.groups_changed"
	EventPermsChanged   EventKind = "access.perms_changed"
	EventReloaded       EventKind = "access.reloaded"
)

// Event describes an access change.
type Event struct {
	Kind     EventKind
	CallSign string
	Detail   string
	At       time.Time
}

// Notifier receives access events. It is called with the manager lock held
// and must not call back into the Manager.
type Notifier interface {
	OnAccessEvent(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) OnAccessEvent(ev Event) { f(ev) }

// Options configures a Manager. Empty file paths disable persistence for that database.
type Options struct {
	GroupsFile    string
	UsersFile     string
	PasswordFile  string
	AdminPassword string
	Notifier      Notifier
	Metrics       *Metrics
}

// AttemptWindow is how long failed identifies and admin password tries of a
// call sign are remembered across sessions.
const AttemptWindow = 10 * time.Minute

// attemptRecord holds failure counters of one call sign.
type attemptRecord struct {
	login    int
	password int
	last     time.Time
}

// Manager owns the access databases and evaluates rights for sessions.
// Lock order is the manager lock first, then the session lock.
type Manager struct {
	mu       sync.RWMutex
	opts     Options
	reg      *registry
	attempts map[string]attemptRecord
	now      func() time.Time
	log      *logging.Logger
	metrics  *Metrics
}

// NewManager creates a manager with empty databases. Call Load to read files.
func NewManager(opts Options) *Manager {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	log := logging.GetAccessLogger()
	return &Manager{
		opts:     opts,
		reg:      newRegistry(log),
		attempts: make(map[string]attemptRecord),
		now:      time.Now,
		log:      log,
		metrics:  opts.Metrics,
	}
}

// Load reads the groups, users and password files. Missing files are skipped.
func (m *Manager) Load() error {
	reg, err := m.loadRegistry()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.reg = reg
	m.metrics.observeDatabase(reg)
	m.mu.Unlock()
	m.log.Info("🔐 Загружено групп: %d, пользователей: %d", len(reg.groups), len(reg.users))
	return nil
}

// Reload rereads every database and refreshes the given sessions.
func (m *Manager) Reload(sessions ...*AccessInfo) error {
	reg, err := m.loadRegistry()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reg = reg
	for _, s := range sessions {
		m.reloadInfoLocked(s)
	}
	m.metrics.reloads.Inc()
	m.metrics.observeDatabase(reg)
	m.notify(Event{Kind: EventReloaded, Detail: fmt.Sprintf("%d users", len(reg.users))})
	return nil
}

func (m *Manager) loadRegistry() (*registry, error) {
	reg := newRegistry(m.log)
	steps := []struct {
		path string
		read func(string) error
		name string
	}{
		{m.opts.GroupsFile, reg.readGroupsFile, "групп"},
		{m.opts.UsersFile, reg.readUsersFile, "пользователей"},
		{m.opts.PasswordFile, reg.readPassFile, "паролей"},
	}
	for _, step := range steps {
		if step.path == "" {
			continue
		}
		if err := step.read(step.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				m.log.Info("📄 Файл %s %s не найден, пропускаем", step.name, step.path)
				continue
			}
			return nil, fmt.Errorf("read %s: %w", step.path, err)
		}
	}
	return reg, nil
}

// Save writes the users and password files.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	var errs []error
	if m.opts.UsersFile != "" {
		if err := m.reg.writeUsersFile(m.opts.UsersFile); err != nil {
			errs = append(errs, err)
		}
	}
	if m.opts.PasswordFile != "" {
		if err := m.reg.writePassFile(m.opts.PasswordFile); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.log.Error("❌ Не удалось сохранить базы доступа: %v", err)
		return err
	}
	return nil
}

func (m *Manager) notify(ev Event) {
	if m.opts.Notifier == nil {
		return
	}
	ev.At = m.now()
	m.opts.Notifier.OnAccessEvent(ev)
}

// NewSession creates the access record of a freshly joined player. Failures
// of earlier sessions with the same call sign inside AttemptWindow carry over.
func (m *Manager) NewSession(callSign string) *AccessInfo {
	info := NewAccessInfo(callSign)
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.attemptsLocked(info.name)
	info.loginAttempts = rec.login
	info.passwordAttempts = rec.password
	return info
}

// attemptsLocked returns the live failure counters of name.
func (m *Manager) attemptsLocked(name string) attemptRecord {
	rec, ok := m.attempts[name]
	if ok && m.now().Sub(rec.last) > AttemptWindow {
		delete(m.attempts, name)
		return attemptRecord{}
	}
	return rec
}

func (m *Manager) storeAttemptsLocked(name string, rec attemptRecord) {
	if rec.login == 0 && rec.password == 0 {
		delete(m.attempts, name)
		return
	}
	rec.last = m.now()
	m.attempts[name] = rec
}

// ClearAttempts forgets the failure counters of a call sign.
func (m *Manager) ClearAttempts(callSign string) {
	m.mu.Lock()
	delete(m.attempts, strings.ToUpper(callSign))
	m.mu.Unlock()
}

// UserExists reports whether the call sign is registered.
func (m *Manager) UserExists(callSign string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reg.users[strings.ToUpper(callSign)]
	return ok
}

// UserInfo returns a copy of a durable user record.
func (m *Manager) UserInfo(callSign string) (*AccessInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.reg.users[strings.ToUpper(callSign)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return info.clone(), nil
}

// UserNames lists registered call signs in sorted order.
func (m *Manager) UserNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.reg.users)
}

func (m *Manager) HasPerm(info *AccessInfo, p Perm) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.hasPerm(info, p)
}

func (m *Manager) HasCustomPerm(info *AccessInfo, name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.hasCustomPerm(info, name)
}

// ShowAsAdmin reports whether others should see info as an administrator.
func (m *Manager) ShowAsAdmin(info *AccessInfo) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.showAsAdmin(info)
}

// PlayerProperties returns the IsRegistered, IsVerified and IsAdmin bits.
func (m *Manager) PlayerProperties(info *AccessInfo) uint8 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var props uint8
	if _, ok := m.reg.users[info.Name()]; ok {
		props |= IsRegistered
	}
	if info.IsVerified() {
		props |= IsVerified
	}
	if m.reg.showAsAdmin(info) {
		props |= IsAdmin
	}
	return props
}

// CanSet reports whether info may change membership of group.
func (m *Manager) CanSet(info *AccessInfo, group string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reg.hasPerm(info, SetAll) {
		return true
	}
	return info.HasGroup(group) && m.reg.hasPerm(info, SetPerms)
}

func (m *Manager) IsRegistered(info *AccessInfo) bool {
	return m.UserExists(info.Name())
}

// IsIdentifyRequired reports whether the durable record demands /identify.
func (m *Manager) IsIdentifyRequired(info *AccessInfo) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identifyRequiredLocked(info.Name())
}

func (m *Manager) identifyRequiredLocked(name string) bool {
	user, ok := m.reg.users[name]
	return ok && m.reg.hasPerm(user, RequireIdentify)
}

// IsAllowedToEnter reports whether the session may join the game.
func (m *Manager) IsAllowedToEnter(info *AccessInfo) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info.IsVerified() {
		return true
	}
	name := info.Name()
	if _, ok := m.reg.users[name]; !ok {
		return true
	}
	return !m.identifyRequiredLocked(name)
}

// HasRealPassword reports whether the call sign has a usable password.
func (m *Manager) HasRealPassword(info *AccessInfo) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.checkPasswordExistence(info.Name())
}

func (m *Manager) VerifyPassword(info *AccessInfo, pwd string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reg.verifyUserPassword(info.Name(), pwd)
}

// SetPermissionRights marks the session verified and copies the durable rights into it.
func (m *Manager) SetPermissionRights(info *AccessInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPermissionRightsLocked(info)
}

func (m *Manager) setPermissionRightsLocked(info *AccessInfo) {
	name := info.Name()
	if user, ok := m.reg.users[name]; ok {
		info.copyRights(user)
	}
	info.mu.Lock()
	info.verified = true
	info.mu.Unlock()
	m.log.Debug("🔑 Identify %s", name)
}

// ReloadInfo refreshes a verified session from its durable record.
func (m *Manager) ReloadInfo(info *AccessInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadInfoLocked(info)
}

func (m *Manager) reloadInfoLocked(info *AccessInfo) {
	if !info.IsVerified() {
		return
	}
	user, ok := m.reg.users[info.Name()]
	if !ok {
		return
	}
	info.copyRights(user)
	info.mu.Lock()
	info.loginTime = user.loginTime
	info.mu.Unlock()
}

// Identify checks the password of a registered call sign and verifies the session.
func (m *Manager) Identify(info *AccessInfo, pwd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := info.Name()
	rec := m.attemptsLocked(name)
	if info.GotAccessFailure() || rec.login >= MaxAttempts {
		m.log.Warn("⛔ Слишком много попыток identify для %s", name)
		m.metrics.identifies.WithLabelValues(result(false)).Inc()
		return ErrAttemptLimitExceeded
	}
	if _, ok := m.reg.users[name]; !ok {
		return ErrUserNotFound
	}
	if !m.reg.verifyUserPassword(name, pwd) {
		info.SetLoginFail()
		rec.login = min(rec.login+1, MaxAttempts)
		m.storeAttemptsLocked(name, rec)
		m.metrics.identifies.WithLabelValues(result(false)).Inc()
		m.notify(Event{Kind: EventIdentifyFailed, CallSign: name})
		return ErrBadPassword
	}
	rec.login = 0
	m.storeAttemptsLocked(name, rec)
	m.setPermissionRightsLocked(info)
	m.metrics.identifies.WithLabelValues(result(true)).Inc()
	m.notify(Event{Kind: EventIdentified, CallSign: name})
	return nil
}

// Register stores a durable record for the session's call sign and verifies it.
func (m *Manager) Register(info *AccessInfo, pwd string) error {
	return m.storeInfo(info, &pwd)
}

// RegisterGlobal stores a passwordless record for a call sign verified elsewhere.
func (m *Manager) RegisterGlobal(info *AccessInfo) error {
	return m.storeInfo(info, nil)
}

func (m *Manager) storeInfo(info *AccessInfo, pwd *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := info.Name()
	if _, ok := m.reg.users[name]; ok {
		return ErrUserExists
	}
	record := NewAccessInfo(name)
	record.AddGroup(GroupVerified)
	pass := ""
	if pwd == nil {
		record.AddGroup(GroupLocalGlobal)
	} else {
		pass = *pwd
	}
	if err := m.reg.setUserPassword(name, pass, false); err != nil {
		return err
	}
	m.reg.users[name] = record
	m.setPermissionRightsLocked(info)

	m.metrics.registrations.Inc()
	m.metrics.observeDatabase(m.reg)
	m.log.Info("📝 Зарегистрирован %s", name)
	m.notify(Event{Kind: EventRegistered, CallSign: name})
	return m.saveLocked()
}

// SetPassword replaces the password of a verified session.
func (m *Manager) SetPassword(info *AccessInfo, pwd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !info.IsVerified() {
		return ErrNotVerified
	}
	name := info.Name()
	if err := m.reg.setUserPassword(name, pwd, false); err != nil {
		return err
	}
	m.notify(Event{Kind: EventPasswordSet, CallSign: name})
	return m.saveLocked()
}

// AdminLogin grants admin status when pwd matches the server admin password.
func (m *Manager) AdminLogin(info *AccessInfo, pwd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := info.Name()
	rec := m.attemptsLocked(name)
	if info.PasswordAttemptsMax() || rec.password >= MaxAttempts {
		m.log.Warn("⛔ Превышен лимит попыток пароля администратора: %s", name)
		m.metrics.adminLogins.WithLabelValues(result(false)).Inc()
		return ErrAttemptLimitExceeded
	}
	if m.opts.AdminPassword == "" || pwd != m.opts.AdminPassword {
		rec.password++
		m.storeAttemptsLocked(name, rec)
		m.metrics.adminLogins.WithLabelValues(result(false)).Inc()
		return ErrBadPassword
	}
	rec.password = 0
	m.storeAttemptsLocked(name, rec)
	info.SetAdmin()
	m.metrics.adminLogins.WithLabelValues(result(true)).Inc()
	m.log.Info("👑 %s вошёл как администратор", name)
	m.notify(Event{Kind: EventAdminLogin, CallSign: name})
	return nil
}

// GrantPerm and RevokePerm change rights of a live session only.
func (m *Manager) GrantPerm(info *AccessInfo, p Perm) {
	m.mu.Lock()
	info.GrantPerm(p)
	m.mu.Unlock()
}

func (m *Manager) RevokePerm(info *AccessInfo, p Perm) {
	m.mu.Lock()
	info.RevokePerm(p)
	m.mu.Unlock()
}

// AddUserGroup adds a durable user to a group; false if already a member.
func (m *Manager) AddUserGroup(callSign, group string) (bool, error) {
	return m.updateUser(callSign, EventGroupsChanged, "+"+group, func(u *AccessInfo) (bool, error) {
		return u.AddGroup(group), nil
	})
}

// RemoveUserGroup removes a durable user from a group; false if not a member.
func (m *Manager) RemoveUserGroup(callSign, group string) (bool, error) {
	return m.updateUser(callSign, EventGroupsChanged, "-"+group, func(u *AccessInfo) (bool, error) {
		return u.RemoveGroup(group), nil
	})
}

// GrantUserPerm allows a right explicitly on a durable user record.
func (m *Manager) GrantUserPerm(callSign, perm string) error {
	_, err := m.updateUser(callSign, EventPermsChanged, "+"+perm, func(u *AccessInfo) (bool, error) {
		p := PermFromName(perm)
		if p == LastPerm {
			return false, fmt.Errorf("%w: %s", ErrUnknownPerm, perm)
		}
		u.GrantPerm(p)
		return true, nil
	})
	return err
}

// RevokeUserPerm denies a right explicitly on a durable user record.
func (m *Manager) RevokeUserPerm(callSign, perm string) error {
	_, err := m.updateUser(callSign, EventPermsChanged, "-"+perm, func(u *AccessInfo) (bool, error) {
		p := PermFromName(perm)
		if p == LastPerm {
			return false, fmt.Errorf("%w: %s", ErrUnknownPerm, perm)
		}
		u.RevokePerm(p)
		return true, nil
	})
	return err
}

func (m *Manager) updateUser(callSign string, kind EventKind, detail string, change func(*AccessInfo) (bool, error)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := strings.ToUpper(callSign)
	user, ok := m.reg.users[name]
	if !ok {
		return false, ErrUserNotFound
	}
	changed, err := change(user)
	if err != nil || !changed {
		return changed, err
	}
	m.notify(Event{Kind: kind, CallSign: name, Detail: strings.ToUpper(detail)})
	return true, m.saveLocked()
}

// GroupNames lists groups in file order.
func (m *Manager) GroupNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.reg.groupOrder...)
}

// GroupPerms returns a copy of a group record.
func (m *Manager) GroupPerms(group string) (*AccessInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.reg.groups[strings.ToUpper(group)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	return info.clone(), nil
}
