package access

import (
	"strings"

	"github.com/annel0/mmo-replay/internal/auth"
	"github.com/annel0/mmo-replay/internal/logging"
)

// noPassword marks a registration without a usable password.
const noPassword = "*"

// registry holds the group, user and password databases.
type registry struct {
	groups     map[string]*AccessInfo
	groupOrder []string
	users      map[string]*AccessInfo
	passwords  map[string]string
	log        *logging.Logger
}

func newRegistry(log *logging.Logger) *registry {
	return &registry{
		groups:    make(map[string]*AccessInfo),
		users:     make(map[string]*AccessInfo),
		passwords: make(map[string]string),
		log:       log,
	}
}

// setUserPassword stores a digest for name. Stored digests read from disk are
// kept as is; anything else is hashed with bcrypt.
func (r *registry) setUserPassword(name, pass string, fromFile bool) error {
	if pass == "" || pass == noPassword {
		r.passwords[name] = noPassword
		return nil
	}
	if fromFile && auth.IsDigest(pass) {
		r.passwords[name] = pass
		return nil
	}
	hash, err := auth.HashPassword(pass)
	if err != nil {
		return err
	}
	r.passwords[name] = hash
	return nil
}

func (r *registry) checkPasswordExistence(name string) bool {
	digest, ok := r.passwords[name]
	return ok && digest != noPassword && digest != ""
}

func (r *registry) verifyUserPassword(name, pass string) bool {
	digest, ok := r.passwords[name]
	if !ok {
		return false
	}
	return auth.VerifyDigest(digest, pass)
}

// hasPerm resolves a right for info against the group database.
func (r *registry) hasPerm(info *AccessInfo, p Perm) bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	if info.admin && p != HideAdmin {
		return true
	}
	if info.denies.Has(p) {
		return false
	}
	if info.allows.Has(p) {
		return true
	}

	allowed := false
	for _, name := range info.groups {
		group, ok := r.groups[name]
		if !ok {
			continue
		}
		if group.denies.Has(p) {
			return false
		}
		if group.allows.Has(p) {
			allowed = true
		}
	}
	return allowed
}

// hasCustomPerm checks custom rights, which only groups carry.
func (r *registry) hasCustomPerm(info *AccessInfo, name string) bool {
	info.mu.RLock()
	defer info.mu.RUnlock()
	if info.admin {
		return true
	}
	want := strings.ToUpper(name)
	for _, g := range info.groups {
		group, ok := r.groups[g]
		if !ok {
			continue
		}
		for _, custom := range group.customPerms {
			if strings.ToUpper(custom) == want {
				return true
			}
		}
	}
	return false
}

func (r *registry) showAsAdmin(info *AccessInfo) bool {
	if r.hasPerm(info, HideAdmin) {
		return false
	}
	return info.IsAdmin() || r.hasPerm(info, Ban) || r.hasPerm(info, ShortBan)
}
