package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/mmo-replay/internal/access"
)

func (d *Dispatcher) identify(c Caller, args []string) ([]string, error) {
	if len(args) == 0 {
		return lines("usage: /identify <password>"), errUsage
	}
	if c.Access.IsVerified() {
		return lines("You have already identified"), nil
	}
	err := d.opts.Access.Identify(c.Access, strings.Join(args, " "))
	switch {
	case err == nil:
		d.log.Info("🔑 %s прошёл identify", c.Access.Name())
		return lines("Password Accepted, welcome back."), nil
	case errors.Is(err, access.ErrAttemptLimitExceeded):
		return failed(err, "You have exceeded the number of allowed login attempts")
	case errors.Is(err, access.ErrUserNotFound):
		return failed(err, "This callsign is not registered")
	default:
		return failed(err, "Identify Failed, please make sure your password was correct")
	}
}

func (d *Dispatcher) register(c Caller, args []string) ([]string, error) {
	if len(args) == 0 {
		return lines("usage: /register <password>"), errUsage
	}
	err := d.opts.Access.Register(c.Access, strings.Join(args, " "))
	switch {
	case err == nil:
		return lines(fmt.Sprintf("Callsign registration confirmed for %s", c.Access.Name())), nil
	case errors.Is(err, access.ErrUserExists):
		return failed(err, "This callsign is already registered")
	default:
		return failed(err, "Registration failed")
	}
}

func (d *Dispatcher) setPass(c Caller, args []string) ([]string, error) {
	if len(args) == 0 {
		return lines("usage: /setpass <password>"), errUsage
	}
	if err := d.opts.Access.SetPassword(c.Access, strings.Join(args, " ")); err != nil {
		if errors.Is(err, access.ErrNotVerified) {
			return failed(err, "You must be identified to change your password")
		}
		return failed(err, "Password change failed")
	}
	return lines("Your password has been changed"), nil
}

// adminPassword /password: вход администратора по паролю сервера
func (d *Dispatcher) adminPassword(c Caller, args []string) ([]string, error) {
	if c.Access.IsAdmin() {
		return lines("You are already an administrator"), nil
	}
	if len(args) == 0 {
		return lines("usage: /password <admin password>"), errUsage
	}
	err := d.opts.Access.AdminLogin(c.Access, strings.Join(args, " "))
	switch {
	case err == nil:
		return lines("You are now an administrator!"), nil
	case errors.Is(err, access.ErrAttemptLimitExceeded):
		return failed(err, "Too many attempts")
	default:
		return failed(err, "Wrong Password!")
	}
}

func (d *Dispatcher) setGroup(c Caller, args []string) ([]string, error) {
	return d.changeGroup(c, args, "setgroup", true)
}

func (d *Dispatcher) removeGroup(c Caller, args []string) ([]string, error) {
	return d.changeGroup(c, args, "removegroup", false)
}

func (d *Dispatcher) changeGroup(c Caller, args []string, command string, add bool) ([]string, error) {
	if len(args) < 2 {
		return lines(fmt.Sprintf("usage: /%s <callsign> <group>", command)), errUsage
	}
	target, group := args[0], strings.ToUpper(args[1])
	if !d.opts.Access.CanSet(c.Access, group) {
		return lines(fmt.Sprintf("You do not have permission to change the %s group", group)), errDenied
	}

	var changed bool
	var err error
	if add {
		changed, err = d.opts.Access.AddUserGroup(target, group)
	} else {
		changed, err = d.opts.Access.RemoveUserGroup(target, group)
	}
	if err != nil {
		if errors.Is(err, access.ErrUserNotFound) {
			return failed(err, "Player %s is not registered", target)
		}
		return failed(err, "Could not update %s", target)
	}
	if !changed {
		if add {
			return lines(fmt.Sprintf("%s is already in group %s", target, group)), nil
		}
		return lines(fmt.Sprintf("%s is not in group %s", target, group)), nil
	}
	d.refreshSession(target)
	if add {
		return lines(fmt.Sprintf("Player %s added to group %s", target, group)), nil
	}
	return lines(fmt.Sprintf("Player %s removed from group %s", target, group)), nil
}

func (d *Dispatcher) grant(c Caller, args []string) ([]string, error) {
	return d.changePerm(c, args, "grant", true)
}

func (d *Dispatcher) revoke(c Caller, args []string) ([]string, error) {
	return d.changePerm(c, args, "revoke", false)
}

func (d *Dispatcher) changePerm(c Caller, args []string, command string, grant bool) ([]string, error) {
	if !d.hasPerm(c, access.SetPerms) && !d.hasPerm(c, access.SetAll) {
		return denied(command)
	}
	if len(args) < 2 {
		return lines(fmt.Sprintf("usage: /%s <callsign> <permission>", command)), errUsage
	}
	target, perm := args[0], args[1]

	var err error
	if grant {
		err = d.opts.Access.GrantUserPerm(target, perm)
	} else {
		err = d.opts.Access.RevokeUserPerm(target, perm)
	}
	switch {
	case err == nil:
	case errors.Is(err, access.ErrUserNotFound):
		return failed(err, "Player %s is not registered", target)
	case errors.Is(err, access.ErrUnknownPerm):
		return failed(err, "Unknown permission: %s", perm)
	default:
		return failed(err, "Could not update %s", target)
	}
	d.refreshSession(target)
	if grant {
		return lines(fmt.Sprintf("Granted %s to %s", strings.ToUpper(perm), target)), nil
	}
	return lines(fmt.Sprintf("Revoked %s from %s", strings.ToUpper(perm), target)), nil
}

// showGroup группы игрока; чужие группы требуют права showOthers
func (d *Dispatcher) showGroup(c Caller, args []string) ([]string, error) {
	name := c.Access.Name()
	if len(args) > 0 && !strings.EqualFold(args[0], name) {
		if !d.hasPerm(c, access.ShowOthers) {
			return denied("showgroup")
		}
		name = strings.ToUpper(args[0])
	}

	var groups []string
	if name == c.Access.Name() {
		groups = c.Access.Groups()
	} else {
		info, err := d.opts.Access.UserInfo(name)
		if err != nil {
			return failed(err, "Player %s is not registered", name)
		}
		groups = info.Groups()
	}
	return lines(fmt.Sprintf("Groups for %s: %s", name, strings.Join(groups, " "))), nil
}

// groupPerms права всех групп в порядке файла групп
func (d *Dispatcher) groupPerms(c Caller, args []string) ([]string, error) {
	names := d.opts.Access.GroupNames()
	out := make([]string, 0, len(names)+1)
	out = append(out, "Group Permissions")
	for _, name := range names {
		info, err := d.opts.Access.GroupPerms(name)
		if err != nil {
			continue
		}
		perms := info.Allows().Names()
		perms = append(perms, info.CustomPerms()...)
		out = append(out, fmt.Sprintf("%s:   %s", name, strings.Join(perms, " ")))
	}
	return out, nil
}

// reload перечитывает файлы доступа и права всех подключённых игроков
func (d *Dispatcher) reload(c Caller, args []string) ([]string, error) {
	if !d.hasPerm(c, access.SetAll) {
		return denied("reload")
	}
	var sessions []*access.AccessInfo
	if d.opts.Sessions != nil {
		sessions = d.opts.Sessions.Sessions()
	}
	if err := d.opts.Access.Reload(sessions...); err != nil {
		return failed(err, "Reload failed: %v", err)
	}
	return lines("Databases reloaded"), nil
}

// refreshSession обновляет права игрока, если он сейчас на сервере
func (d *Dispatcher) refreshSession(callSign string) {
	if d.opts.Sessions == nil {
		return
	}
	for _, info := range d.opts.Sessions.Sessions() {
		if strings.EqualFold(info.Name(), callSign) {
			d.opts.Access.ReloadInfo(info)
		}
	}
}
