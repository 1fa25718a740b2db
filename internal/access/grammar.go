package access

import (
	"fmt"
	"strings"
	"unicode"
)

// parsePermissionString applies a whitespace separated permission line to
// info. Group lines accept the *, !, - and + operators; user lines accept
// only + or bare names. A rejected line leaves info untouched.
func (r *registry) parsePermissionString(line string, info *AccessInfo) error {
	work := info.clone()
	referenced := make([]*AccessInfo, 0)

	for _, word := range strings.Fields(strings.ToUpper(line)) {
		first := rune(word[0])
		if !unicode.IsLetter(first) {
			op := word[0]
			word = word[1:]

			if !work.isGroup && op != '+' {
				r.log.Warn("⛔ Оператор %q запрещён в правах пользователя %s", string(op), info.name)
				return fmt.Errorf("%w: %q", ErrOperatorNotAllowed, string(op))
			}

			switch op {
			case '*':
				group, ok := r.groups[word]
				if !ok {
					r.log.Debug("❓ Ссылка на неизвестную группу %s", word)
					continue
				}
				work.allows |= group.allows
				work.denies |= group.denies
				referenced = append(referenced, group)
				continue
			case '!':
				if p := PermFromName(word); p != LastPerm {
					work.denies.Set(p)
				} else {
					r.log.Debug("❓ Неизвестное право для запрета: %s", word)
				}
				continue
			case '-':
				if word == "ALL" {
					work.allows = 0
				} else if p := PermFromName(word); p != LastPerm {
					work.allows.Clear(p)
				} else {
					r.log.Debug("❓ Неизвестное право для снятия: %s", word)
				}
				continue
			case '+':
			default:
				r.log.Debug("❓ Неизвестный оператор %q в строке прав", string(op))
			}
		}

		if word == "" {
			continue
		}
		if p := PermFromName(word); p != LastPerm {
			work.allows.Set(p)
		} else if word == "ALL" {
			work.allows = AllPerms
		} else {
			work.customPerms = append(work.customPerms, word)
		}
	}

	info.replaceState(work)
	for _, group := range referenced {
		group.isReferenced = true
	}
	return nil
}
