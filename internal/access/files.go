package access

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
)

func (r *registry) readGroupsFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		line = strings.ToUpper(line)

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			r.log.Warn("⚠️ Некорректная строка %d в файле групп", lineNum)
			continue
		}
		name := strings.TrimSpace(line[:colon])
		perms := line[colon+1:]

		info, ok := r.groups[name]
		if !ok {
			info = newGroupInfo(name)
		}
		if info.isReferenced {
			r.log.Debug("🔒 Строка %d пропущена: группа %s уже использована как ссылка", lineNum, name)
			continue
		}
		if err := r.parsePermissionString(perms, info); err != nil {
			r.log.Warn("⚠️ Строка %d в файле групп отклонена: %v", lineNum, err)
			continue
		}
		info.verified = true
		if !ok {
			r.groupOrder = append(r.groupOrder, name)
		}
		r.groups[name] = info
	}
	return scanner.Err()
}

// readUsersFile loads four-line records: name, groups, allows, denies.
func (r *registry) readUsersFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		return scanner.Text(), true
	}

	for {
		name, ok := next()
		if !ok {
			break
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		info := NewAccessInfo(name)

		groupLine, ok1 := next()
		allowLine, ok2 := next()
		denyLine, ok3 := next()
		if !ok1 || !ok2 || !ok3 {
			if err := scanner.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: запись %s оборвана", ErrMalformedUsersFile, info.name)
		}

		for _, g := range strings.Fields(groupLine) {
			info.AddGroup(g)
		}
		if err := r.parsePermissionString(allowLine, info); err != nil {
			r.log.Warn("⚠️ Права пользователя %s отклонены: %v", info.name, err)
		}
		dummy := NewAccessInfo(info.name)
		if err := r.parsePermissionString(denyLine, dummy); err != nil {
			r.log.Warn("⚠️ Запреты пользователя %s отклонены: %v", info.name, err)
		}
		info.denies = dummy.allows

		r.users[info.name] = info
	}
	return scanner.Err()
}

func (r *registry) writeUsersFile(path string) error {
	var buf bytes.Buffer
	for _, name := range sortedKeys(r.users) {
		info := r.users[name]
		allows := append(info.allows.Names(), info.customPerms...)
		fmt.Fprintln(&buf, name)
		fmt.Fprintln(&buf, strings.Join(info.groups, " "))
		fmt.Fprintln(&buf, strings.Join(allows, " "))
		fmt.Fprintln(&buf, strings.Join(info.denies.Names(), " "))
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func (r *registry) readPassFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		colon := unescapedIndex(line, ':')
		if colon < 0 {
			continue
		}
		name := strings.ToUpper(unescape(line[:colon]))
		if err := r.setUserPassword(name, line[colon+1:], true); err != nil {
			r.log.Warn("⚠️ Строка %d в файле паролей отклонена (%s): %v", lineNum, name, err)
		}
	}
	return scanner.Err()
}

func (r *registry) writePassFile(path string) error {
	var buf bytes.Buffer
	for _, name := range sortedKeys(r.passwords) {
		digest := r.passwords[name]
		if digest == noPassword {
			continue
		}
		fmt.Fprintf(&buf, "%s:%s\n", escape(name), digest)
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

func escape(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == '\\' || c == ':' {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func unescape(s string) string {
	var b strings.Builder
	escaped := false
	for _, c := range s {
		if !escaped && c == '\\' {
			escaped = true
			continue
		}
		escaped = false
		b.WriteRune(c)
	}
	return b.String()
}

// unescapedIndex returns the byte offset of the first c not preceded by a backslash escape.
func unescapedIndex(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
