// Package commands разбирает серверные команды чата ("/capture", "/replay",
// "/identify" и т.д.) и выполняет их от имени игрока. Ответы возвращаются
// строками, которые сетевой слой отправляет игроку как MsgMessage.
package commands

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/recorder"
	"github.com/annel0/mmo-replay/internal/storage"
)

// Caller игрок, отправивший команду
type Caller struct {
	Index    int
	CallSign string
	Access   *access.AccessInfo
}

// SessionSource живые сессии игроков; нужен для /reload и обновления прав
// после правки записей пользователей
type SessionSource interface {
	Sessions() []*access.AccessInfo
}

// Options зависимости диспетчера. Catalog и Sessions необязательны.
type Options struct {
	Recorder *recorder.Recorder
	Access   *access.Manager
	Catalog  storage.CatalogRepo
	Sessions SessionSource
	Metrics  *Metrics
}

var (
	errDenied = errors.New("permission denied")
	errUsage  = errors.New("bad usage")
	errFailed = errors.New("command failed")
)

type handlerFunc func(c Caller, args []string) ([]string, error)

// Dispatcher таблица команд
type Dispatcher struct {
	opts     Options
	log      *logging.Logger
	metrics  *Metrics
	handlers map[string]handlerFunc
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	d := &Dispatcher{
		opts:    opts,
		log:     logging.GetComponentLogger("commands"),
		metrics: opts.Metrics,
	}
	d.handlers = map[string]handlerFunc{
		"capture":     d.capture,
		"replay":      d.replay,
		"identify":    d.identify,
		"register":    d.register,
		"setpass":     d.setPass,
		"password":    d.adminPassword,
		"setgroup":    d.setGroup,
		"removegroup": d.removeGroup,
		"grant":       d.grant,
		"revoke":      d.revoke,
		"showgroup":   d.showGroup,
		"groupperms":  d.groupPerms,
		"reload":      d.reload,
	}
	return d
}

// IsCommand сообщение чата является серверной командой
func IsCommand(text string) bool {
	return len(text) > 1 && text[0] == '/'
}

// Commands имена зарегистрированных команд
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch выполняет строку "/команда аргументы" и возвращает ответ игроку
func (d *Dispatcher) Dispatch(c Caller, line string) []string {
	if !IsCommand(line) {
		return nil
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	h, ok := d.handlers[name]
	if !ok {
		d.metrics.observe("unknown", "unknown")
		return []string{fmt.Sprintf("Unknown command [%s]", fields[0])}
	}

	if c.Access == nil {
		return []string{"You must join the game first"}
	}

	out, err := h(c, fields[1:])
	switch {
	case err == nil:
		d.metrics.observe(name, "ok")
	case errors.Is(err, errDenied):
		d.metrics.observe(name, "denied")
		d.log.Info("🚫 %s: нет прав на /%s", c.CallSign, name)
	case errors.Is(err, errUsage):
		d.metrics.observe(name, "usage")
	default:
		d.metrics.observe(name, "failed")
		d.log.Debug("/%s от %s: %v", name, c.CallSign, err)
	}
	return out
}

func (d *Dispatcher) hasPerm(c Caller, p access.Perm) bool {
	return c.Access != nil && d.opts.Access.HasPerm(c.Access, p)
}

func denied(command string) ([]string, error) {
	return []string{fmt.Sprintf("You do not have permission to run the /%s command", command)}, errDenied
}

// failed ответ с ошибкой, err сохраняется для журнала
func failed(err error, format string, args ...interface{}) ([]string, error) {
	return []string{fmt.Sprintf(format, args...)}, fmt.Errorf("%w: %v", errFailed, err)
}

func lines(s ...string) []string { return s }
