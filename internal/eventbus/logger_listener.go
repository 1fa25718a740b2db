package eventbus

import (
	"context"
	"strings"

	"github.com/annel0/mmo-replay/internal/logging"
)

// StartLoggingListener пишет все события шины в лог компонента "eventbus".
// Сохранённые записи и неудачные входы видны на INFO/WARN, остальное на DEBUG.
func StartLoggingListener(bus EventBus) (Subscription, error) {
	log := logging.GetComponentLogger("eventbus")
	sub, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		switch {
		case strings.HasSuffix(ev.EventType, "_failed"):
			log.Warn("🚫 %s src=%s %s", ev.EventType, ev.Source, ev.Payload)
		case ev.Priority >= 8:
			log.Info("📼 %s src=%s %s", ev.EventType, ev.Source, ev.Payload)
		default:
			log.Debug("[EventBus] %s %s src=%s prio=%d payload=%s", ev.ID, ev.EventType, ev.Source, ev.Priority, ev.Payload)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Info("🪵 LoggingListener: подписка на все события активирована")
	return sub, nil
}
