package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/recorder"
)

// RecorderPayload нагрузка событий capture.* и replay.*
type RecorderPayload struct {
	Mode      string    `json:"mode,omitempty"`
	File      string    `json:"file,omitempty"`
	WorldHash string    `json:"world_hash,omitempty"`
	Bytes     int       `json:"bytes"`
	Packets   int       `json:"packets"`
	StartedAt time.Time `json:"started_at,omitempty"`
	At        time.Time `json:"at"`
}

// AccessPayload нагрузка событий access.*
type AccessPayload struct {
	CallSign string    `json:"callsign,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Bridge переводит события рекордера и менеджера доступа в конверты шины.
// Наблюдатели вызываются под чужими блокировками, поэтому Bridge только
// ставит конверт в очередь, а публикует отдельная горутина.
type Bridge struct {
	bus    EventBus
	source string
	log    *logging.Logger

	mu     sync.Mutex
	closed bool
	queue  chan *Envelope
	done   chan struct{}
}

// NewBridge запускает публикацию из очереди ёмкостью capacity.
func NewBridge(bus EventBus, source string, capacity int) *Bridge {
	if capacity <= 0 {
		capacity = 256
	}
	b := &Bridge{
		bus:    bus,
		source: source,
		log:    logging.GetComponentLogger("eventbus"),
		queue:  make(chan *Envelope, capacity),
		done:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bridge) loop() {
	defer close(b.done)
	for ev := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := b.bus.Publish(ctx, ev); err != nil {
			b.log.Warn("⚠️ Не удалось опубликовать %s: %v", ev.EventType, err)
		}
		cancel()
	}
}

func (b *Bridge) enqueue(eventType string, priority int, payload any) {
	ev, err := NewEnvelope(b.source, eventType, payload)
	if err != nil {
		b.log.Error("❌ Ошибка сериализации %s: %v", eventType, err)
		return
	}
	ev.Priority = priority

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.queue <- ev:
	default:
		b.log.Warn("⚠️ Очередь событий переполнена, %s отброшено", eventType)
	}
}

// OnRecorderEvent реализует recorder.Observer.
func (b *Bridge) OnRecorderEvent(ev recorder.Event) {
	priority := 5
	if ev.Kind == recorder.EventCaptureSaved {
		// от этого события зависит каталог записей
		priority = 8
	}
	b.enqueue(string(ev.Kind), priority, RecorderPayload{
		Mode:      ev.Mode.String(),
		File:      ev.File,
		WorldHash: ev.WorldHash,
		Bytes:     ev.Bytes,
		Packets:   ev.Packets,
		StartedAt: ev.StartedAt,
		At:        ev.At,
	})
}

// OnAccessEvent реализует access.Notifier.
func (b *Bridge) OnAccessEvent(ev access.Event) {
	b.enqueue(string(ev.Kind), 3, AccessPayload{
		CallSign: ev.CallSign,
		Detail:   ev.Detail,
		At:       ev.At,
	})
}

// Close публикует оставшиеся события и останавливает мост.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()
	<-b.done
}
