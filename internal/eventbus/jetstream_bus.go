package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/mmo-replay/internal/logging"
)

// Subject всех событий записи и доступа. Типы содержат точки, отсюда ">".
const (
	subjectPrefix = "events."
	subjectAll    = subjectPrefix + ">"

	headerPriority = "Replay-Priority"
	headerSource   = "Replay-Source"
)

// JetStreamBus реализует EventBus поверх NATS JetStream.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string
	log    *logging.Logger

	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к NATS и создаёт или обновляет стрим событий.
// url: nats://127.0.0.1:4222, stream: "REPLAY_EVENTS".
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "REPLAY_EVENTS"
	}
	log := logging.GetComponentLogger("eventbus")

	nc, err := nats.Connect(url,
		nats.Name("mmo-replay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("⚠️ NATS отключён: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("🔌 NATS переподключён к %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Drain()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subjectAll},
		Retention: nats.LimitsPolicy,
		MaxAge:    retention,
		Storage:   nats.FileStorage,
	}
	if info, err := js.StreamInfo(stream); err == nil {
		if info.Config.MaxAge != retention {
			if _, err := js.UpdateStream(cfg); err != nil {
				nc.Drain()
				return nil, fmt.Errorf("update stream %s: %w", stream, err)
			}
		}
	} else if _, err := js.AddStream(cfg); err != nil {
		nc.Drain()
		return nil, fmt.Errorf("add stream %s: %w", stream, err)
	}

	log.Info("📡 JetStream: стрим %s, хранение %v", stream, retention)
	return &JetStreamBus{nc: nc, js: js, stream: stream, log: log}, nil
}

func subjectFor(eventType string) string {
	return subjectPrefix + eventType
}

// Publish публикует конверт в events.<type>. Приоритет и источник дублируются
// в заголовках, чтобы внешние потребители могли фильтровать без разбора JSON.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(subjectFor(ev.EventType))
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Header.Set(headerPriority, strconv.Itoa(ev.Priority))
	msg.Header.Set(headerSource, ev.Source)

	if _, err := jb.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("publish %s: %w", ev.EventType, err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe подписывается на каждый тип из фильтра отдельно (или на все
// события, если типы не заданы) и вызывает handler для подходящих конвертов.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	subjects := []string{subjectAll}
	if len(f.Types) > 0 {
		subjects = subjects[:0]
		for _, t := range f.Types {
			subjects = append(subjects, subjectFor(t))
		}
	}

	cb := func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			jb.log.Warn("⚠️ Битое событие в %s: %v", msg.Subject, err)
		} else if matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}

	sub := &jetSub{}
	for _, subj := range subjects {
		s, err := jb.js.Subscribe(subj, cb, nats.ManualAck(), nats.DeliverNew(), nats.AckWait(30*time.Second))
		if err != nil {
			sub.Unsubscribe()
			return nil, fmt.Errorf("subscribe %s: %w", subj, err)
		}
		sub.subs = append(sub.subs, s)
	}
	return sub, nil
}

// jetSub объединяет подписки на несколько subject.
type jetSub struct {
	subs []*nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	for _, s := range j.subs {
		_ = s.Unsubscribe()
	}
}

// Metrics возвращает текущие счётчики. Очередь доставки держит сам JetStream.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
	}
}

// Close дожидается отправки буферизованных сообщений и закрывает соединение.
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
