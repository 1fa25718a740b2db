package eventbus

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/recorder"
)

func TestMain(m *testing.M) {
	logging.GetLoggerManager().UseWriter(io.Discard, logging.ERROR)
	os.Exit(m.Run())
}

type collector struct {
	mu  sync.Mutex
	evs []*Envelope
}

func (c *collector) handle(ctx context.Context, ev *Envelope) {
	c.mu.Lock()
	c.evs = append(c.evs, ev)
	c.mu.Unlock()
}

func (c *collector) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.evs))
	for i, ev := range c.evs {
		out[i] = ev.EventType
	}
	return out
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.evs)
}

func TestMemoryBusFilters(t *testing.T) {
	bus := NewMemoryBus(16)
	ctx := context.Background()

	all := &collector{}
	saved := &collector{}
	_, err := bus.Subscribe(ctx, Filter{}, all.handle)
	require.NoError(t, err)
	sub, err := bus.Subscribe(ctx, Filter{Types: []string{"capture.saved"}}, saved.handle)
	require.NoError(t, err)

	for _, typ := range []string{"capture.started", "capture.saved", "replay.loaded"} {
		ev, err := NewEnvelope("test", typ, map[string]int{"n": 1})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(ctx, ev))
	}

	require.NoError(t, bus.Close())
	assert.Equal(t, 3, all.len(), "подписчик без фильтра получает все события")
	assert.Equal(t, []string{"capture.saved"}, saved.types())

	stats := bus.Metrics()
	assert.Equal(t, uint64(3), stats.Published)
	assert.Equal(t, uint64(4), stats.Consumed)

	sub.Unsubscribe()
	ev, _ := NewEnvelope("test", "late", nil)
	assert.ErrorIs(t, bus.Publish(ctx, ev), ErrClosed)
	assert.NoError(t, bus.Close(), "повторное закрытие безопасно")
}

func TestMemoryBusDropsLowPriority(t *testing.T) {
	// Диспетчер не запущен, поэтому буфер не освобождается
	bus := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, 1),
		capacity:    1,
		done:        make(chan struct{}),
	}

	for i := 0; i < 10; i++ {
		ev, _ := NewEnvelope("test", "noise", i)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	stats := bus.Metrics()
	assert.Equal(t, uint64(1), stats.Published)
	assert.Equal(t, uint64(9), stats.Dropped, "низкий приоритет отбрасывается при полном буфере")
	assert.Equal(t, 1, stats.InFlight)

	urgent, _ := NewEnvelope("test", "urgent", nil)
	urgent.Priority = 9
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Publish(ctx, urgent), context.DeadlineExceeded, "высокий приоритет ждёт места в буфере")
}

func TestEnvelopeDecode(t *testing.T) {
	ev, err := NewEnvelope("src", "capture.saved", RecorderPayload{File: "a.rec", Packets: 7})
	require.NoError(t, err)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 1, ev.Version)

	var p RecorderPayload
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, "a.rec", p.File)
	assert.Equal(t, 7, p.Packets)
}

func TestBridgePublishesRecorderAndAccessEvents(t *testing.T) {
	bus := NewMemoryBus(32)
	got := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, got.handle)
	require.NoError(t, err)

	bridge := NewBridge(bus, "replay-test", 8)
	var observer recorder.Observer = bridge
	var notifier access.Notifier = bridge

	observer.OnRecorderEvent(recorder.Event{Kind: recorder.EventCaptureSaved, Mode: recorder.StraightToFile, File: "x.rec", Packets: 4})
	notifier.OnAccessEvent(access.Event{Kind: access.EventIdentified, CallSign: "ALPHA"})

	bridge.Close()
	bridge.Close()
	observer.OnRecorderEvent(recorder.Event{Kind: recorder.EventReplayStarted})
	require.NoError(t, bus.Close())

	assert.ElementsMatch(t, []string{"capture.saved", "access.identified"}, got.types())
	for _, ev := range got.evs {
		assert.Equal(t, "replay-test", ev.Source)
		if ev.EventType == "capture.saved" {
			assert.Equal(t, 8, ev.Priority)
			var p RecorderPayload
			require.NoError(t, ev.Decode(&p))
			assert.Equal(t, "file", p.Mode)
			assert.Equal(t, "x.rec", p.File)
		}
	}
}

func TestMetricsExporterSync(t *testing.T) {
	bus := NewMemoryBus(4)
	reg := prometheus.NewRegistry()
	exporter := NewMetricsExporter(bus, reg)
	exporter.interval = 10 * time.Millisecond
	exporter.Start()

	ev, _ := NewEnvelope("t", "x", nil)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(exporter.published) == 1
	}, time.Second, 10*time.Millisecond)

	exporter.Stop()
	require.NoError(t, bus.Close())
}
