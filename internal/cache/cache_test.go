package cache

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/storage"
)

func TestMain(m *testing.M) {
	logging.GetLoggerManager().UseWriter(io.Discard, logging.ERROR)
	os.Exit(m.Run())
}

// hub рассылает инвалидации между узлами в одном процессе
type hub struct {
	mu    sync.Mutex
	nodes []*hubNode
}

type hubNode struct {
	hub     *hub
	handler InvalidationHandler
}

func (h *hub) node() *hubNode {
	n := &hubNode{hub: h}
	h.mu.Lock()
	h.nodes = append(h.nodes, n)
	h.mu.Unlock()
	return n
}

func (n *hubNode) PublishInvalidation(ctx context.Context, key string) error {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	for _, other := range n.hub.nodes {
		if other != n && other.handler != nil {
			_ = other.handler(key)
		}
	}
	return nil
}

func (n *hubNode) SubscribeInvalidations(ctx context.Context, h InvalidationHandler) error {
	n.hub.mu.Lock()
	n.handler = h
	n.hub.mu.Unlock()
	return nil
}

func (n *hubNode) Close() error { return nil }

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	now = now.Add(time.Second)
	_, err = c.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err), "ключ истёк")
	_, err = c.Get(ctx, "b")
	assert.NoError(t, err, "без TTL ключ живёт всегда")

	require.NoError(t, c.Delete(ctx, "b"))
	assert.Equal(t, 0, c.Len())
}

func TestCachedCatalog(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemoryCatalog()
	cc := NewCachedCatalog(inner, NewMemoryCache(), nil, time.Minute)

	rec := &storage.CaptureRecord{Path: "/rec/match.rec", Packets: 10}
	require.NoError(t, cc.Save(ctx, rec))

	t.Run("Промах, затем попадание", func(t *testing.T) {
		got, err := cc.FindByName(ctx, "match.rec")
		require.NoError(t, err)
		assert.Equal(t, int64(10), got.Packets)

		got, err = cc.FindByName(ctx, "match.rec")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)

		st := cc.Stats()
		assert.Equal(t, int64(1), st.Hits)
		assert.Equal(t, int64(1), st.Misses)
		assert.InDelta(t, 0.5, st.HitRatio(), 1e-9)
	})

	t.Run("Save сбрасывает ключ имени", func(t *testing.T) {
		newer := &storage.CaptureRecord{Path: "/rec/match.rec", Packets: 20, FinishedAt: time.Now().Add(time.Hour)}
		require.NoError(t, cc.Save(ctx, newer))
		got, err := cc.FindByName(ctx, "match.rec")
		require.NoError(t, err)
		assert.Equal(t, int64(20), got.Packets)
	})

	t.Run("Отсутствие не кешируется", func(t *testing.T) {
		_, err := cc.FindByName(ctx, "nope.rec")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		require.NoError(t, inner.Save(ctx, &storage.CaptureRecord{Path: "/rec/nope.rec"}))
		_, err = cc.FindByName(ctx, "nope.rec")
		assert.NoError(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		got, err := cc.Get(ctx, rec.ID)
		require.NoError(t, err)
		require.NoError(t, cc.Delete(ctx, got.ID))
		_, err = cc.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	assert.NoError(t, cc.Close())
}

func TestCachedCatalogInvalidationAcrossNodes(t *testing.T) {
	ctx := context.Background()
	shared := storage.NewMemoryCatalog()
	h := &hub{}

	a := NewCachedCatalog(shared, NewMemoryCache(), h.node(), time.Minute)
	b := NewCachedCatalog(shared, NewMemoryCache(), h.node(), time.Minute)
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))

	require.NoError(t, a.Save(ctx, &storage.CaptureRecord{Path: "/rec/x.rec", Packets: 1}))
	got, err := b.FindByName(ctx, "x.rec")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Packets)

	require.NoError(t, a.Save(ctx, &storage.CaptureRecord{Path: "/rec/x.rec", Packets: 2, FinishedAt: time.Now().Add(time.Hour)}))
	got, err = b.FindByName(ctx, "x.rec")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Packets, "узел b получил инвалидацию от a")
}
