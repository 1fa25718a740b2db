package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mmo-replay/internal/config"
)

func catalogBackends(t *testing.T) map[string]CatalogRepo {
	t.Helper()
	badgerCatalog, err := NewBadgerCatalog(t.TempDir())
	require.NoError(t, err, "не удалось открыть BadgerDB")
	return map[string]CatalogRepo{
		"memory": NewMemoryCatalog(),
		"badger": badgerCatalog,
	}
}

func TestCatalogBackends(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for name, repo := range catalogBackends(t) {
		repo := repo
		t.Run(name, func(t *testing.T) {
			defer repo.Close()

			first := &CaptureRecord{
				Path:       "/tmp/rec/match.rec",
				Mode:       "buffer",
				WorldHash:  "abc",
				Bytes:      4096,
				Packets:    12,
				StartedAt:  base,
				FinishedAt: base.Add(time.Minute),
			}
			require.NoError(t, repo.Save(ctx, first))
			assert.NotEmpty(t, first.ID, "ID должен назначаться при сохранении")
			assert.Equal(t, "match.rec", first.Name)

			second := &CaptureRecord{
				Path:       "/tmp/rec/match.rec",
				Mode:       "file",
				Bytes:      8192,
				FinishedAt: base.Add(2 * time.Minute),
			}
			third := &CaptureRecord{
				Path:       "/tmp/rec/other.rec.zst",
				FinishedAt: base.Add(30 * time.Second),
			}
			require.NoError(t, repo.Save(ctx, second))
			require.NoError(t, repo.Save(ctx, third))

			got, err := repo.Get(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, first.WorldHash, got.WorldHash)
			assert.Equal(t, first.Packets, got.Packets)
			assert.True(t, first.StartedAt.Equal(got.StartedAt))

			latest, err := repo.FindByName(ctx, "match.rec")
			require.NoError(t, err)
			assert.Equal(t, second.ID, latest.ID, "по имени возвращается самая свежая запись")

			list, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, []string{second.ID, first.ID, third.ID},
				[]string{list[0].ID, list[1].ID, list[2].ID}, "новые записи первыми")

			require.NoError(t, repo.Delete(ctx, second.ID))
			_, err = repo.Get(ctx, second.ID)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, repo.Delete(ctx, second.ID), ErrNotFound)

			latest, err = repo.FindByName(ctx, "match.rec")
			require.NoError(t, err)
			assert.Equal(t, first.ID, latest.ID)

			_, err = repo.FindByName(ctx, "missing.rec")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCatalogRejectsEmptyPath(t *testing.T) {
	repo := NewMemoryCatalog()
	assert.Error(t, repo.Save(context.Background(), &CaptureRecord{}))
	assert.Error(t, repo.Save(context.Background(), nil))
}

func TestBadgerCatalogPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewBadgerCatalog(dir)
	require.NoError(t, err)
	rec := &CaptureRecord{Path: "a.rec", Packets: 3}
	require.NoError(t, repo.Save(ctx, rec))
	require.NoError(t, repo.Close())
	require.NoError(t, repo.Close(), "повторное закрытие безопасно")

	_, err = repo.Get(ctx, rec.ID)
	assert.Error(t, err, "закрытое хранилище не отвечает")

	reopened, err := NewBadgerCatalog(dir)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Packets)
}

func TestNewCatalog(t *testing.T) {
	repo, err := NewCatalog(config.CatalogConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCatalog{}, repo)

	repo, err = NewCatalog(config.CatalogConfig{Backend: "badger", BadgerPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerCatalog{}, repo)
	require.NoError(t, repo.Close())

	_, err = NewCatalog(config.CatalogConfig{Backend: "floppy"})
	assert.Error(t, err)
}
