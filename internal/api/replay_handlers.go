package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/mmo-replay/internal/observability"
	"github.com/annel0/mmo-replay/internal/storage"
)

// SkipRequest сдвиг воспроизведения в секундах, отрицательный назад
type SkipRequest struct {
	Seconds int `json:"seconds"`
}

// ReplayFile файл каталога воспроизведения вместе с записью каталога, если она есть
type ReplayFile struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Compressed bool      `json:"compressed"`
	Valid      bool      `json:"valid"`
	WorldHash  string    `json:"world_hash,omitempty"`
	Packets    int64     `json:"packets,omitempty"`
	SavedAt    time.Time `json:"saved_at,omitempty"`
}

const catalogTimeout = 2 * time.Second

func (rs *RestServer) handleReplayProgress(c *gin.Context) {
	ok(c, "Состояние воспроизведения", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayFiles(c *gin.Context) {
	files, err := rs.cfg.Recorder.Replay.ListFiles()
	if err != nil {
		rs.recorderError(c, "list files", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()

	out := make([]ReplayFile, 0, len(files))
	for _, f := range files {
		rf := ReplayFile{
			Name:       f.Name,
			Size:       f.Size,
			ModTime:    f.ModTime,
			Compressed: f.Compressed,
			Valid:      f.Valid,
			WorldHash:  f.WorldHash,
		}
		if rs.cfg.Catalog != nil {
			if rec, err := rs.cfg.Catalog.FindByName(ctx, f.Name); err == nil {
				rf.Packets = rec.Packets
				rf.SavedAt = rec.FinishedAt
			} else if !errors.Is(err, storage.ErrNotFound) {
				rs.log.Warn("⚠️ Каталог недоступен для %s: %v", f.Name, err)
			}
		}
		out = append(out, rf)
	}
	ok(c, "Файлы записей", gin.H{"files": out, "total": len(out)})
}

func (rs *RestServer) handleCatalog(c *gin.Context) {
	if rs.cfg.Catalog == nil {
		fail(c, http.StatusServiceUnavailable, "Каталог не настроен")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), catalogTimeout)
	defer cancel()
	recs, err := rs.cfg.Catalog.List(ctx)
	if err != nil {
		rs.log.Error("❌ Чтение каталога: %v", err)
		fail(c, http.StatusInternalServerError, "Ошибка чтения каталога")
		return
	}
	ok(c, "Каталог записей", gin.H{"records": recs, "total": len(recs)})
}

func (rs *RestServer) handleReplayEnable(c *gin.Context) {
	if err := rs.cfg.Recorder.Replay.Enable(); err != nil {
		rs.recorderError(c, "replay enable", err)
		return
	}
	ok(c, "Режим воспроизведения включён", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayDisable(c *gin.Context) {
	rs.cfg.Recorder.Replay.Disable()
	ok(c, "Режим воспроизведения выключен", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayReset(c *gin.Context) {
	if err := rs.cfg.Recorder.Replay.Reset(); err != nil {
		rs.recorderError(c, "replay reset", err)
		return
	}
	ok(c, "Файл выгружен", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayLoad(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	_, span := observability.StartSpan(c.Request.Context(), "replay.load")
	span.SetAttributes(attribute.String("replay.file", req.File))
	defer span.End()

	if err := rs.cfg.Recorder.Replay.LoadFile(req.File); err != nil {
		span.RecordError(err)
		rs.recorderError(c, "replay load", err)
		return
	}
	ok(c, "Файл загружен", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayPlay(c *gin.Context) {
	if err := rs.cfg.Recorder.Replay.Play(); err != nil {
		rs.recorderError(c, "replay play", err)
		return
	}
	ok(c, "Воспроизведение запущено", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplayStop(c *gin.Context) {
	if err := rs.cfg.Recorder.Replay.Stop(); err != nil {
		rs.recorderError(c, "replay stop", err)
		return
	}
	ok(c, "Воспроизведение остановлено", rs.cfg.Recorder.Replay.Progress())
}

func (rs *RestServer) handleReplaySkip(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := rs.cfg.Recorder.Replay.Skip(time.Duration(req.Seconds) * time.Second); err != nil {
		rs.recorderError(c, "replay skip", err)
		return
	}
	ok(c, "Смещение применено", rs.cfg.Recorder.Replay.Progress())
}
