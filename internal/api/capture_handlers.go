package api

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/mmo-replay/internal/observability"
	"github.com/annel0/mmo-replay/internal/recorder"
)

// FileRequest тело запросов с именем файла
type FileRequest struct {
	File string `json:"file" binding:"required"`
}

// CaptureSettingsRequest новые лимиты записи; нулевые поля не меняются
type CaptureSettingsRequest struct {
	MaxMBytes   int `json:"max_mbytes"`
	RateSeconds int `json:"rate_seconds"`
}

// CaptureStatsResponse состояние записи
type CaptureStatsResponse struct {
	Capturing   bool   `json:"capturing"`
	Mode        string `json:"mode"`
	File        string `json:"file,omitempty"`
	Bytes       int    `json:"bytes"`
	Packets     int    `json:"packets"`
	SpanSeconds int64  `json:"span_seconds"`
	MaxBytes    int    `json:"max_bytes"`
	RateSeconds int64  `json:"rate_seconds"`
}

func captureStats(st recorder.Stats) CaptureStatsResponse {
	resp := CaptureStatsResponse{
		Capturing:   st.Capturing,
		Mode:        st.Mode.String(),
		File:        st.FileName,
		Bytes:       st.BufferBytes,
		Packets:     st.BufferPackets,
		SpanSeconds: int64(st.Span / time.Second),
		MaxBytes:    st.MaxBytes,
		RateSeconds: int64(st.UpdateInterval / time.Second),
	}
	if st.Mode == recorder.StraightToFile {
		resp.Bytes = st.FileBytes
		resp.Packets = st.FilePackets
	}
	return resp
}

// statusFor переводит ошибки рекордера в HTTP-статусы
func statusFor(err error) int {
	switch {
	case errors.Is(err, recorder.ErrBadFileName):
		return http.StatusBadRequest
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, recorder.ErrModeConflict),
		errors.Is(err, recorder.ErrNotActive),
		errors.Is(err, recorder.ErrAlreadyLoaded):
		return http.StatusConflict
	case errors.Is(err, recorder.ErrNoData), errors.Is(err, recorder.ErrMalformedFile):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (rs *RestServer) recorderError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		rs.log.Error("❌ %s: %v", op, err)
	}
	fail(c, status, op+": "+err.Error())
}

func (rs *RestServer) handleCaptureStats(c *gin.Context) {
	ok(c, "Состояние записи", captureStats(rs.cfg.Recorder.Capture.Stats()))
}

func (rs *RestServer) handleCaptureStart(c *gin.Context) {
	_, span := observability.StartSpan(c.Request.Context(), "capture.start")
	defer span.End()

	if err := rs.cfg.Recorder.Capture.Start(); err != nil {
		span.RecordError(err)
		rs.recorderError(c, "capture start", err)
		return
	}
	ok(c, "Запись начата", captureStats(rs.cfg.Recorder.Capture.Stats()))
}

func (rs *RestServer) handleCaptureStop(c *gin.Context) {
	if err := rs.cfg.Recorder.Capture.Stop(); err != nil {
		rs.recorderError(c, "capture stop", err)
		return
	}
	ok(c, "Запись остановлена", captureStats(rs.cfg.Recorder.Capture.Stats()))
}

func (rs *RestServer) handleCaptureSave(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	_, span := observability.StartSpan(c.Request.Context(), "capture.save")
	span.SetAttributes(attribute.String("capture.file", req.File))
	defer span.End()

	summary, err := rs.cfg.Recorder.Capture.SaveBuffer(req.File)
	if err != nil {
		span.RecordError(err)
		rs.recorderError(c, "capture save", err)
		return
	}
	span.SetAttributes(attribute.Int("capture.packets", summary.Packets))
	ok(c, "Буфер сохранён", gin.H{
		"path":    summary.Path,
		"bytes":   summary.Bytes,
		"packets": summary.Packets,
	})
}

func (rs *RestServer) handleCaptureFile(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if err := rs.cfg.Recorder.Capture.SaveFile(req.File); err != nil {
		rs.recorderError(c, "capture file", err)
		return
	}
	ok(c, "Запись идёт в файл", captureStats(rs.cfg.Recorder.Capture.Stats()))
}

func (rs *RestServer) handleCaptureSettings(c *gin.Context) {
	var req CaptureSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MaxMBytes < 0 || req.RateSeconds < 0 {
		fail(c, http.StatusBadRequest, "Неверный формат запроса")
		return
	}
	if req.MaxMBytes > 0 {
		rs.cfg.Recorder.Capture.SetMaxBytes(req.MaxMBytes * 1024 * 1024)
	}
	if req.RateSeconds > 0 {
		rs.cfg.Recorder.Capture.SetUpdateInterval(time.Duration(req.RateSeconds) * time.Second)
	}
	ok(c, "Настройки записи обновлены", captureStats(rs.cfg.Recorder.Capture.Stats()))
}
