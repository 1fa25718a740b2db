// Package api REST-интерфейс оператора: вход по паролю, JWT и управление
// записью, воспроизведением и правами доступа.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/auth"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/middleware"
	"github.com/annel0/mmo-replay/internal/network"
	"github.com/annel0/mmo-replay/internal/recorder"
	"github.com/annel0/mmo-replay/internal/storage"
)

const version = "v0.1.0"

// ServerView то, что API читает у игрового сервера
type ServerView interface {
	Stats() network.Stats
	Sessions() []*access.AccessInfo
}

// Config содержит зависимости REST сервера
type Config struct {
	Port     string // адрес для запуска, например ":8088"
	Recorder *recorder.Recorder
	Access   *access.Manager
	Catalog  storage.CatalogRepo // может быть nil
	Server   ServerView          // может быть nil
	Issuer   *auth.TokenIssuer

	// Registerer и Gatherer для HTTP-метрик и /metrics; nil означает глобальный регистр
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// RestServer представляет REST API сервер
type RestServer struct {
	cfg     Config
	router  *gin.Engine
	metrics *ServerMetrics
	log     *logging.Logger
	http    *http.Server
}

// GenericResponse общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создает REST API сервер
func NewRestServer(cfg Config) *RestServer {
	if cfg.Port == "" {
		cfg.Port = ":8088"
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// otelgin первым, чтобы логгер видел trace-ID
	router.Use(otelgin.Middleware("replay_api"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("replay_api", cfg.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, cfg.Gatherer)

	rs := &RestServer{
		cfg:     cfg,
		router:  router,
		metrics: NewServerMetrics(),
		log:     logging.GetComponentLogger("api"),
	}
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	api.POST("/auth/login", rs.handleLogin)

	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/server", rs.handleServerInfo)

		capture := protected.Group("/capture")
		capture.Use(rs.requirePerm(access.Record))
		{
			capture.GET("", rs.handleCaptureStats)
			capture.POST("/start", rs.handleCaptureStart)
			capture.POST("/stop", rs.handleCaptureStop)
			capture.POST("/save", rs.handleCaptureSave)
			capture.POST("/file", rs.handleCaptureFile)
			capture.PUT("/settings", rs.handleCaptureSettings)
		}

		replay := protected.Group("/replay")
		replay.Use(rs.requirePerm(access.Replay))
		{
			replay.GET("", rs.handleReplayProgress)
			replay.GET("/files", rs.handleReplayFiles)
			replay.GET("/catalog", rs.handleCatalog)
			replay.POST("/enable", rs.handleReplayEnable)
			replay.POST("/disable", rs.handleReplayDisable)
			replay.POST("/reset", rs.handleReplayReset)
			replay.POST("/load", rs.handleReplayLoad)
			replay.POST("/play", rs.handleReplayPlay)
			replay.POST("/stop", rs.handleReplayStop)
			replay.POST("/skip", rs.handleReplaySkip)
		}

		acc := protected.Group("/access")
		{
			acc.GET("/groups", rs.handleGroups)
			acc.GET("/users", rs.requirePerm(access.ShowOthers), rs.handleUsers)
			acc.GET("/users/:name", rs.handleUser)
			acc.POST("/reload", rs.requirePerm(access.SetAll), rs.handleReload)
		}
	}
}

// Handler возвращает http.Handler (удобно для тестов)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.http = &http.Server{
		Addr:              rs.cfg.Port,
		Handler:           rs.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	rs.log.Info("🌐 REST API слушает %s", rs.cfg.Port)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop корректно завершает REST сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	if rs.http == nil {
		return nil
	}
	return rs.http.Shutdown(ctx)
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleServerInfo версия, ресурсы процесса и состояние игрового сервера
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	proc := rs.metrics.Snapshot()
	info := gin.H{
		"version":     version,
		"name":        "Replay Server",
		"uptime":      proc.Uptime,
		"memory_mb":   proc.MemoryMB,
		"cpu_percent": proc.CPUPercent,
		"goroutines":  proc.Goroutines,
		"mode":        rs.cfg.Recorder.Mode().String(),
	}
	if rs.cfg.Server != nil {
		st := rs.cfg.Server.Stats()
		info["connections"] = st.Connections
		info["playing"] = st.Playing
	}
	ok(c, "Информация о сервере", info)
}

func ok(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: message, Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: message})
}
