package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/annel0/mmo-replay/internal/access"
	"github.com/annel0/mmo-replay/internal/api"
	"github.com/annel0/mmo-replay/internal/app"
	"github.com/annel0/mmo-replay/internal/auth"
	"github.com/annel0/mmo-replay/internal/cache"
	"github.com/annel0/mmo-replay/internal/commands"
	"github.com/annel0/mmo-replay/internal/config"
	"github.com/annel0/mmo-replay/internal/eventbus"
	"github.com/annel0/mmo-replay/internal/game"
	"github.com/annel0/mmo-replay/internal/logging"
	"github.com/annel0/mmo-replay/internal/network"
	"github.com/annel0/mmo-replay/internal/observability"
	"github.com/annel0/mmo-replay/internal/recorder"
	"github.com/annel0/mmo-replay/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или GAME_CONFIG)")
	flag.Parse()

	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if cfg.Log.Level != "" {
		logging.GetLoggerManager().SetConsoleLevel(logging.ParseLevel(cfg.Log.Level))
	}

	logging.Info("🎬 Запуск сервера записи и воспроизведения...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		logging.Warn("⚠️ Телеметрия недоступна: %v", err)
		shutdownTelemetry = func(context.Context) error { return nil }
	}

	// === МЕТРИКИ ===
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// === ШИНА СОБЫТИЙ ===
	bus, err := newEventBus(cfg.EventBus)
	if err != nil {
		log.Fatalf("❌ Ошибка подключения к шине событий: %v", err)
	}
	eventbus.Init(bus)
	bridge := eventbus.NewBridge(bus, "replay-server", 0)
	busMetrics := eventbus.NewMetricsExporter(bus, registry)
	busMetrics.Start()
	if _, err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("⚠️ Логирование событий шины недоступно: %v", err)
	}

	// === КАТАЛОГ ===
	catalog, err := storage.NewCatalog(cfg.Catalog)
	if err != nil {
		log.Fatalf("❌ Ошибка открытия каталога (%s): %v", cfg.Catalog.Backend, err)
	}
	if cfg.Cache.Enabled {
		cached, err := newCachedCatalog(ctx, catalog, cfg.Cache)
		if err != nil {
			log.Fatalf("❌ Ошибка настройки кеша каталога: %v", err)
		}
		catalog = cached
	}
	indexer := app.NewCatalogIndexer(catalog)
	if err := indexer.Start(ctx, bus); err != nil {
		log.Fatalf("❌ Ошибка запуска индексатора каталога: %v", err)
	}

	// === ДОСТУП ===
	accessMgr := access.NewManager(access.Options{
		GroupsFile:    cfg.Access.GroupsFile,
		UsersFile:     cfg.Access.UsersFile,
		PasswordFile:  cfg.Access.PasswordFile,
		AdminPassword: cfg.Access.AdminPassword,
		Notifier:      bridge,
		Metrics:       access.NewMetrics(registry),
	})
	if err := accessMgr.Load(); err != nil {
		log.Fatalf("❌ Ошибка загрузки баз доступа: %v", err)
	}

	// === ЗАПИСЬ И ВОСПРОИЗВЕДЕНИЕ ===
	for _, dir := range []string{cfg.Capture.Directory, cfg.Replay.Directory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("❌ Ошибка создания каталога %s: %v", dir, err)
		}
	}
	state := game.NewState(cfg.Server.ServerTeams, cfg.Server.WorldHash)
	rec := recorder.New(recorder.Options{
		MaxBytes:       cfg.Capture.CaptureMaxBytes(),
		UpdateInterval: cfg.Capture.UpdateInterval(),
		CaptureDir:     cfg.Capture.Directory,
		ReplayDir:      cfg.Replay.Directory,
		ReadAheadBytes: cfg.Replay.ReadAheadBytes(),
		State:          state,
		Observer:       bridge,
		Metrics:        recorder.NewMetrics(registry),
	})

	// === ИГРОВОЙ СЕРВЕР ===
	srv := network.NewServer(network.Options{
		MaxPlayers: cfg.Server.MaxPlayers,
		Tick:       cfg.Server.Tick(),
		Recorder:   rec,
		Access:     accessMgr,
		State:      state,
		Metrics:    network.NewMetrics(registry),
	})
	rec.SetTransport(srv)
	srv.SetDispatcher(commands.NewDispatcher(commands.Options{
		Recorder: rec,
		Access:   accessMgr,
		Catalog:  catalog,
		Sessions: srv,
		Metrics:  commands.NewMetrics(registry),
	}))
	srv.Start()

	tcpAddr := fmt.Sprintf(":%d", cfg.Server.GetTCPPort())
	kcpAddr := fmt.Sprintf(":%d", cfg.Server.GetKCPPort())
	if _, err := srv.ListenTCP(tcpAddr); err != nil {
		log.Fatalf("❌ Ошибка запуска TCP: %v", err)
	}
	if _, err := srv.ListenKCP(kcpAddr); err != nil {
		log.Fatalf("❌ Ошибка запуска KCP: %v", err)
	}

	// === REST API ===
	issuer, err := auth.NewTokenIssuer(cfg.API.JWTSecret, time.Duration(cfg.API.TokenTTL)*time.Minute)
	if err != nil {
		log.Fatalf("❌ Ошибка настройки JWT: %v", err)
	}
	restPort := fmt.Sprintf(":%d", cfg.Server.GetRESTPort())
	rest := api.NewRestServer(api.Config{
		Port:       restPort,
		Recorder:   rec,
		Access:     accessMgr,
		Catalog:    catalog,
		Server:     srv,
		Issuer:     issuer,
		Registerer: registry,
		Gatherer:   registry,
	})
	go func() {
		if err := rest.Start(); err != nil {
			logging.Error("❌ Ошибка REST API: %v", err)
		}
	}()

	metricsSrv := eventbus.ServeMetrics(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()), registry)

	logging.Info("✅ Все сервисы запущены")
	logging.Info("   🎮 Игровой трафик: TCP %s, KCP %s", tcpAddr, kcpAddr)
	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   💾 Записи: %s, воспроизведение: %s", cfg.Capture.Directory, cfg.Replay.Directory)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("📡 Получен сигнал %v, завершение работы...", sig)

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}
	srv.Stop()
	if err := rec.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия рекордера: %v", err)
	}
	bridge.Close()
	indexer.Stop()
	busMetrics.Stop()
	if err := bus.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия шины: %v", err)
	}
	if err := catalog.Close(); err != nil {
		logging.Error("❌ Ошибка закрытия каталога: %v", err)
	}
	if err := eventbus.ShutdownMetrics(shutdownCtx, metricsSrv); err != nil {
		logging.Error("❌ Ошибка остановки сервера метрик: %v", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logging.Warn("⚠️ Ошибка остановки телеметрии: %v", err)
	}

	logging.Info("👋 Сервер остановлен")
}

// newCachedCatalog оборачивает каталог кешем: Redis при заданном адресе,
// иначе память узла; NATS рассылает инвалидации
func newCachedCatalog(ctx context.Context, inner storage.CatalogRepo, cfg config.CacheConfig) (storage.CatalogRepo, error) {
	var c cache.Cache = cache.NewMemoryCache()
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err != nil {
			return nil, err
		}
		c = rc
	}
	var inv cache.Invalidator
	if cfg.NATSURL != "" {
		n, err := cache.NewNATSInvalidator(cfg.NATSURL, cfg.Subject, "")
		if err != nil {
			c.Close()
			return nil, err
		}
		inv = n
	}
	cc := cache.NewCachedCatalog(inner, c, inv, cfg.TTL())
	if err := cc.Start(ctx); err != nil {
		cc.Close()
		return nil, err
	}
	return cc, nil
}

// newEventBus JetStream при заданном URL, иначе шина в памяти
func newEventBus(cfg config.EventBusConfig) (eventbus.EventBus, error) {
	if cfg.URL == "" {
		logging.Info("🚌 Шина событий в памяти")
		return eventbus.NewMemoryBus(1024), nil
	}
	bus, err := eventbus.NewJetStreamBus(cfg.URL, cfg.Stream, time.Duration(cfg.Retention)*time.Hour)
	if err != nil {
		return nil, err
	}
	logging.Info("🚌 Шина событий NATS JetStream: %s (stream %s)", cfg.URL, cfg.Stream)
	return bus, nil
}
