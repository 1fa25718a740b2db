package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервера.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Capture   CaptureConfig   `yaml:"capture"`
	Replay    ReplayConfig    `yaml:"replay"`
	Access    AccessConfig    `yaml:"access"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	TCPPort     int    `yaml:"tcp_port"`
	KCPPort     int    `yaml:"kcp_port"`
	RESTPort    int    `yaml:"rest_port"`
	MetricsPort int    `yaml:"metrics_port"`
	TickMillis  int    `yaml:"tick_ms"`
	MaxPlayers  int    `yaml:"max_players"`
	ServerTeams int    `yaml:"teams"`
	WorldHash   string `yaml:"world_hash"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// CaptureConfig параметры записи. Размер в мегабайтах, частота в секундах.
type CaptureConfig struct {
	MaxMBytes         int    `yaml:"max_mbytes"`
	UpdateRateSeconds int    `yaml:"update_rate_seconds"`
	Directory         string `yaml:"directory"`
}

type ReplayConfig struct {
	Directory       string `yaml:"directory"`
	ReadAheadMBytes int    `yaml:"read_ahead_mbytes"`
}

type AccessConfig struct {
	GroupsFile    string `yaml:"groups_file"`
	UsersFile     string `yaml:"users_file"`
	PasswordFile  string `yaml:"password_file"`
	AdminPassword string `yaml:"admin_password"`
}

type CatalogConfig struct {
	Backend    string `yaml:"backend"` // memory | badger | redis | maria | mongo
	BadgerPath string `yaml:"badger_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	MariaDSN   string `yaml:"maria_dsn"`
	MongoURI   string `yaml:"mongo_uri"`
	MongoDB    string `yaml:"mongo_db"`
}

// CacheConfig кеш чтения каталога. Без RedisAddr кеш держится в памяти узла,
// а NATSURL включает рассылку инвалидаций между узлами.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	TTLSeconds int    `yaml:"ttl_seconds"`
	NATSURL    string `yaml:"nats_url"`
	Subject    string `yaml:"subject"`
}

// TTL время жизни записи кеша
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
}

type APIConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  int    `yaml:"token_ttl_minutes"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// Значения по умолчанию
const (
	DefaultCaptureMBytes     = 16
	DefaultUpdateRateSeconds = 10
	DefaultTickMillis        = 10
	DefaultMaxPlayers        = 200
	DefaultTeams             = 8
)

// Default возвращает конфигурацию, используемую без файла
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Capture.MaxMBytes <= 0 {
		c.Capture.MaxMBytes = DefaultCaptureMBytes
	}
	if c.Capture.UpdateRateSeconds <= 0 {
		c.Capture.UpdateRateSeconds = DefaultUpdateRateSeconds
	}
	if c.Capture.Directory == "" {
		c.Capture.Directory = "recordings"
	}
	if c.Replay.Directory == "" {
		c.Replay.Directory = c.Capture.Directory
	}
	if c.Replay.ReadAheadMBytes <= 0 {
		c.Replay.ReadAheadMBytes = c.Capture.MaxMBytes
	}
	if c.Server.TickMillis <= 0 {
		c.Server.TickMillis = DefaultTickMillis
	}
	if c.Server.MaxPlayers <= 0 {
		c.Server.MaxPlayers = DefaultMaxPlayers
	}
	if c.Server.ServerTeams <= 0 {
		c.Server.ServerTeams = DefaultTeams
	}
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = "memory"
	}
	if c.Catalog.BadgerPath == "" {
		c.Catalog.BadgerPath = "data/catalog"
	}
	if c.Catalog.MongoDB == "" {
		c.Catalog.MongoDB = "replay"
	}
	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = 30
	}
	if c.EventBus.Stream == "" {
		c.EventBus.Stream = "REPLAY_EVENTS"
	}
	if c.EventBus.Retention <= 0 {
		c.EventBus.Retention = 24
	}
	if c.API.TokenTTL <= 0 {
		c.API.TokenTTL = 60
	}
	if c.API.JWTSecret == "" {
		c.API.JWTSecret = os.Getenv("GAME_JWT_SECRET")
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "replay-server"
	}
}

// CaptureMaxBytes бюджет буфера записи в байтах
func (c *CaptureConfig) CaptureMaxBytes() int {
	return c.MaxMBytes * 1024 * 1024
}

// UpdateInterval период между снимками состояния
func (c *CaptureConfig) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateRateSeconds) * time.Second
}

// ReadAheadBytes бюджет предзагрузки при воспроизведении
func (r *ReplayConfig) ReadAheadBytes() int {
	return r.ReadAheadMBytes * 1024 * 1024
}

// Tick период основного цикла сервера
func (s *ServerConfig) Tick() time.Duration {
	return time.Duration(s.TickMillis) * time.Millisecond
}

// GetTCPPort возвращает TCP порт с поддержкой fallback значений
func (s *ServerConfig) GetTCPPort() int {
	return getPortWithEnvFallback(s.TCPPort, "GAME_TCP_PORT", 5154)
}

// GetKCPPort возвращает KCP порт с поддержкой fallback значений
func (s *ServerConfig) GetKCPPort() int {
	return getPortWithEnvFallback(s.KCPPort, "GAME_KCP_PORT", 5155)
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "GAME_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "GAME_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV GAME_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}
