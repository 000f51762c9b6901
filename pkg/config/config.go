package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/studiodesk/pkg/audit"
	"github.com/platinummonkey/studiodesk/pkg/database"
	"github.com/platinummonkey/studiodesk/pkg/mirror"
	"github.com/platinummonkey/studiodesk/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Sheet         mirror.SheetConfig  `yaml:"sheet"`
	Mirror        MirrorConfig        `yaml:"mirror"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// TrustedProxies lists proxy addresses or CIDRs whose forwarding
	// headers are believed when recording client addresses. Empty means
	// the connection's remote address is always used.
	TrustedProxies []string `yaml:"trusted_proxies"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Proxies parses TrustedProxies
func (c ServerConfig) Proxies() (audit.TrustedProxies, error) {
	return audit.ParseTrustedProxies(c.TrustedProxies)
}

// DatabaseConfig holds the audit store connection
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Connection converts to database.Config
func (c DatabaseConfig) Connection() database.Config {
	return database.Config{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// RedisConfig holds the optional shared cache. An empty URL disables redis.
type RedisConfig struct {
	URL        string        `yaml:"url"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	PoolSize   int           `yaml:"pool_size"`
	ProfileTTL time.Duration `yaml:"profile_ttl"`
}

// Enabled reports whether a redis URL is configured
func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

// Connection converts to database.RedisConfig
func (c RedisConfig) Connection() database.RedisConfig {
	return database.RedisConfig{URL: c.URL, Password: c.Password, DB: c.DB, PoolSize: c.PoolSize}
}

// AuthConfig selects how bearer tokens are verified: a shared HS256 secret,
// or an OIDC issuer when OIDCIssuer is set
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTIssuer       string        `yaml:"jwt_issuer"`
	JWTAudience     string        `yaml:"jwt_audience"`
	OIDCIssuer      string        `yaml:"oidc_issuer"`
	OIDCClientID    string        `yaml:"oidc_client_id"`
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`
	ProfileCacheMax int           `yaml:"profile_cache_size"`
}

// UseOIDC reports whether tokens are verified against an OIDC issuer
func (c AuthConfig) UseOIDC() bool {
	return c.OIDCIssuer != ""
}

// MirrorConfig sizes the spreadsheet mirror workers
type MirrorConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RateLimitConfig limits requests per caller on the audit API
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	RequestsPerWindow int           `yaml:"requests_per_window"`
	Window            time.Duration `yaml:"window"`
	Burst             int           `yaml:"burst"`
}

// ArchiveConfig controls the daily NDJSON export to S3
type ArchiveConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	// Schedule is a standard five-field cron expression
	Schedule string `yaml:"schedule"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Level parses LogLevel, defaulting to info
func (c ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(c.LogLevel)
}

// OTel converts to observability.OTelConfig
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
	}
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			ProfileTTL: 5 * time.Minute,
		},
		Auth: AuthConfig{
			ProfileCacheTTL: time.Minute,
			ProfileCacheMax: 1024,
		},
		Sheet: mirror.SheetConfig{
			Range: mirror.DefaultRange,
		},
		Mirror: MirrorConfig{
			Workers:   2,
			QueueSize: 256,
			Timeout:   10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerWindow: 600,
			Window:            time.Minute,
			Burst:             50,
		},
		Archive: ArchiveConfig{
			Prefix:   "audit-logs",
			Region:   "us-east-1",
			Schedule: "15 0 * * *",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "studiodesk",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds configuration from defaults, then the YAML file named by
// STUDIODESK_CONFIG_FILE if set, then environment variables
func LoadConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadArchiveConfig reads the same sources as LoadConfig but only validates
// the settings the archiver uses
func LoadArchiveConfig() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateArchive(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("STUDIODESK_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every field whose environment variable is set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("STUDIODESK_HOST", s.Host)
	s.Port = getEnv("STUDIODESK_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("STUDIODESK_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("STUDIODESK_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("STUDIODESK_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("STUDIODESK_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("STUDIODESK_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.HealthPort = getEnv("STUDIODESK_HEALTH_PORT", s.HealthPort)
	s.TrustedProxies = getEnvList("STUDIODESK_TRUSTED_PROXIES", s.TrustedProxies)

	d := &c.Database
	d.Driver = getEnv("STUDIODESK_DB_DRIVER", d.Driver)
	d.DSN = getEnv("STUDIODESK_DB_DSN", d.DSN)
	d.MaxOpenConns = getEnvInt("STUDIODESK_DB_MAX_OPEN_CONNS", d.MaxOpenConns)
	d.MaxIdleConns = getEnvInt("STUDIODESK_DB_MAX_IDLE_CONNS", d.MaxIdleConns)
	d.ConnMaxLifetime = getEnvDuration("STUDIODESK_DB_CONN_MAX_LIFETIME", d.ConnMaxLifetime)

	r := &c.Redis
	r.URL = getEnv("STUDIODESK_REDIS_URL", r.URL)
	r.Password = getEnv("STUDIODESK_REDIS_PASSWORD", r.Password)
	r.DB = getEnvInt("STUDIODESK_REDIS_DB", r.DB)
	r.PoolSize = getEnvInt("STUDIODESK_REDIS_POOL_SIZE", r.PoolSize)
	r.ProfileTTL = getEnvDuration("STUDIODESK_REDIS_PROFILE_TTL", r.ProfileTTL)

	a := &c.Auth
	a.JWTSecret = getEnv("STUDIODESK_JWT_SECRET", a.JWTSecret)
	a.JWTIssuer = getEnv("STUDIODESK_JWT_ISSUER", a.JWTIssuer)
	a.JWTAudience = getEnv("STUDIODESK_JWT_AUDIENCE", a.JWTAudience)
	a.OIDCIssuer = getEnv("STUDIODESK_OIDC_ISSUER", a.OIDCIssuer)
	a.OIDCClientID = getEnv("STUDIODESK_OIDC_CLIENT_ID", a.OIDCClientID)
	a.ProfileCacheTTL = getEnvDuration("STUDIODESK_PROFILE_CACHE_TTL", a.ProfileCacheTTL)
	a.ProfileCacheMax = getEnvInt("STUDIODESK_PROFILE_CACHE_SIZE", a.ProfileCacheMax)

	sh := &c.Sheet
	sh.SheetID = getEnv("STUDIODESK_SHEET_ID", sh.SheetID)
	sh.Range = getEnv("STUDIODESK_SHEET_RANGE", sh.Range)
	sh.ServiceAccountEmail = getEnv("STUDIODESK_SERVICE_ACCOUNT_EMAIL", sh.ServiceAccountEmail)
	sh.PrivateKeyPEM = getEnv("STUDIODESK_SERVICE_ACCOUNT_PRIVATE_KEY", sh.PrivateKeyPEM)
	sh.TokenURL = getEnv("STUDIODESK_TOKEN_URL", sh.TokenURL)
	sh.SheetsBaseURL = getEnv("STUDIODESK_SHEETS_BASE_URL", sh.SheetsBaseURL)

	m := &c.Mirror
	m.Workers = getEnvInt("STUDIODESK_MIRROR_WORKERS", m.Workers)
	m.QueueSize = getEnvInt("STUDIODESK_MIRROR_QUEUE_SIZE", m.QueueSize)
	m.Timeout = getEnvDuration("STUDIODESK_MIRROR_TIMEOUT", m.Timeout)

	rl := &c.RateLimit
	rl.Enabled = getEnvBool("STUDIODESK_RATE_LIMIT_ENABLED", rl.Enabled)
	rl.RequestsPerWindow = getEnvInt("STUDIODESK_RATE_LIMIT_REQUESTS", rl.RequestsPerWindow)
	rl.Window = getEnvDuration("STUDIODESK_RATE_LIMIT_WINDOW", rl.Window)
	rl.Burst = getEnvInt("STUDIODESK_RATE_LIMIT_BURST", rl.Burst)

	ar := &c.Archive
	ar.Enabled = getEnvBool("STUDIODESK_ARCHIVE_ENABLED", ar.Enabled)
	ar.Bucket = getEnv("STUDIODESK_ARCHIVE_BUCKET", ar.Bucket)
	ar.Prefix = getEnv("STUDIODESK_ARCHIVE_PREFIX", ar.Prefix)
	ar.Region = getEnv("STUDIODESK_ARCHIVE_REGION", ar.Region)
	ar.Endpoint = getEnv("STUDIODESK_ARCHIVE_ENDPOINT", ar.Endpoint)
	ar.AccessKeyID = getEnv("STUDIODESK_ARCHIVE_ACCESS_KEY_ID", ar.AccessKeyID)
	ar.SecretAccessKey = getEnv("STUDIODESK_ARCHIVE_SECRET_ACCESS_KEY", ar.SecretAccessKey)
	ar.UsePathStyle = getEnvBool("STUDIODESK_ARCHIVE_USE_PATH_STYLE", ar.UsePathStyle)
	ar.Schedule = getEnv("STUDIODESK_ARCHIVE_SCHEDULE", ar.Schedule)

	o := &c.Observability
	o.LogLevel = getEnv("STUDIODESK_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("STUDIODESK_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("STUDIODESK_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("STUDIODESK_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("STUDIODESK_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("STUDIODESK_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("STUDIODESK_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid. A partially configured
// sheet is not an error: mirroring is simply disabled.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if _, err := c.Server.Proxies(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if c.Auth.UseOIDC() {
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC client id is required when an OIDC issuer is set")
		}
	} else if c.Auth.JWTSecret == "" {
		return fmt.Errorf("either a JWT secret or an OIDC issuer is required")
	}

	if c.Mirror.Workers <= 0 || c.Mirror.QueueSize <= 0 {
		return fmt.Errorf("mirror workers and queue size must be positive")
	}
	if c.Mirror.Timeout <= 0 {
		return fmt.Errorf("mirror timeout must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate limit requests and window must be positive when enabled")
	}

	if c.Archive.Enabled {
		if err := c.validateArchive(); err != nil {
			return err
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateArchive checks the database and archive settings only
func (c *Config) ValidateArchive() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	return c.validateArchive()
}

func (c *Config) validateDatabase() error {
	if _, err := database.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}
	return nil
}

func (c *Config) validateArchive() error {
	if c.Archive.Bucket == "" {
		return fmt.Errorf("archive bucket is required when archiving is enabled")
	}
	if _, err := cron.ParseStandard(c.Archive.Schedule); err != nil {
		return fmt.Errorf("invalid archive schedule %q: %w", c.Archive.Schedule, err)
	}
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
