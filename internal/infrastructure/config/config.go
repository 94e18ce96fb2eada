package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/invsync/backend/internal/domain/sync"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Connector ConnectorConfig
	Storage   StorageConfig
	Secrets   SecretsConfig
	Telemetry TelemetryConfig
	Profiler  ProfilerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. Redis backs the shared
// single-flight run lock; when disabled the lock is process-local only.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	TrustedProxies   []string
}

// SyncConfig holds orchestrator and scheduler settings.
type SyncConfig struct {
	// Per-source scheduled cadences.
	VendorsCadence        time.Duration
	InventoryCadence      time.Duration
	BOMsCadence           time.Duration
	PurchaseOrdersCadence time.Duration

	// StaleFactor multiplies a source's cadence to get its staleness
	// threshold.
	StaleFactor float64

	// MaxRunDuration is the watchdog bound: a run exceeding it is
	// transitioned to failed and its lock released.
	MaxRunDuration time.Duration

	// HistoryLimit bounds the retained run history.
	HistoryLimit int

	// Per-source ingestion path: "api" or "csv".
	VendorsPath        string
	InventoryPath      string
	BOMsPath           string
	PurchaseOrdersPath string

	// ColumnCountMode decides what happens to a CSV data row whose
	// column count does not match the header: "error" surfaces it as a
	// row error with its index, "drop" silently discards it.
	ColumnCountMode string

	// AutoStart arms the per-source schedule at boot.
	AutoStart bool
}

// Cadence returns the scheduled cadence for a source.
func (s *SyncConfig) Cadence(source sync.Source) time.Duration {
	switch source {
	case sync.SourceVendors:
		return s.VendorsCadence
	case sync.SourceInventory:
		return s.InventoryCadence
	case sync.SourceBOMs:
		return s.BOMsCadence
	case sync.SourcePurchaseOrders:
		return s.PurchaseOrdersCadence
	default:
		return 0
	}
}

// IngestionPath returns the configured ingestion path for a source.
func (s *SyncConfig) IngestionPath(source sync.Source) sync.IngestionPath {
	var raw string
	switch source {
	case sync.SourceVendors:
		raw = s.VendorsPath
	case sync.SourceInventory:
		raw = s.InventoryPath
	case sync.SourceBOMs:
		raw = s.BOMsPath
	case sync.SourcePurchaseOrders:
		raw = s.PurchaseOrdersPath
	}
	if p := sync.IngestionPath(raw); p.IsValid() {
		return p
	}
	return sync.IngestAPI
}

// ConnectorConfig holds settings for the external inventory system client.
type ConnectorConfig struct {
	Timeout          time.Duration
	ProbeTimeout     time.Duration
	MaxResponseBytes int64
	PageSize         int
}

// StorageConfig holds CSV staging buffer storage settings.
// Backend "local" stages files under LocalDir; "s3" stages them in an
// S3-compatible bucket (AWS S3, MinIO, RustFS).
type StorageConfig struct {
	Backend      string
	LocalDir     string
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UsePathStyle bool
}

// SecretsConfig holds at-rest encryption settings.
type SecretsConfig struct {
	// CredentialKey is the base64-encoded 32-byte secretbox key used
	// to encrypt the external system's API secret at rest.
	CredentialKey string
}

// DecodeCredentialKey decodes and validates the credential key.
func (s *SecretsConfig) DecodeCredentialKey() (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s.CredentialKey)
	if err != nil {
		return nil, fmt.Errorf("secrets.credential_key is not valid base64: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("secrets.credential_key must decode to 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTLP gRPC endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsEnabled    bool    // Export metrics alongside traces
	LogsEnabled       bool    // Bridge zap logs to the OTLP log exporter
	DBTraceEnabled    bool    // Enable database query tracing (otelgorm)
}

// ProfilerConfig holds continuous profiling configuration
type ProfilerConfig struct {
	Enabled         bool
	ServerAddress   string
	ApplicationName string
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with INVSYNC_ prefix (e.g., INVSYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("INVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Sync: SyncConfig{
			VendorsCadence:        v.GetDuration("sync.vendors_cadence"),
			InventoryCadence:      v.GetDuration("sync.inventory_cadence"),
			BOMsCadence:           v.GetDuration("sync.boms_cadence"),
			PurchaseOrdersCadence: v.GetDuration("sync.purchase_orders_cadence"),
			StaleFactor:           v.GetFloat64("sync.stale_factor"),
			MaxRunDuration:        v.GetDuration("sync.max_run_duration"),
			HistoryLimit:          v.GetInt("sync.history_limit"),
			VendorsPath:           v.GetString("sync.vendors_path"),
			InventoryPath:         v.GetString("sync.inventory_path"),
			BOMsPath:              v.GetString("sync.boms_path"),
			PurchaseOrdersPath:    v.GetString("sync.purchase_orders_path"),
			ColumnCountMode:       v.GetString("sync.column_count_mode"),
			AutoStart:             v.GetBool("sync.auto_start"),
		},
		Connector: ConnectorConfig{
			Timeout:          v.GetDuration("connector.timeout"),
			ProbeTimeout:     v.GetDuration("connector.probe_timeout"),
			MaxResponseBytes: v.GetInt64("connector.max_response_bytes"),
			PageSize:         v.GetInt("connector.page_size"),
		},
		Storage: StorageConfig{
			Backend:      v.GetString("storage.backend"),
			LocalDir:     v.GetString("storage.local_dir"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UseSSL:       v.GetBool("storage.use_ssl"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Secrets: SecretsConfig{
			CredentialKey: v.GetString("secrets.credential_key"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
		Profiler: ProfilerConfig{
			Enabled:         v.GetBool("profiler.enabled"),
			ServerAddress:   v.GetString("profiler.server_address"),
			ApplicationName: v.GetString("profiler.application_name"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "invsync-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "invsync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20
	}
	if cfg.Sync.VendorsCadence == 0 {
		cfg.Sync.VendorsCadence = 60 * time.Minute
	}
	if cfg.Sync.InventoryCadence == 0 {
		cfg.Sync.InventoryCadence = 5 * time.Minute
	}
	if cfg.Sync.BOMsCadence == 0 {
		cfg.Sync.BOMsCadence = 60 * time.Minute
	}
	if cfg.Sync.PurchaseOrdersCadence == 0 {
		cfg.Sync.PurchaseOrdersCadence = 15 * time.Minute
	}
	if cfg.Sync.StaleFactor == 0 {
		cfg.Sync.StaleFactor = 2.0
	}
	if cfg.Sync.MaxRunDuration == 0 {
		cfg.Sync.MaxRunDuration = 10 * time.Minute
	}
	if cfg.Sync.HistoryLimit == 0 {
		cfg.Sync.HistoryLimit = 50
	}
	if cfg.Sync.ColumnCountMode == "" {
		cfg.Sync.ColumnCountMode = "error"
	}
	if cfg.Connector.Timeout == 0 {
		cfg.Connector.Timeout = 30 * time.Second
	}
	if cfg.Connector.ProbeTimeout == 0 {
		cfg.Connector.ProbeTimeout = 10 * time.Second
	}
	if cfg.Connector.MaxResponseBytes == 0 {
		cfg.Connector.MaxResponseBytes = 10 << 20
	}
	if cfg.Connector.PageSize == 0 {
		cfg.Connector.PageSize = 200
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.LocalDir == "" {
		cfg.Storage.LocalDir = "./data/staging"
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Profiler.ServerAddress == "" {
		cfg.Profiler.ServerAddress = "http://localhost:4040"
	}
	if cfg.Profiler.ApplicationName == "" {
		cfg.Profiler.ApplicationName = cfg.App.Name
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.StaleFactor < 1.0 {
		return fmt.Errorf("sync.stale_factor must be at least 1.0, got %f", c.Sync.StaleFactor)
	}
	if mode := c.Sync.ColumnCountMode; mode != "error" && mode != "drop" {
		return fmt.Errorf("sync.column_count_mode must be 'error' or 'drop', got %q", mode)
	}
	for _, raw := range []string{c.Sync.VendorsPath, c.Sync.InventoryPath, c.Sync.BOMsPath, c.Sync.PurchaseOrdersPath} {
		if raw != "" && !sync.IngestionPath(raw).IsValid() {
			return fmt.Errorf("sync ingestion path must be 'api' or 'csv', got %q", raw)
		}
	}

	if c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return fmt.Errorf("storage.backend must be 'local' or 's3', got %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "s3" {
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 backend")
		}
		if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
			return fmt.Errorf("storage.access_key and storage.secret_key are required for the s3 backend")
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Secrets.CredentialKey == "" {
			return fmt.Errorf("secrets.credential_key is required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}

	if c.Secrets.CredentialKey != "" {
		if _, err := c.Secrets.DecodeCredentialKey(); err != nil {
			return err
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
