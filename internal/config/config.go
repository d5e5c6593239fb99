package config

import (
	"time"
)

type Config struct {
	Input          InputConfig
	Output         OutputConfig
	Concurrency    ConcurrencyConfig
	Assets         AssetsConfig
	FeatureFlags   FeatureFlagsConfig
	Enrichments    []EnrichmentConfEntry
	Database       DatabaseConfig
	Logging        LoggingConfig
	Monitoring     MonitoringConfig
	CircuitBreaker CircuitBreakerConfig
	Tracing        TracingConfig
	License        LicenseConfig
	Server         ServerConfig
	Notifications  NotificationsConfig
}

// NotificationsConfig selects where RegistrySwapped events are
// published. An empty Topic disables the notifier entirely.
type NotificationsConfig struct {
	Kafka KafkaIOConfig `mapstructure:"kafka"`
}

// InputConfig selects and parameterizes the source driver. The core
// treats everything past Type as driver-specific.
type InputConfig struct {
	Type               string        `mapstructure:"type"`
	Kafka              KafkaIOConfig `mapstructure:"kafka"`
	MaxRecordSizeBytes int           `mapstructure:"max_record_size_bytes"`
}

// OutputConfig selects the good/pii/bad sink drivers.
type OutputConfig struct {
	Good SinkConfig `mapstructure:"good"`
	Pii  SinkConfig `mapstructure:"pii"`
	Bad  SinkConfig `mapstructure:"bad"`
}

type SinkConfig struct {
	Type  string        `mapstructure:"type"`
	Kafka KafkaIOConfig `mapstructure:"kafka"`
}

type KafkaIOConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topic   string      `mapstructure:"topic"`
	GroupID string      `mapstructure:"group_id"`
	Retry   RetryConfig `mapstructure:"retry"`
}

type ConcurrencyConfig struct {
	Enrich int `mapstructure:"enrich"`
	Sink   int `mapstructure:"sink"`
}

type AssetsConfig struct {
	CacheDir           string        `mapstructure:"cache_dir"`
	UpdatePeriod       time.Duration `mapstructure:"update_period"`
	DownloadConcurrency int          `mapstructure:"download_concurrency"`
}

type FeatureFlagsConfig struct {
	AcceptInvalid         bool `mapstructure:"accept_invalid"`
	LegacyEnrichmentOrder bool `mapstructure:"legacy_enrichment_order"`
	TryBase64Decoding     bool `mapstructure:"try_base64_decoding"`
}

// EnrichmentConfEntry is the static per-enrichment declaration read
// from config: which enrichment type, its parameters, and the remote
// assets it depends on (with expected local paths/hashes).
type EnrichmentConfEntry struct {
	Type       string            `mapstructure:"type"`
	Name       string            `mapstructure:"name"`
	Enabled    bool              `mapstructure:"enabled"`
	Parameters map[string]any    `mapstructure:"parameters"`
	Assets     []AssetRef        `mapstructure:"assets"`
}

type AssetRef struct {
	URI          string `mapstructure:"uri"`
	LocalPath    string `mapstructure:"local_path"`
	ExpectedHash string `mapstructure:"expected_hash"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type MongoDBConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MonitoringConfig struct {
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type MetricsConfig struct {
	Type string `mapstructure:"type"`
	Port int    `mapstructure:"port"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TelemetryConfig struct {
	Disable bool   `mapstructure:"disable"`
	UserID  string `mapstructure:"user_id"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type LicenseConfig struct {
	Accept bool `mapstructure:"accept"`
}

type ServerConfig struct {
	Port                int              `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration    `mapstructure:"write_timeout_seconds"`
	RateLimit           RateLimitConfig  `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	RPS             float64       `mapstructure:"rps"`
	Burst           int           `mapstructure:"burst"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAge          time.Duration `mapstructure:"max_age"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
