package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"enrich/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	// HOCON configs in the wild are almost always a YAML-compatible
	// subset (quoted strings, nested blocks, no substitutions); viper's
	// YAML decoder handles that subset without pulling in a separate
	// HOCON parser.
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Concurrency.Enrich <= 0 {
		cfg.Concurrency.Enrich = constants.DefaultConcurrencyEnrich
	}
	if cfg.Concurrency.Sink <= 0 {
		cfg.Concurrency.Sink = constants.DefaultConcurrencySink
	}
	if cfg.Assets.DownloadConcurrency <= 0 {
		cfg.Assets.DownloadConcurrency = 4
	}
	if cfg.Assets.CacheDir == "" {
		cfg.Assets.CacheDir = "/tmp/enrich-assets"
	}
	if !cfg.License.Accept {
		cfg.License.Accept = os.Getenv(constants.EnvAcceptLimitedUseLicense) == "1"
	}
	if cfg.Input.MaxRecordSizeBytes <= 0 {
		cfg.Input.MaxRecordSizeBytes = constants.DefaultMaxRecordSizeBytes
	}
	if cfg.Database.MongoDB.Database == "" {
		cfg.Database.MongoDB.Database = constants.DefaultMongoDBName
	}
	if cfg.Database.MongoDB.Collection == "" {
		cfg.Database.MongoDB.Collection = constants.DefaultEnrichmentDeclarationsCollection
	}
	if cfg.Database.Postgres.MigrationsPath == "" {
		cfg.Database.Postgres.MigrationsPath = constants.DefaultPostgresMigrationsPath
	}
}

func bindEnvVariables() {
	viper.BindEnv("input.kafka.brokers", "INPUT_KAFKA_BROKERS")
	viper.BindEnv("input.kafka.topic", "INPUT_KAFKA_TOPIC")
	viper.BindEnv("input.kafka.group_id", "INPUT_KAFKA_GROUP_ID")

	viper.BindEnv("output.good.kafka.brokers", "OUTPUT_GOOD_KAFKA_BROKERS")
	viper.BindEnv("output.good.kafka.topic", "OUTPUT_GOOD_KAFKA_TOPIC")
	viper.BindEnv("output.bad.kafka.brokers", "OUTPUT_BAD_KAFKA_BROKERS")
	viper.BindEnv("output.bad.kafka.topic", "OUTPUT_BAD_KAFKA_TOPIC")
	viper.BindEnv("output.pii.kafka.brokers", "OUTPUT_PII_KAFKA_BROKERS")
	viper.BindEnv("output.pii.kafka.topic", "OUTPUT_PII_KAFKA_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")

	viper.BindEnv("monitoring.sentry.dsn", "MONITORING_SENTRY_DSN")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("INPUT_KAFKA_BROKERS"); brokersEnv != "" {
		cfg.Input.Kafka.Brokers = splitAndTrim(brokersEnv)
	}
	if brokersEnv := viper.GetString("OUTPUT_GOOD_KAFKA_BROKERS"); brokersEnv != "" {
		cfg.Output.Good.Kafka.Brokers = splitAndTrim(brokersEnv)
	}
	if brokersEnv := viper.GetString("OUTPUT_BAD_KAFKA_BROKERS"); brokersEnv != "" {
		cfg.Output.Bad.Kafka.Brokers = splitAndTrim(brokersEnv)
	}
	if brokersEnv := viper.GetString("OUTPUT_PII_KAFKA_BROKERS"); brokersEnv != "" {
		cfg.Output.Pii.Kafka.Brokers = splitAndTrim(brokersEnv)
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
