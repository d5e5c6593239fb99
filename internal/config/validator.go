package config

import (
	"fmt"
	"strings"

	"enrich/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic rejects a config that cannot possibly start the
// runtime: missing input/output drivers, a feature flag that requires
// data this build doesn't carry, or a license block that wasn't
// accepted. It never inspects reachability of external systems — that
// is Initialize's job, and its failures are startup failures, not
// validation failures.
func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateInput(cfg.Input); err != nil {
		errs = append(errs, err)
	}
	if err := validateOutput(cfg.Output); err != nil {
		errs = append(errs, err)
	}
	if err := validateConcurrency(cfg.Concurrency); err != nil {
		errs = append(errs, err)
	}
	if err := validateFeatureFlags(cfg.FeatureFlags); err != nil {
		errs = append(errs, err)
	}
	if err := validateEnrichments(cfg.Enrichments); err != nil {
		errs = append(errs, err)
	}
	if err := validateLicense(cfg.License); err != nil {
		errs = append(errs, err)
	}
	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateInput(cfg InputConfig) error {
	if cfg.Type == "" {
		return &ValidationError{Field: "input.type", Message: "input type is required"}
	}
	switch cfg.Type {
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{Field: "input.kafka.brokers", Message: "at least one broker is required"}
		}
		if cfg.Kafka.Topic == "" {
			return &ValidationError{Field: "input.kafka.topic", Message: "topic is required"}
		}
	default:
		return &ValidationError{Field: "input.type", Message: fmt.Sprintf("unknown input type: %s", cfg.Type)}
	}
	return nil
}

func validateOutput(cfg OutputConfig) error {
	if cfg.Good.Type == "" {
		return &ValidationError{Field: "output.good.type", Message: "good sink type is required"}
	}
	if cfg.Bad.Type == "" {
		return &ValidationError{Field: "output.bad.type", Message: "bad sink type is required"}
	}
	return nil
}

func validateConcurrency(cfg ConcurrencyConfig) error {
	if cfg.Enrich < 0 {
		return &ValidationError{Field: "concurrency.enrich", Message: "must be non-negative"}
	}
	if cfg.Sink < 0 {
		return &ValidationError{Field: "concurrency.sink", Message: "must be non-negative"}
	}
	return nil
}

func validateFeatureFlags(cfg FeatureFlagsConfig) error {
	if cfg.LegacyEnrichmentOrder {
		return &ValidationError{
			Field:   "featureFlags.legacyEnrichmentOrder",
			Message: "legacyEnrichmentOrder requires a documented legacy order, none is available in this build",
		}
	}
	return nil
}

var knownEnrichmentTypes = map[string]bool{
	constants.SourceTypeHTTP:       true,
	constants.SourceTypeSQL:        true,
	constants.SourceTypeGeoIP:      true,
	constants.SourceTypeUserAgent:  true,
	constants.SourceTypeExpression: true,
}

func validateEnrichments(entries []EnrichmentConfEntry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Type == "" {
			return &ValidationError{Field: fmt.Sprintf("enrichments[%d].type", i), Message: "type is required"}
		}
		if !knownEnrichmentTypes[e.Type] {
			return &ValidationError{
				Field:   fmt.Sprintf("enrichments[%d].type", i),
				Message: fmt.Sprintf("unknown enrichment type: %s (no builder registered)", e.Type),
			}
		}
		if e.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("enrichments[%d].name", i), Message: "name is required"}
		}
		if seen[e.Name] {
			return &ValidationError{Field: fmt.Sprintf("enrichments[%d].name", i), Message: fmt.Sprintf("duplicate enrichment name: %s", e.Name)}
		}
		seen[e.Name] = true

		for j, a := range e.Assets {
			if a.URI == "" {
				return &ValidationError{Field: fmt.Sprintf("enrichments[%d].assets[%d].uri", i, j), Message: "uri is required"}
			}
			if a.LocalPath == "" {
				return &ValidationError{Field: fmt.Sprintf("enrichments[%d].assets[%d].local_path", i, j), Message: "local_path is required"}
			}
		}
	}
	return nil
}

func validateLicense(cfg LicenseConfig) error {
	if !cfg.Accept {
		return &ValidationError{
			Field:   "license.accept",
			Message: fmt.Sprintf("license must be accepted in config or via %s=1", constants.EnvAcceptLimitedUseLicense),
		}
	}
	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "database.postgres.host", Message: "PostgreSQL host is required"}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{Field: "database.postgres.port", Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port)}
	}
	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{Field: "database.postgres.sslmode", Message: fmt.Sprintf("invalid SSL mode: %s", cfg.SSLMode)}
	}
	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{Field: "database.redis.host", Message: "Redis host is required"}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{Field: "database.redis.port", Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port)}
	}
	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return nil // optional: disables the EnrichmentConf declaration store
	}
	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{Field: "database.mongodb.uri", Message: "MongoDB URI must start with mongodb:// or mongodb+srv://"}
	}
	if cfg.Database == "" {
		return &ValidationError{Field: "database.mongodb.database", Message: "MongoDB database name is required"}
	}
	return nil
}

// validateDatabase only validates the database blocks that are actually
// in use. Postgres, Redis and MongoDB are all optional here, so an
// empty block is never an error, only a malformed one is. Whether an
// enrichment with a sql source has a Postgres connection is not
// checked here; the registry build rejects that enrichment instead.
func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}
	if cfg.Redis.Host != "" {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}
	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}
	return nil
}
