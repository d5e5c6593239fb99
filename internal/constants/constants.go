package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 30 * time.Second
)

const (
	DefaultConcurrencyEnrich = 8
	DefaultConcurrencySink   = 8
)

const (
	DefaultEnrichmentTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixEnrich = "enrich:result:"
	CacheKeyPrefixSchema = "enrich:schema:negative:"
)

const (
	DefaultMongoDBName                      = "enrich"
	DefaultEnrichmentDeclarationsCollection = "enrichment_declarations"
	DefaultPostgresMigrationsPath           = "migrations/postgres"
)

const (
	DefaultMaxRecordSizeBytes = 1 << 20
)

const (
	SchemaResolveMaxAttempts     = 3
	SchemaResolveInitialInterval = 100 * time.Millisecond
	SchemaResolveMultiplier      = 2.0
)

const (
	SchemaCacheSize     = 10_000
	ValidationCacheSize = 10_000
)

const (
	DefaultLimit       = 100
	MaxLimit           = 1000
	DefaultTruncateLen = 256
)

const (
	ErrorHandlingFail      = "fail"
	ErrorHandlingSkipRule  = "skip_rule"
	ErrorHandlingSkipField = "skip_field"
)

const (
	SourceTypeHTTP       = "http"
	SourceTypeSQL        = "sql"
	SourceTypeGeoIP      = "geoip"
	SourceTypeUserAgent  = "useragent"
	SourceTypeExpression = "expression"
)

const (
	EnvAcceptLimitedUseLicense = "ACCEPT_LIMITED_USE_LICENSE"
)

const (
	ExitOK            = 0
	ExitConfigError   = 1
	ExitRuntimeError  = 2
)
