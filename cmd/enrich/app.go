package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	"enrich/internal/adminserver"
	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/decoder"
	"enrich/internal/enrichment"
	"enrich/internal/logger"
	"enrich/internal/management"
	"enrich/internal/registry"
	"enrich/internal/runtime"
	"enrich/internal/schema"
	"enrich/internal/sourcesink"
	"enrich/pkg/bootstrap"
	"enrich/pkg/cache"
	"enrich/pkg/cel"
	"enrich/pkg/health"
	"enrich/pkg/logging"
	"enrich/pkg/metrics"
	"enrich/pkg/migrations"
	"enrich/pkg/tracing"
)

// App wires every component SPEC_FULL.md names into one running
// process: a Runtime pumping records through the enrichment
// pipeline, an AssetManager keeping its Registry current, and an
// admin HTTP server for operators. Initialize constructs everything;
// Run blocks until one of Runtime.Run, AssetManager.Run, or the admin
// server dies, at which point the whole process shuts down together.
type App struct {
	*bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector

	redis       *redis.Client
	postgresDB  *sql.DB
	mongoClient *mongo.Client

	tracerProvider *tracing.TracerProvider

	source       sourcesink.RecordSource
	checkpointer sourcesink.Checkpointer
	goodSink     sourcesink.AttributedSink
	piiSink      sourcesink.AttributedSink
	badSink      sourcesink.ByteSink
	notifySink   sourcesink.ByteSink

	reg          *registry.EnrichmentRegistry
	gate         *registry.PauseGate
	assetManager *registry.AssetManager
	runtime      *runtime.Runtime
	adminServer  *adminserver.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("enrich")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

// Initialize connects every backing store, builds the enrichment
// Registry once (synchronously, so a broken config fails startup
// rather than running with an empty registry), and assembles the
// Runtime and admin server around it. A failure to connect or migrate
// an optional backing store (Redis, Postgres, MongoDB) only logs a
// warning and leaves that store unused; every other failing step is
// fatal, so an engine with a half-built Registry does not start serving.
func (a *App) Initialize(ctx context.Context, igluSchemaFile string) error {
	initCtx := logging.WithServiceName(ctx, "enrich")

	if err := a.initDatabases(initCtx); err != nil {
		return err
	}

	tp, err := tracing.Init(a.Config.Tracing, "enrich")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterPipelineMetrics()
	metrics.RegisterRegistryMetrics()
	metrics.RegisterRuntimeMetrics()
	metrics.RegisterProviderMetrics()
	metrics.RegisterAdminServerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	pipeline, err := a.buildPipeline(initCtx, igluSchemaFile)
	if err != nil {
		return err
	}

	if err := a.buildSourcesAndSinks(); err != nil {
		return err
	}

	a.reg = registry.NewEnrichmentRegistry()
	a.gate = registry.NewPauseGate()

	a.runtime = runtime.New(
		a.source,
		a.checkpointer,
		decoder.New(a.Config.Input.MaxRecordSizeBytes, a.Config.FeatureFlags.TryBase64Decoding),
		pipeline,
		a.reg,
		a.gate,
		runtime.Sinks{Good: a.goodSink, Pii: a.piiSink, Bad: a.badSink},
		a.Config.Concurrency,
		a.Config.FeatureFlags,
		a.Logger,
	)

	a.assetManager = a.buildAssetManager(initCtx)

	if err := a.assetManager.Startup(initCtx); err != nil {
		return fmt.Errorf("failed to build initial registry: %w", err)
	}

	a.adminServer = adminserver.New(a.Config.Server, a.Config.Tracing, a.reg, a.buildHealthRegistry(), a.Logger)

	a.RegisterShutdown("admin server", a.adminServer.Shutdown)
	a.RegisterShutdown("runtime", a.runtime.Shutdown)
	a.RegisterShutdown("record source", func(context.Context) error { return a.source.Close() })
	if a.notifySink != nil {
		a.RegisterShutdown("swap notifier", func(context.Context) error { return a.notifySink.Close() })
	}
	a.RegisterShutdown("tracing", a.tracerProvider.Shutdown)

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	if a.Config.Database.Redis.Host != "" {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			a.Logger.WarnwCtx(ctx, "Redis initialization failed, result and negative caching disabled", "error", err)
		} else {
			a.redis = rdb
		}
	}

	postgresDB, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "PostgreSQL initialization failed, SQL enrichments and build audit disabled", "error", err)
	} else if postgresDB != nil {
		if err := migrations.RunPostgresMigrations(postgresDB, a.Config.Database.Postgres.MigrationsPath); err != nil {
			a.Logger.WarnwCtx(ctx, "postgres migrations failed, build audit disabled", "error", err)
			postgresDB.Close()
		} else {
			a.postgresDB = postgresDB
		}
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.Logger.WarnwCtx(ctx, "MongoDB initialization failed, centrally administered enrichments disabled", "error", err)
	} else if mongoClient != nil {
		db := mongoClient.Database(a.Config.Database.MongoDB.Database)
		if err := migrations.EnsureEnrichmentDeclarationsIndexes(ctx, db, a.Config.Database.MongoDB.Collection); err != nil {
			a.Logger.WarnwCtx(ctx, "mongodb index setup failed, centrally administered enrichments disabled", "error", err)
			mongoClient.Disconnect(ctx)
		} else {
			a.mongoClient = mongoClient
		}
	}

	return nil
}

func (a *App) buildPipeline(ctx context.Context, igluSchemaFile string) (*enrichment.Pipeline, error) {
	var resolver schema.Resolver
	if igluSchemaFile != "" {
		fileResolver, err := schema.NewFileResolver(igluSchemaFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load iglu schema file: %w", err)
		}
		resolver = fileResolver
	} else {
		a.Logger.WarnwCtx(ctx, "no --iglu schema file configured, every schema lookup will resolve not-found")
		resolver = schema.NewMemoryResolver(nil)
	}

	var negative *cache.NegativeCache
	if a.redis != nil {
		negative = cache.NewNegativeCache(a.redis, time.Duration(a.Config.Database.Redis.TTLSeconds)*time.Second)
	}

	validator, err := schema.NewValidatorWithNegativeCache(resolver, a.Logger, negative)
	if err != nil {
		return nil, fmt.Errorf("failed to build schema validator: %w", err)
	}

	return enrichment.NewPipeline(validator, a.Logger, constants.DefaultEnrichmentTimeout), nil
}

func (a *App) buildAssetManager(ctx context.Context) *registry.AssetManager {
	var resultCache *cache.ResultCache
	if a.redis != nil {
		resultCache = cache.NewResultCache(a.redis, time.Duration(a.Config.Database.Redis.TTLSeconds)*time.Second)
	}

	evaluator, err := cel.NewEvaluator()
	if err != nil {
		a.Logger.WarnwCtx(ctx, "CEL evaluator unavailable, expression enrichments disabled", "error", err)
	}

	deps := registry.BuildDeps{
		Postgres:    a.postgresDB,
		Evaluator:   evaluator,
		ResultCache: resultCache,
	}

	mgr := registry.NewAssetManager(a.reg, a.gate, a.Config.Enrichments, a.Config.Assets, deps, a.runtime.Drain, a.Logger)

	if a.postgresDB != nil {
		mgr = mgr.WithAudit(management.NewAuditLogger(a.postgresDB))
	}
	if a.notifySink != nil {
		mgr = mgr.WithNotifier(management.NewSwapNotifier(a.notifySink))
	}
	if a.mongoClient != nil {
		mgr = mgr.WithConfRepository(management.NewConfRepository(a.mongoClient, a.Config.Database.MongoDB.Database, a.Config.Database.MongoDB.Collection))
	}

	return mgr
}

func (a *App) buildSourcesAndSinks() error {
	if a.Config.Input.Type != "kafka" {
		return fmt.Errorf("unsupported input type %q", a.Config.Input.Type)
	}
	source := sourcesink.NewKafkaSource(a.Config.Input.Kafka, a.Logger)
	a.source = source
	a.checkpointer = sourcesink.NewKafkaCheckpointer(source)

	good, err := a.buildAttributedSink(a.Config.Output.Good, "good")
	if err != nil {
		return err
	}
	a.goodSink = good

	pii, err := a.buildAttributedSink(a.Config.Output.Pii, "pii")
	if err != nil {
		return err
	}
	a.piiSink = pii

	if a.Config.Output.Bad.Type != "kafka" {
		return fmt.Errorf("unsupported bad output type %q", a.Config.Output.Bad.Type)
	}
	a.badSink = sourcesink.NewKafkaByteSink(a.Config.Output.Bad.Kafka, a.Logger)

	if a.Config.Notifications.Kafka.Topic != "" {
		a.notifySink = sourcesink.NewKafkaByteSink(a.Config.Notifications.Kafka, a.Logger)
	}

	return nil
}

func (a *App) buildAttributedSink(cfg config.SinkConfig, name string) (sourcesink.AttributedSink, error) {
	if cfg.Type != "kafka" {
		return nil, fmt.Errorf("unsupported %s output type %q", name, cfg.Type)
	}
	return sourcesink.NewKafkaAttributedSink(cfg.Kafka, a.Logger), nil
}

func (a *App) buildHealthRegistry() *health.CheckerRegistry {
	reg := health.NewCheckerRegistry()
	if a.redis != nil {
		reg.Register(health.NewRedisChecker(a.redis))
	}
	if a.postgresDB != nil {
		reg.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}
	if a.mongoClient != nil {
		reg.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	return reg
}

// Run blocks until Runtime.Run, AssetManager.Run, or the admin server
// returns an error (or ctx is cancelled), then brings the whole
// process down together: a dead AssetManager serving a Runtime that
// keeps ingesting against a registry that will never refresh again is
// worse than stopping.
func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runtime.Run(gCtx)
	})
	g.Go(func() error {
		return a.assetManager.Run(gCtx)
	})
	g.Go(func() error {
		if err := a.adminServer.Run(gCtx); err != nil {
			return err
		}
		return nil
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "enrich")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down enrich")

	additionalShutdown := func(ctx context.Context) []error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.dbConnector.ShutdownDatabases(shutdownCtx, a.redis, a.postgresDB, a.mongoClient)
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}
