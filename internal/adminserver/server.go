package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"enrich/internal/config"
	"enrich/internal/logger"
	"enrich/internal/registry"
	"enrich/pkg/health"
	"enrich/pkg/middleware"
	"enrich/pkg/ratelimit"
	"enrich/pkg/tracing"
)

// Server is the admin-facing HTTP surface: health, Prometheus
// scraping, and a read-only view of the active Registry. It never
// sits in the hot path between source and sinks; Runtime and
// AssetManager run independently of whether this server is even
// reachable.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

func New(cfg config.ServerConfig, tracingCfg config.TracingConfig, reg *registry.EnrichmentRegistry, healthRegistry *health.CheckerRegistry, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if tracingCfg.Enabled {
		router.Use(tracing.GinMiddleware("enrich"))
	}
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())

	if cfg.RateLimit.Enabled {
		router.Use(ratelimit.RateLimitMiddleware(ratelimit.RateLimitConfig{
			RPS:             cfg.RateLimit.RPS,
			Burst:           cfg.RateLimit.Burst,
			CleanupInterval: cfg.RateLimit.CleanupInterval,
			MaxAge:          cfg.RateLimit.MaxAge,
		}))
	}

	NewHandler(reg, healthRegistry, log).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  orDefault(cfg.ReadTimeoutSeconds, 10*time.Second),
			WriteTimeout: orDefault(cfg.WriteTimeoutSeconds, 10*time.Second),
		},
		logger: log,
	}
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Run blocks serving HTTP until ctx is cancelled or the listener is
// closed by Shutdown. ListenAndServe itself doesn't observe ctx, so a
// background goroutine translates cancellation into a graceful
// Shutdown call.
func (s *Server) Run(ctx context.Context) error {
	s.logger.InfowCtx(ctx, "admin server starting", "addr", s.httpServer.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
