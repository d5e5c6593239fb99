package bootstrap

import (
	"context"
	"fmt"

	"enrich/internal/config"
	"enrich/internal/logger"
)

// Base accumulates named shutdown steps as cmd/enrich wires up its
// components (Runtime, AssetManager, admin server, database
// connections) and runs every one of them during Shutdown regardless
// of whether an earlier step failed, collecting every error rather
// than stopping at the first.
type Base struct {
	Config *config.Config
	Logger logger.Logger

	steps []shutdownStep
}

type shutdownStep struct {
	name string
	fn   func(ctx context.Context) error
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{Config: cfg, Logger: log}
}

// RegisterShutdown adds a step to run during Shutdown, in the order
// registered.
func (b *Base) RegisterShutdown(name string, fn func(ctx context.Context) error) {
	b.steps = append(b.steps, shutdownStep{name: name, fn: fn})
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Info("Shutting down application...")

	var errs []error
	for _, step := range b.steps {
		if err := step.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s shutdown error: %w", step.name, err))
		}
	}

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Info("Application exited successfully")
	return nil
}
