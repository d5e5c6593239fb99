package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"enrich/internal/config"
	"enrich/internal/constants"
	"enrich/internal/logger"
	"enrich/pkg/logging"
)

var (
	configFile string
	igluFile   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "enrich",
		Short: "Streaming event enrichment engine",
		Long:  "enrich decodes collector payloads, runs them through an ordered enrichment pipeline, and routes the result to good, pii, or bad sinks.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")
	rootCmd.PersistentFlags().StringVar(&igluFile, "iglu", "", "Path to a local JSON file of schema documents keyed by schema key")

	rootCmd.AddCommand(runCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(constants.ExitConfigError)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the enrichment engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
				}
			}

			if os.Getenv(constants.EnvAcceptLimitedUseLicense) != "1" {
				earlyLog.Error("%s=1 must be set to run this engine", constants.EnvAcceptLimitedUseLicense)
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting enrich")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx, igluFile); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				os.Exit(constants.ExitConfigError)
			}

			log.InfowCtx(ctx, "Running Enrich")
			runErr := app.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer shutdownCancel()

			// A signal received from here on lands during the grace
			// period itself: the operator is asking for the shutdown
			// already in progress to be abandoned.
			forceSignal := make(chan os.Signal, 1)
			signal.Notify(forceSignal, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(forceSignal)

			shutdownDone := make(chan error, 1)
			go func() { shutdownDone <- app.Shutdown(shutdownCtx) }()

			var shutdownErr error
			select {
			case shutdownErr = <-shutdownDone:
			case <-forceSignal:
				log.ErrorwCtx(ctx, "Enrich shutdown forced")
				os.Exit(constants.ExitRuntimeError)
			case <-shutdownCtx.Done():
				log.ErrorwCtx(ctx, "Enrich shutdown forced", "error", shutdownCtx.Err())
				os.Exit(constants.ExitRuntimeError)
			}

			if shutdownErr != nil {
				log.ErrorwCtx(ctx, "Shutdown reported errors", "error", shutdownErr)
				os.Exit(constants.ExitRuntimeError)
			}

			if runErr != nil && runErr != context.Canceled {
				log.ErrorwCtx(ctx, "Engine stopped with error", "error", runErr)
				os.Exit(constants.ExitRuntimeError)
			}

			log.InfowCtx(ctx, "Enrich stopped")
			return nil
		},
	}
}
