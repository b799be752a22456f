package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/GoCodeAlone/nlflow/api"
	"github.com/GoCodeAlone/nlflow/config"
	"github.com/GoCodeAlone/nlflow/setup"
)

var (
	configFile     = flag.String("config", "", "Path to nlflow configuration YAML file")
	addr           = flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	copilotCLI     = flag.String("copilot-cli", "", "Path to Copilot CLI binary")
	copilotModel   = flag.String("copilot-model", "", "Model to use with Copilot SDK")
	anthropicKey   = flag.String("anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env)")
	anthropicModel = flag.String("anthropic-model", "", "Anthropic model name")
	provider       = flag.String("provider", "", "Preferred model provider: auto, anthropic or copilot")
	logLevel       = flag.String("log-level", "", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(*configFile)
		if err != nil {
			return nil, err
		}
	}
	applyFlags(cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cfg *config.Config) {
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *copilotCLI != "" {
		cfg.AI.Copilot.CLIPath = *copilotCLI
	}
	if *copilotModel != "" {
		cfg.AI.Copilot.Model = *copilotModel
	}
	if *anthropicKey != "" {
		cfg.AI.Anthropic.APIKey = *anthropicKey
	}
	if *anthropicModel != "" {
		cfg.AI.Anthropic.Model = *anthropicModel
	}
	if *provider != "" {
		cfg.AI.Provider = *provider
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
}

// run serves the API until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	comps, err := setup.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(context.Background()); err != nil {
			logger.Warn("Component shutdown error", "error", err)
		}
	}()

	router := newRouter(cfg, comps, logger)
	defer router.Close()

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", cfg.Server.Addr, "providers", comps.Providers())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

func newRouter(cfg *config.Config, comps *setup.Components, logger *slog.Logger) *api.Router {
	return api.NewRouter(comps.Parser, comps.Store, api.Config{
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		Metrics:            comps.Metrics,
		Tracing:            cfg.Tracing.Enabled,
		Logger:             logger,
		Health: func() map[string]any {
			return map[string]any{"providers": comps.Providers()}
		},
	})
}
