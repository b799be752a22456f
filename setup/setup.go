// Package setup turns a config.Config into the wired components shared by
// the nlflow server and CLI: the parser with its model fallback, the
// response cache, the workflow store and the observability providers.
//
//	comps, err := setup.Build(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer comps.Close(ctx)
//	wf, err := comps.Parser.Parse(ctx, "send an email to ops@example.com", nil)
package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoCodeAlone/nlflow/ai"
	copilotai "github.com/GoCodeAlone/nlflow/ai/copilot"
	"github.com/GoCodeAlone/nlflow/ai/llm"
	"github.com/GoCodeAlone/nlflow/cache"
	"github.com/GoCodeAlone/nlflow/config"
	"github.com/GoCodeAlone/nlflow/nlparse"
	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
	"github.com/GoCodeAlone/nlflow/store"
)

// Components are the long-lived collaborators built from a config.
type Components struct {
	Parser *nlparse.Parser
	// Service is nil when the model fallback is disabled.
	Service *ai.Service
	Store   store.WorkflowStore
	// Metrics is nil when metrics are disabled.
	Metrics *observability.Metrics
	// Cache is nil when caching is disabled.
	Cache ai.ResponseCache

	closers []func(context.Context) error
}

// Build wires every component described by cfg. On error, anything already
// opened is closed before returning.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Components{}

	if err := c.build(ctx, cfg, logger); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Metrics.Enabled {
		mc := observability.DefaultMetricsConfig()
		if cfg.Metrics.Namespace != "" {
			mc.Namespace = cfg.Metrics.Namespace
		}
		if cfg.Metrics.Path != "" {
			mc.MetricsPath = cfg.Metrics.Path
		}
		c.Metrics = observability.NewMetricsWithConfig(mc)
	}

	tracer := tracing.NewParseTracer(nil)
	if cfg.Tracing.Enabled {
		tp, err := tracing.NewProvider(ctx, tracing.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Tracing.ServiceName,
			Insecure:    cfg.Tracing.Insecure,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		c.closers = append(c.closers, tp.Shutdown)
		tracer = tp.ParseTracer()
		logger.Info("Tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	respCache, err := c.buildCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	c.Cache = respCache

	workflows, err := c.buildStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	c.Store = workflows

	var fallback nlparse.Fallback
	if cfg.AI.Enabled {
		svc, err := c.buildService(cfg.AI, respCache, cfg.Cache.TTL, tracer, logger)
		if err != nil {
			return err
		}
		c.Service = svc
		fallback = nlparse.NewModelFallback(svc, nlparse.FallbackConfig{
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
		})
	} else {
		logger.Info("Model fallback disabled")
	}

	c.Parser = nlparse.NewParser(nlparse.ParserConfig{
		Detector: nlparse.NewDetector(nlparse.DetectorOptions{RecursiveBranches: cfg.Parser.RecursiveBranches}),
		Fallback: fallback,
		Logger:   logger,
		Tracer:   tracer,
		Metrics:  c.Metrics,
	})
	return nil
}

func (c *Components) buildCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) (ai.ResponseCache, error) {
	switch cfg.Backend {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Address:    cfg.Redis.Address,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			Prefix:     cfg.Redis.Prefix,
			DefaultTTL: cfg.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return r.Close() })
		logger.Info("Using redis response cache", "address", cfg.Redis.Address)
		return r, nil
	default:
		mcfg := cache.DefaultMemoryConfig()
		if cfg.MaxSize > 0 {
			mcfg.MaxSize = cfg.MaxSize
		}
		if cfg.TTL > 0 {
			mcfg.DefaultTTL = cfg.TTL
		}
		m := cache.NewMemory(mcfg)
		janitorCtx, cancel := context.WithCancel(context.Background())
		m.StartJanitor(janitorCtx, time.Minute)
		c.closers = append(c.closers, func(context.Context) error { cancel(); return nil })
		return m, nil
	}
}

func (c *Components) buildStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.WorkflowStore, error) {
	if cfg.Backend != config.StorePostgres {
		return store.NewMemoryStore(), nil
	}
	pg, err := store.NewPGStore(ctx, store.PGConfig{
		URL:      cfg.Postgres.URL,
		MaxConns: cfg.Postgres.MaxConns,
		Migrate:  cfg.Postgres.Migrate,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { pg.Close(); return nil })
	logger.Info("Using postgres workflow store")
	return pg, nil
}

func (c *Components) buildService(cfg config.AIConfig, respCache ai.ResponseCache, ttl time.Duration, tracer *tracing.ParseTracer, logger *slog.Logger) (*ai.Service, error) {
	guardrails, err := ai.NewGuardrails(cfg.Guardrails)
	if err != nil {
		return nil, fmt.Errorf("guardrails: %w", err)
	}

	svc := ai.NewService(ai.ServiceConfig{
		Preferred:         ai.Provider(cfg.Provider),
		RequestsPerMinute: cfg.RequestsPerMinute,
		CallTimeout:       cfg.CallTimeout,
		Cache:             respCache,
		CacheTTL:          ttl,
		Guardrails:        guardrails,
		Logger:            logger,
		Metrics:           c.Metrics,
		Tracer:            tracer,
	})

	client, err := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.Anthropic.APIKey,
		Model:   cfg.Anthropic.Model,
		BaseURL: cfg.Anthropic.BaseURL,
		Timeout: cfg.Anthropic.Timeout,
	})
	if err != nil {
		logger.Warn("Anthropic provider unavailable", "error", err)
	} else {
		svc.RegisterGenerator(ai.ProviderAnthropic, client)
		logger.Info("Registered Anthropic AI provider", "model", client.Model())
	}

	if cfg.Copilot.CLIPath != "" {
		client, err := copilotai.NewClient(copilotai.ClientConfig{
			CLIPath: cfg.Copilot.CLIPath,
			Model:   cfg.Copilot.Model,
			Logger:  logger,
		})
		if err != nil {
			logger.Warn("Failed to create Copilot client", "error", err)
		} else {
			svc.RegisterGenerator(ai.ProviderCopilot, client)
			logger.Info("Registered Copilot AI provider")
		}
	} else {
		logger.Debug("Copilot provider unavailable: no CLI path configured")
	}

	if len(svc.Providers()) == 0 {
		logger.Warn("No model providers registered, unmatched instructions will degrade")
	}
	return svc, nil
}

// Providers lists the registered model providers for health reporting.
func (c *Components) Providers() []string {
	if c.Service == nil {
		return []string{}
	}
	ps := c.Service.Providers()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

// Close releases everything Build opened, in reverse order.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
