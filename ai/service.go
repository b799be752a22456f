package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
)

// ResponseCache stores model replies keyed by a hash of the request.
// cache.Memory and cache.Redis implement it.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// Preferred selects the provider. ProviderAuto (the default) prefers
	// anthropic, then copilot, then any registered generator.
	Preferred Provider
	// RequestsPerMinute caps requests that miss the cache. Zero disables
	// the limit.
	RequestsPerMinute int
	// CallTimeout bounds one upstream call. Zero means two minutes.
	CallTimeout time.Duration
	Cache       ResponseCache
	CacheTTL    time.Duration
	Guardrails  *Guardrails
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Tracer      *tracing.ParseTracer
}

const defaultCallTimeout = 2 * time.Minute

// Service coordinates multiple text generator backends with provider
// selection, guardrails, caching and rate limiting. It implements
// TextGenerator itself.
type Service struct {
	generators map[Provider]TextGenerator
	preferred  Provider
	mu         sync.RWMutex

	limiter     *rate.Limiter
	group       singleflight.Group
	callTimeout time.Duration
	cache       ResponseCache
	cacheTTL    time.Duration
	guardrails  *Guardrails
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      *tracing.ParseTracer
}

// NewService creates a new AI service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		generators:  make(map[Provider]TextGenerator),
		preferred:   cfg.Preferred,
		cache:       cfg.Cache,
		cacheTTL:    cfg.CacheTTL,
		callTimeout: cfg.CallTimeout,
		guardrails:  cfg.Guardrails,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
	}
	if s.callTimeout <= 0 {
		s.callTimeout = defaultCallTimeout
	}
	if s.preferred == "" {
		s.preferred = ProviderAuto
	}
	if cfg.RequestsPerMinute > 0 {
		perSecond := rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		s.limiter = rate.NewLimiter(perSecond, cfg.RequestsPerMinute)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = tracing.NewParseTracer(nil)
	}
	return s
}

// RegisterGenerator registers a generator for a provider.
func (s *Service) RegisterGenerator(provider Provider, gen TextGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generators[provider] = gen
}

// SetPreferred sets the preferred provider. Use ProviderAuto to auto-select.
func (s *Service) SetPreferred(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred = provider
}

// Providers returns the registered provider names in sorted order.
func (s *Service) Providers() []Provider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	providers := make([]Provider, 0, len(s.generators))
	for p := range s.generators {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

func (s *Service) generator() (Provider, TextGenerator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.preferred != ProviderAuto {
		gen, ok := s.generators[s.preferred]
		if !ok {
			return "", nil, fmt.Errorf("%w: provider %q", ErrNoGenerator, s.preferred)
		}
		return s.preferred, gen, nil
	}

	// Auto-select: prefer anthropic, then copilot, then any
	for _, p := range []Provider{ProviderAnthropic, ProviderCopilot} {
		if gen, ok := s.generators[p]; ok {
			return p, gen, nil
		}
	}

	// Fall back to the first registered generator by name so the choice is
	// stable across calls.
	var names []Provider
	for p := range s.generators {
		names = append(names, p)
	}
	if len(names) == 0 {
		return "", nil, ErrNoGenerator
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names[0], s.generators[names[0]], nil
}

// Complete runs guardrails, consults the response cache, and forwards the
// request to the selected provider. Identical concurrent requests share one
// upstream call. That call is not cancelled with any one caller's ctx and is
// bounded by the service's call timeout; each caller still returns as soon
// as its own ctx ends.
func (s *Service) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	provider, gen, err := s.generator()
	if err != nil {
		return nil, err
	}

	if s.guardrails != nil {
		req, err = s.guardrails.Apply(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	key := CacheKey(provider, req)
	if s.cache != nil {
		content, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("Model response cache lookup failed", "error", err)
		}
		s.metrics.RecordCacheLookup(ok)
		if ok {
			return &CompletionResponse{Model: req.Model, Content: content, FinishReason: "cached"}, nil
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.metrics.RecordModelCall(string(provider), "rate_limited")
			return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}

	ch := s.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
		defer cancel()
		return s.call(callCtx, provider, gen, req, key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			s.logger.Debug("Shared in-flight model call", "provider", provider)
		}
		resp := *res.Val.(*CompletionResponse)
		return &resp, nil
	}
}

func (s *Service) call(ctx context.Context, provider Provider, gen TextGenerator, req CompletionRequest, key string) (*CompletionResponse, error) {
	ctx, span := s.tracer.StartModelCall(ctx, string(provider), req.Model)
	defer span.End()

	start := time.Now()
	resp, err := gen.Complete(ctx, req)
	if err == nil && resp == nil {
		err = fmt.Errorf("provider %s returned no response", provider)
	}
	if err != nil {
		s.tracer.RecordError(span, err)
		s.metrics.RecordModelCall(string(provider), "error")
		s.logger.Debug("Model call failed", "provider", provider, "error", err)
		return nil, err
	}
	s.tracer.SetSuccess(span)
	s.metrics.RecordModelCall(string(provider), "success")
	s.logger.Debug("Model call completed", "provider", provider,
		"duration", time.Since(start),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"estimated_cost", EstimateCost(resp.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens))

	if s.guardrails != nil {
		if result := s.guardrails.CheckOutput(resp.Content); !result.Allowed {
			return nil, fmt.Errorf("%w: %v", ErrBlocked, result.Reasons)
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp.Content, s.cacheTTL); err != nil {
			s.logger.Warn("Failed to cache model response", "error", err)
		}
	}
	return resp, nil
}

// CacheKey derives a stable cache key from everything that influences the
// model's reply.
func CacheKey(provider Provider, req CompletionRequest) string {
	payload, _ := json.Marshal(struct {
		Provider     Provider  `json:"p"`
		Model        string    `json:"m"`
		SystemPrompt string    `json:"s"`
		Messages     []Message `json:"msgs"`
		MaxTokens    int       `json:"t"`
		Temperature  float64   `json:"temp"`
	}{provider, req.Model, req.SystemPrompt, req.Messages, req.MaxTokens, req.Temperature})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
