package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GoCodeAlone/nlflow/observability"
	"github.com/GoCodeAlone/nlflow/observability/tracing"
)

// Middleware holds the per-IP limiter state and the collaborators used by
// the request middlewares.
type Middleware struct {
	metrics *observability.Metrics
	logger  *slog.Logger
	limiter *rateLimiterStore
}

// NewMiddleware creates a new Middleware. Both arguments may be nil.
func NewMiddleware(metrics *observability.Metrics, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{metrics: metrics, logger: logger}
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterStore holds per-IP limiters for a single endpoint group.
type rateLimiterStore struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	b        int
	stopCh   chan struct{}
	stopOnce sync.Once
}

func newRateLimiterStore(requestsPerMinute int) *rateLimiterStore {
	s := &rateLimiterStore{
		limiters: make(map[string]*ipLimiter),
		r:        rate.Limit(float64(requestsPerMinute) / 60.0),
		b:        requestsPerMinute,
		stopCh:   make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// cleanup periodically removes stale entries until stop is called.
func (s *rateLimiterStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictIdle(time.Now(), 10*time.Minute)
		case <-s.stopCh:
			return
		}
	}
}

func (s *rateLimiterStore) evictIdle(now time.Time, idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for ip, l := range s.limiters {
		if now.Sub(l.lastSeen) > idle {
			delete(s.limiters, ip)
			n++
		}
	}
	return n
}

func (s *rateLimiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[ip]
	if !ok {
		l = &ipLimiter{limiter: rate.NewLimiter(s.r, s.b)}
		s.limiters[ip] = l
	}
	l.lastSeen = time.Now()
	return l.limiter
}

// Stop shuts down the background cleanup goroutine started by RateLimit.
// It is safe to call multiple times.
func (m *Middleware) Stop() {
	if m.limiter != nil {
		m.limiter.stopOnce.Do(func() { close(m.limiter.stopCh) })
	}
}

// RateLimit returns middleware that limits requests per IP to
// requestsPerMinute. Requests over the limit receive HTTP 429 with a
// Retry-After header. A non-positive limit returns a pass-through
// middleware.
func (m *Middleware) RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if m.limiter == nil {
		m.limiter = newRateLimiterStore(requestsPerMinute)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := m.limiter.get(realIP(r))
			reservation := limiter.Reserve()
			if d := reservation.Delay(); d > 0 {
				// Return the token; this request is rejected.
				reservation.Cancel()
				retryAfter := int(math.Ceil(d.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Instrument records request counts and latency labelled by the matched
// route pattern, and logs each request at debug level.
func (m *Middleware) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := tracing.Route(r)
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		m.metrics.RecordHTTPRequest(r.Method, route, rec.status, elapsed)
		m.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", elapsed,
		)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// realIP extracts the client IP from common proxy headers or RemoteAddr.
func realIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	// Strip port from RemoteAddr, handling IPv6 addresses correctly.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
