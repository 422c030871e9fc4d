// Package ratelimit throttles outbound fetches per host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables
// throttling.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	metrics.Init()
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for rawURL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Fetcher delays each request of the wrapped fetcher until its host has a
// token.
type Fetcher struct {
	inner   archive.Fetcher
	limiter *Limiter
}

// Wrap returns inner throttled by limiter.
func Wrap(inner archive.Fetcher, limiter *Limiter) *Fetcher {
	return &Fetcher{inner: inner, limiter: limiter}
}

// Fetch waits for a token, then delegates.
func (f *Fetcher) Fetch(ctx context.Context, req archive.FetchRequest) (archive.FetchResponse, error) {
	if err := f.limiter.Wait(ctx, req.URL); err != nil {
		return archive.FetchResponse{}, err
	}
	resp, err := f.inner.Fetch(ctx, req)
	if err != nil {
		return resp, fmt.Errorf("throttled fetch: %w", err)
	}
	return resp, nil
}
