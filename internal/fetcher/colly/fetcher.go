// Package collyfetcher implements archive.Fetcher using gocolly. One Fetcher
// serves the page fetch and every asset download of a run.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxBodySize  = 32 << 20
	defaultMaxRedirects = 10
)

var (
	// ErrTooManyRedirects is returned when a fetch exceeds Config.MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrBodyTooLarge is returned when a response body exceeds
	// Config.MaxBodySize. The partial body is never handed out.
	ErrBodyTooLarge = errors.New("response body too large")
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// MaxBodySize caps response bodies in bytes. Zero selects 32 MiB and a
	// negative value removes the cap. A longer body fails the fetch with
	// ErrBodyTooLarge.
	MaxBodySize  int
	MaxRedirects int
}

// Fetcher implements archive.Fetcher. The base collector owns the shared
// HTTP client and redirect policy; each Fetch runs on a clone.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	switch {
	case cfg.MaxBodySize == 0:
		cfg.MaxBodySize = defaultMaxBodySize
	case cfg.MaxBodySize < 0:
		cfg.MaxBodySize = 0
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	base := colly.NewCollector(colly.Async(false))
	// The redirect check runs against the base collector.
	base.AllowURLRevisit = true
	base.WithTransport(newTransport())
	base.SetRequestTimeout(cfg.Timeout)
	base.SetRedirectHandler(func(req *http.Request, via []*http.Request) error {
		if len(via) >= cfg.MaxRedirects {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, len(via))
		}
		if req.URL.Host != via[len(via)-1].URL.Host {
			req.Header.Del("Authorization")
		}
		return nil
	})
	return &Fetcher{cfg: cfg, base: base}
}

// Fetch executes a single HTTP GET. Non-2xx responses are returned with
// their status code rather than as errors; transport failures are errors.
func (f *Fetcher) Fetch(ctx context.Context, request archive.FetchRequest) (archive.FetchResponse, error) {
	collector := f.collector()
	v := &visit{ctx: ctx, headers: request.Headers, limit: f.cfg.MaxBodySize, started: time.Now()}
	collector.OnRequest(v.onRequest)
	collector.OnResponse(v.onResponse)
	collector.OnError(v.onError)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return archive.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
	case err := <-done:
		if ctx.Err() != nil {
			return archive.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
		}
		if err == nil {
			err = v.err
		}
		if err != nil {
			return archive.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
		return v.result, nil
	}
}

func (f *Fetcher) collector() *colly.Collector {
	c := f.base.Clone()
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	// Clones share the visited-URL store, and one asset may be fetched by
	// several runs.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	// Colly silently truncates at MaxBodySize, so read one byte past the cap
	// to tell a body that fits from one that was cut.
	if f.cfg.MaxBodySize > 0 {
		c.MaxBodySize = f.cfg.MaxBodySize + 1
	} else {
		c.MaxBodySize = 0
	}
	return c
}

// visit collects the outcome of one collector run.
type visit struct {
	ctx     context.Context
	headers http.Header
	limit   int
	started time.Time
	result  archive.FetchResponse
	err     error
}

func (v *visit) onRequest(r *colly.Request) {
	if v.ctx.Err() != nil {
		r.Abort()
		return
	}
	for key, values := range v.headers {
		for _, value := range values {
			r.Headers.Add(key, value)
		}
	}
}

func (v *visit) onResponse(r *colly.Response) {
	if v.limit > 0 && len(r.Body) > v.limit {
		v.err = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, v.limit)
		return
	}
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	// After redirects the request URL is the one that produced the body.
	v.result = archive.FetchResponse{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Headers:    headers,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(v.started),
	}
}

func (v *visit) onError(_ *colly.Response, err error) {
	v.err = err
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       60 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
