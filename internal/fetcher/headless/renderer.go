// Package headless renders pages in headless Chrome so the archive captures
// the DOM produced by client-side scripts.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/page-archiver/internal/archive"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettleDelay       = 500 * time.Millisecond
)

// DefaultBlockedURLs are resources the browser skips while rendering. The
// archiver downloads referenced assets itself, so the tab never needs them.
var DefaultBlockedURLs = []string{"*.mp4", "*.webm", "*.m3u8", "*.mp3"}

// serializeDocument returns the live DOM with its doctype so a rendered
// snapshot opens in the same rendering mode as the original.
const serializeDocument = `(() => {
	const dt = document.doctype;
	const prefix = dt ? new XMLSerializer().serializeToString(dt) + "\n" : "";
	return prefix + document.documentElement.outerHTML;
})()`

// Config controls the behavior of the renderer.
type Config struct {
	// MaxParallel bounds concurrent tabs. Zero means unbounded.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is how long to wait after the body is ready for late
	// scripts to finish mutating the DOM.
	SettleDelay time.Duration
	BlockedURLs []string
}

// Renderer implements archive.Fetcher with chromedp. It only renders the
// page itself; assets are always fetched over plain HTTP.
type Renderer struct {
	cfg      Config
	slots    *semaphore.Weighted
	logger   *zap.Logger
	browser  context.Context
	shutdown context.CancelFunc
}

// New prepares a renderer. Chrome is launched lazily by the first Fetch.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0, got %d", cfg.MaxParallel)
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var slots *semaphore.Weighted
	if cfg.MaxParallel > 0 {
		slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("enable-automation", false),
	)
	browser, shutdown := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Renderer{
		cfg:      cfg,
		slots:    slots,
		logger:   logger,
		browser:  browser,
		shutdown: shutdown,
	}, nil
}

// Close stops the browser process, if one was started.
func (r *Renderer) Close() {
	r.shutdown()
}

// Fetch renders request.URL in a fresh tab and returns the serialized DOM.
// Status, headers, and final URL come from the main-frame document response.
func (r *Renderer) Fetch(ctx context.Context, request archive.FetchRequest) (archive.FetchResponse, error) {
	if err := r.acquire(ctx); err != nil {
		return archive.FetchResponse{}, err
	}
	defer r.release()

	tab, closeTab := chromedp.NewContext(r.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, r.cfg.NavigationTimeout)
	defer cancel()
	// The tab hangs off the long-lived browser context, so tie it to the caller.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentTracker{}
	chromedp.ListenTarget(tab, doc.observe)

	var location, html string
	started := time.Now()
	err := chromedp.Run(tab,
		r.prepareTab(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.Evaluate(serializeDocument, &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return archive.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, ctx.Err())
		}
		return archive.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}

	response := doc.response(request.URL, location)
	response.Body = []byte(html)
	response.Duration = time.Since(started)
	response.UsedHeadless = true

	r.logger.Debug("page rendered",
		zap.String("url", response.URL),
		zap.Int("status", response.StatusCode),
		zap.Int("redirects", doc.redirectCount()),
		zap.Int("bytes", len(response.Body)),
		zap.Duration("duration", response.Duration),
	)
	return response, nil
}

func (r *Renderer) prepareTab(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(r.cfg.BlockedURLs) > 0 {
			if err := network.SetBlockedURLs(r.cfg.BlockedURLs).Do(ctx); err != nil {
				return fmt.Errorf("block urls: %w", err)
			}
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := networkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.slots == nil {
		return nil
	}
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for render slot: %w", err)
	}
	return nil
}

func (r *Renderer) release() {
	if r.slots != nil {
		r.slots.Release(1)
	}
}

// networkHeaders converts request headers to the CDP representation. Repeated
// values are folded into one comma-separated value, as Chrome expects.
func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		out[key] = strings.Join(values, ", ")
	}
	return out
}
