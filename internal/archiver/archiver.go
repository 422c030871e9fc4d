// Package archiver runs the archive state machine for one page: fetch,
// parse, discover assets, resolve them through a bounded download pool, and
// persist the rewritten page with its manifest.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/asset"
	"github.com/JakeFAU/page-archiver/internal/document"
	"github.com/JakeFAU/page-archiver/internal/metrics"
	"github.com/JakeFAU/page-archiver/internal/storage"
)

// Missing-extension policies.
const (
	MissingExtensionStore = "store"
	MissingExtensionSkip  = "skip"
)

const (
	defaultWorkers          = 4
	defaultMaxStoreFailures = 3
)

// Config controls Archiver behavior.
type Config struct {
	Workers          int
	MissingExtension string
	MaxStoreFailures int
	// Topic receives a completion event after each persisted run. Empty
	// disables publishing.
	Topic string
}

// Archiver archives single pages. It is safe for concurrent use; each call
// to Archive owns its own Document.
type Archiver struct {
	fetcher   archive.Fetcher
	headless  archive.Fetcher
	detector  archive.HeadlessDetector
	backend   archive.Backend
	hasher    archive.Hasher
	resolver  *asset.Resolver
	publisher archive.Publisher
	clock     archive.Clock
	rules     []document.Rule
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Archiver. headless, detector and publisher may be nil.
func New(
	fetcher archive.Fetcher,
	headless archive.Fetcher,
	detector archive.HeadlessDetector,
	backend archive.Backend,
	hasher archive.Hasher,
	resolver *asset.Resolver,
	publisher archive.Publisher,
	clock archive.Clock,
	cfg Config,
	logger *zap.Logger,
) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = asset.NewResolver(nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxStoreFailures <= 0 {
		cfg.MaxStoreFailures = defaultMaxStoreFailures
	}
	if cfg.MissingExtension == "" {
		cfg.MissingExtension = MissingExtensionStore
	}
	metrics.Init()
	return &Archiver{
		fetcher:   fetcher,
		headless:  headless,
		detector:  detector,
		backend:   backend,
		hasher:    hasher,
		resolver:  resolver,
		publisher: publisher,
		clock:     clock,
		rules:     document.DefaultRules,
		cfg:       cfg,
		logger:    logger,
	}
}

// Archive runs one page through every phase. On failure the returned error
// is a *archive.PhaseError naming the phase that could not be reached, and
// the Result carries the last state reached.
func (a *Archiver) Archive(ctx context.Context, req archive.Request) (archive.Result, error) {
	start := a.clock.Now()
	result := archive.Result{URL: req.URL, State: archive.StatePending}
	log := a.logger.With(zap.String("url", req.URL), zap.String("prefix", req.Prefix))

	result, err := a.run(ctx, req, result, log)
	status := string(archive.RunStatusSucceeded)
	switch {
	case err != nil && ctx.Err() != nil:
		status = string(archive.RunStatusCanceled)
	case err != nil:
		status = string(archive.RunStatusFailed)
	}
	metrics.ObserveRun(status, a.clock.Now().Sub(start))
	if err != nil {
		log.Warn("archive failed", zap.String("state", string(result.State)), zap.Error(err))
		return result, err
	}
	log.Info("archive persisted",
		zap.String("index_url", result.IndexURL),
		zap.Int("discovered", result.Discovered),
		zap.Int("stored", len(result.Manifest)),
		zap.Int("skipped", len(result.Skipped)),
	)
	a.publish(ctx, req, result, log)
	return result, nil
}

func (a *Archiver) run(
	ctx context.Context,
	req archive.Request,
	result archive.Result,
	log *zap.Logger,
) (archive.Result, error) {
	pageURL, err := ValidateURL(req.URL)
	if err != nil {
		return result, phaseErr(archive.StatePending, err)
	}
	backend := storage.WithPrefix(a.backend, req.Prefix)

	resp, err := a.fetchPage(ctx, pageURL, log)
	if err != nil {
		return result, phaseErr(archive.StateFetched, err)
	}
	result.State = archive.StateFetched

	doc, err := document.Parse(pageURL, resp.Body)
	if err != nil {
		return result, phaseErr(archive.StateParsed, err)
	}
	result.State = archive.StateParsed

	groups := a.discover(doc, log)
	result.Discovered = len(groups)
	result.State = archive.StateDiscovered
	log.Debug("assets discovered", zap.Int("unique", len(groups)))

	manifest, skipped, err := a.resolve(ctx, backend, pageURL.Host, groups, log)
	if err != nil {
		return result, phaseErr(archive.StateResolved, err)
	}
	result.Skipped = skipped
	result.Manifest = manifest
	result.State = archive.StateResolved

	if err := a.persist(ctx, backend, doc, manifest); err != nil {
		return result, phaseErr(archive.StatePersisted, err)
	}
	result.IndexURL = backend.URLFor(archive.IndexName)
	result.State = archive.StatePersisted
	return result, nil
}

// ValidateURL accepts absolute http and https URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", archive.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", archive.ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host: %q", archive.ErrInvalidURL, raw)
	}
	return u, nil
}

// fetchPage probes the page over HTTP and re-fetches it headless when the
// detector flags the probe as an unrendered shell.
func (a *Archiver) fetchPage(ctx context.Context, pageURL *url.URL, log *zap.Logger) (archive.FetchResponse, error) {
	resp, err := a.fetcher.Fetch(ctx, archive.FetchRequest{URL: pageURL.String()})
	if err != nil {
		return archive.FetchResponse{}, fmt.Errorf("%w: %v", archive.ErrFetch, err)
	}
	if !isSuccess(resp.StatusCode) {
		return archive.FetchResponse{}, fmt.Errorf("%w: status %d", archive.ErrFetch, resp.StatusCode)
	}
	log.Debug("page probe fetched",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)

	if a.headless == nil || a.detector == nil || !a.detector.ShouldPromote(resp) {
		return resp, nil
	}
	metrics.ObserveHeadlessPromotion()
	rendered, err := a.headless.Fetch(ctx, archive.FetchRequest{URL: pageURL.String(), UseHeadless: true})
	if err != nil {
		if ctx.Err() != nil {
			return archive.FetchResponse{}, fmt.Errorf("%w: %v", archive.ErrFetch, err)
		}
		log.Warn("headless promotion failed", zap.Error(err))
		return resp, nil
	}
	rendered.UsedHeadless = true
	log.Info("headless promotion applied", zap.Int("bytes", len(rendered.Body)))
	return rendered, nil
}

func (a *Archiver) publish(ctx context.Context, req archive.Request, result archive.Result, log *zap.Logger) {
	if a.cfg.Topic == "" || a.publisher == nil {
		return
	}
	payload := map[string]any{
		"url":       req.URL,
		"prefix":    req.Prefix,
		"index_url": result.IndexURL,
		"stored":    len(result.Manifest),
		"skipped":   len(result.Skipped),
		"timestamp": a.clock.Now().Format(time.RFC3339),
	}
	id, err := a.publisher.Publish(ctx, a.cfg.Topic, payload)
	if err != nil {
		log.Warn("publish completion failed", zap.String("topic", a.cfg.Topic), zap.Error(err))
		return
	}
	log.Debug("completion published", zap.String("topic", a.cfg.Topic), zap.String("message_id", id))
}

func phaseErr(phase archive.State, err error) error {
	var pe *archive.PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &archive.PhaseError{Phase: phase, Err: err}
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}
