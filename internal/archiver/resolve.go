package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/asset"
	"github.com/JakeFAU/page-archiver/internal/document"
	"github.com/JakeFAU/page-archiver/internal/metrics"
)

// group is one unique content key with every reference that shares it.
type group struct {
	asset *asset.Asset
	refs  []document.Reference
}

type outcomeKind int

const (
	outcomeStored outcomeKind = iota
	outcomeNetwork
	outcomeNoExtension
	outcomeStoreFailed
	outcomeCanceled
)

// outcome is what a download worker reports back for one group.
type outcome struct {
	index int
	kind  outcomeKind
	bytes int
	err   error
}

// discover builds one Asset per unique content key without touching the
// tree. References that cannot be fetched with a GET yield no Asset and are
// left as they are.
func (a *Archiver) discover(doc *document.Document, log *zap.Logger) []*group {
	var (
		groups []*group
		byKey  = make(map[string]*group)
	)
	for _, ref := range document.Match(doc, a.rules) {
		as, err := asset.New(ref, doc.URL(), a.hasher)
		if err != nil {
			level := log.Warn
			if errors.Is(err, asset.ErrUnsupportedScheme) {
				level = log.Debug
			}
			level("reference not archivable", zap.String("reference", ref.Value()), zap.Error(err))
			continue
		}
		if g, ok := byKey[as.Key]; ok {
			g.refs = append(g.refs, ref)
			continue
		}
		g := &group{asset: as, refs: []document.Reference{ref}}
		byKey[as.Key] = g
		groups = append(groups, g)
	}
	return groups
}

// resolve downloads and stores every group on a bounded worker pool. Workers
// never touch the Document: the rewrite happens here, after a worker reports
// the asset stored under its final name.
func (a *Archiver) resolve(
	ctx context.Context,
	backend archive.Backend,
	site string,
	groups []*group,
	log *zap.Logger,
) (archive.Manifest, []archive.SkippedAsset, error) {
	if len(groups) == 0 {
		return archive.Manifest{}, nil, nil
	}
	resolveCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	jobs := make(chan int, len(groups))
	results := make(chan outcome, len(groups))
	for i := range groups {
		jobs <- i
	}
	close(jobs)

	workers := min(a.cfg.Workers, len(groups))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if resolveCtx.Err() != nil {
					results <- outcome{index: i, kind: outcomeCanceled, err: resolveCtx.Err()}
					continue
				}
				results <- a.download(resolveCtx, backend, i, groups[i].asset, log)
			}
		}()
	}

	outcomes := make([]outcome, len(groups))
	consecutiveStoreFailures := 0
	for received := 0; received < len(groups); received++ {
		var out outcome
		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("resolve canceled: %w", ctx.Err())
		case out = <-results:
		}
		outcomes[out.index] = out
		g := groups[out.index]

		switch out.kind {
		case outcomeStored:
			consecutiveStoreFailures = 0
			for _, ref := range g.refs {
				ref.Element.SetAttr(ref.Attr, g.asset.Name)
			}
			metrics.ObserveAsset(site, "stored", out.bytes)
		case outcomeStoreFailed:
			consecutiveStoreFailures++
			log.Warn("asset store failed",
				zap.String("asset_url", g.asset.URL),
				zap.Int("consecutive_failures", consecutiveStoreFailures),
				zap.Error(out.err),
			)
			metrics.ObserveAsset(site, "skipped", out.bytes)
			if consecutiveStoreFailures >= a.cfg.MaxStoreFailures {
				return nil, nil, fmt.Errorf("%w: %d consecutive asset store failures: %v",
					archive.ErrBackendOutage, consecutiveStoreFailures, out.err)
			}
		case outcomeCanceled:
			return nil, nil, fmt.Errorf("resolve canceled: %w", out.err)
		default:
			log.Warn("asset skipped", zap.String("asset_url", g.asset.URL), zap.Error(out.err))
			metrics.ObserveAsset(site, "skipped", out.bytes)
		}
	}

	// Manifest and skip list follow discovery order, not completion order.
	manifest := archive.Manifest{}
	var skipped []archive.SkippedAsset
	for i, out := range outcomes {
		as := groups[i].asset
		if out.kind == outcomeStored {
			manifest.Append(as.Name, as.URL)
			continue
		}
		skipped = append(skipped, archive.SkippedAsset{Key: as.Key, URL: as.URL, Reason: out.err.Error()})
	}
	return manifest, skipped, nil
}

// download fetches one asset, resolves its extension and stores it under
// its final name. It only mutates the Asset it was handed.
func (a *Archiver) download(
	ctx context.Context,
	backend archive.Backend,
	index int,
	as *asset.Asset,
	log *zap.Logger,
) outcome {
	resp, err := a.fetcher.Fetch(ctx, archive.FetchRequest{URL: as.URL})
	if err != nil {
		if ctx.Err() != nil {
			return outcome{index: index, kind: outcomeCanceled, err: ctx.Err()}
		}
		return outcome{index: index, kind: outcomeNetwork, err: fmt.Errorf("%w: %v", archive.ErrNetwork, err)}
	}
	if !isSuccess(resp.StatusCode) {
		return outcome{
			index: index,
			kind:  outcomeNetwork,
			bytes: len(resp.Body),
			err:   fmt.Errorf("%w: status %d", archive.ErrNetwork, resp.StatusCode),
		}
	}

	ext, source := a.resolver.Resolve(resp.ContentType(), as.URL, as.DefaultExt)
	if source == asset.SourceNone {
		if a.cfg.MissingExtension == MissingExtensionSkip {
			return outcome{index: index, kind: outcomeNoExtension, bytes: len(resp.Body), err: archive.ErrExtensionUnresolvable}
		}
		log.Warn("storing asset without extension",
			zap.String("asset_url", as.URL),
			zap.Error(archive.ErrExtensionUnresolvable),
		)
	}
	as.Finalize(resp.Body, ext)

	if err := backend.Store(ctx, as.Name, as.Body); err != nil {
		metrics.ObserveStorageWrite(false)
		if ctx.Err() != nil {
			return outcome{index: index, kind: outcomeCanceled, err: ctx.Err()}
		}
		return outcome{index: index, kind: outcomeStoreFailed, bytes: len(resp.Body), err: err}
	}
	metrics.ObserveStorageWrite(true)
	log.Debug("asset stored",
		zap.String("asset_url", as.URL),
		zap.String("name", as.Name),
		zap.String("extension_source", string(source)),
	)
	return outcome{index: index, kind: outcomeStored, bytes: len(resp.Body)}
}
