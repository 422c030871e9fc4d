package archiver

import (
	"context"
	"fmt"

	"github.com/JakeFAU/page-archiver/internal/archive"
	"github.com/JakeFAU/page-archiver/internal/document"
)

// persist writes the raw page, the rewritten page and finally the manifest.
// It runs only after every asset store has completed, so the manifest never
// names an asset that is not in the backend.
func (a *Archiver) persist(ctx context.Context, backend archive.Backend, doc *document.Document, manifest archive.Manifest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("persist canceled: %w", err)
	}
	if err := backend.Store(ctx, archive.RawName, doc.Raw()); err != nil {
		return fmt.Errorf("store raw page: %w", err)
	}
	html, err := doc.HTML()
	if err != nil {
		return fmt.Errorf("serialize page: %w", err)
	}
	if err := backend.Store(ctx, archive.IndexName, []byte(html)); err != nil {
		return fmt.Errorf("store index: %w", err)
	}
	if err := backend.Store(ctx, archive.ManifestName, manifest.Bytes()); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	return nil
}
