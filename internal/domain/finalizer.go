package domain

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/mouse-blink/libpack/internal/adapter"
	m "github.com/mouse-blink/libpack/internal/model"
)

// Finalizer re-derives the integrity metadata invalidated by rewriting.
type Finalizer interface {
	// Revalidate re-signs every binary the run rewrote.
	Revalidate(ctx context.Context, run *Run) error
	// RefreshManifests brings every package manifest under root in line with
	// the files on disk.
	RefreshManifests(ctx context.Context, root m.Path, report *m.Report) error
}

type finalizer struct {
	binaries  adapter.BinaryAdapter
	manifests adapter.ManifestAdapter
	signer    adapter.Signer
	logger    *log.Logger
}

// NewFinalizer constructs a Finalizer.
func NewFinalizer(binaries adapter.BinaryAdapter, manifests adapter.ManifestAdapter, signer adapter.Signer, logger *log.Logger) Finalizer {
	return &finalizer{binaries: binaries, manifests: manifests, signer: signer, logger: logger}
}

func (f *finalizer) Revalidate(ctx context.Context, run *Run) error {
	for _, p := range run.Report.Rewritten {
		if err := ctx.Err(); err != nil {
			return err
		}

		signed, err := f.signer.Sign(ctx, p)
		if err != nil {
			return &DependencyError{Kind: ErrSignatureRevalidation, Binary: p, Err: err}
		}

		if signed {
			f.binaries.Forget(p)
			run.Report.Signed = append(run.Report.Signed, p)
		}
	}

	return nil
}

func (f *finalizer) RefreshManifests(ctx context.Context, root m.Path, report *m.Report) error {
	manifests, err := f.manifests.Find(root)
	if err != nil {
		return fmt.Errorf("finding manifests: %w", err)
	}

	for _, manifest := range manifests {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed, err := f.manifests.Refresh(root, manifest)
		if err != nil {
			return fmt.Errorf("refreshing %s: %w", manifest, err)
		}

		if changed {
			report.Manifest = append(report.Manifest, manifest)

			if f.logger != nil {
				f.logger.Debug("manifest refreshed", "path", manifest)
			}
		}
	}

	return nil
}
