package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/ereefs-mirror/internal/archive"
	"github.com/zzenonn/ereefs-mirror/internal/domain"
	"github.com/zzenonn/ereefs-mirror/internal/integrity"
	"github.com/zzenonn/ereefs-mirror/internal/notify"
	"github.com/zzenonn/ereefs-mirror/internal/sink"
)

// Fetcher is the transport capability the pipeline depends on (spec.md
// §4.5). *transport.Fetcher satisfies this; tests substitute a fake to
// exercise stages 4-6 without a network round trip.
type Fetcher interface {
	FetchWithRetry(ctx context.Context, srcURL, destPath string, sizeHint int64) error
}

// Pipeline is the per-run collaborator set the verify-present and
// download-and-publish stages are built from (spec.md §4.3, §4.4). One
// Pipeline is constructed per run and shared across every definition and
// dataset; it holds no per-dataset state.
type Pipeline struct {
	Sink      sink.Sink
	Fetcher   Fetcher
	Integrity integrity.Adapter
	Notifier  notify.Notifier
	DryRun    bool
	// Now returns milliseconds since epoch UTC. Overridable in tests.
	Now func() int64
}

// VerifyPresent implements spec.md §4.3: probe the sink for destURI and
// flip a present-but-gone record to DELETED. Only called when old exists
// and the catalogue's lastModified did not advance past it.
func (p *Pipeline) VerifyPresent(ctx context.Context, old domain.DatasetMetadata) (Result, error) {
	if old.Status == domain.StatusDeleted || old.Status == domain.StatusCorrupted {
		return unchanged(), nil
	}

	exists, err := p.Sink.Exists(ctx, old.FileURI)
	if err != nil {
		return Result{}, fmt.Errorf("verify-present: probing sink for %s: %w", old.FileURI, err)
	}
	if exists {
		return unchanged(), nil
	}

	old.Status = domain.StatusDeleted
	return Result{Outcome: OutcomeUnchanged, Record: old}, nil
}

// downloadInputs bundles what DownloadAndPublish needs about the catalogue
// entry and destination being reconciled, keeping the method signature
// from sprawling across spec.md §4.4's six stages.
type downloadInputs struct {
	DefinitionID    string
	DatasetID       string
	SrcURI          string
	SrcFileName     string
	SrcLastModified int64
	SrcSizeBytes    int64
	DestURI         string
	DownloadDir     string
	Old             *domain.DatasetMetadata // nil if no prior record
}

// DownloadAndPublish implements spec.md §4.4's six ordered stages. The
// temp-file invariant (the pipeline never returns holding a temp file) is
// enforced by deferring cleanup immediately after the temp path is known.
// A non-nil error return is the fatal-for-this-definition signal; every
// other case is represented in the returned Result.
func (p *Pipeline) DownloadAndPublish(ctx context.Context, in downloadInputs) (Result, error) {
	tempPath := filepath.Join(in.DownloadDir, in.SrcFileName)
	if err := os.MkdirAll(filepath.Dir(tempPath), 0o755); err != nil {
		return Result{}, fmt.Errorf("creating temp directory: %w", err)
	}

	cleanup := func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", tempPath).Warn("failed to remove temp file")
		}
	}
	defer cleanup()

	// Stage 1: space check.
	free, err := freeBytes(in.DownloadDir)
	if err != nil {
		return Result{}, fmt.Errorf("checking free space: %w", err)
	}
	if free < uint64(in.SrcSizeBytes) {
		p.Notifier.DiskFull(ctx, in.DefinitionID, in.SrcURI,
			float64(in.SrcSizeBytes)/(1<<20), float64(free)/(1<<20))
		return warning(fmt.Sprintf("%s: insufficient free space for %d bytes", in.DatasetID, in.SrcSizeBytes)), nil
	}

	// Stage 2: dry-run short-circuit.
	if p.DryRun {
		log.WithFields(log.Fields{"dataset": in.DatasetID, "src": in.SrcURI, "dest": in.DestURI}).
			Info("dry run: would mirror dataset")
		return unchanged(), nil
	}

	// Stage 3: fetch with retry.
	if err := p.Fetcher.FetchWithRetry(ctx, in.SrcURI, tempPath, in.SrcSizeBytes); err != nil {
		return fileError(fmt.Sprintf("%s: fetch failed: %v", in.DatasetID, err)), nil
	}

	// Stage 4: optional de-archive.
	localFile := tempPath
	if archive.IsArchive(tempPath) {
		expanded, err := archive.Expand(tempPath)
		if err != nil {
			// A failed expansion can leave a partial sibling file behind.
			if rmErr := os.Remove(archive.StripExtension(tempPath)); rmErr != nil && !os.IsNotExist(rmErr) {
				log.WithError(rmErr).Warn("failed to remove partially expanded file")
			}
			return fileError(fmt.Sprintf("%s: de-archive failed: %v", in.DatasetID, err)), nil
		}
		localFile = expanded
		tempPath = expanded // cleanup now targets the expanded file
	}

	// Stage 5: integrity + metadata extract.
	tentative, err := p.Integrity.Extract(in.DefinitionID, in.DatasetID, in.DestURI, localFile, in.SrcLastModified)
	if err != nil {
		return Result{}, fmt.Errorf("extracting metadata for %s: %w", in.DatasetID, err)
	}
	tentative.LastDownloaded = p.Now()

	// Stage 6: branch on tentative status and checksum.
	if tentative.Status == domain.StatusCorrupted {
		p.Notifier.CorruptedFile(ctx, in.DefinitionID, in.DatasetID, tentative.ErrorMessage)
		return warningWithRecord(fmt.Sprintf("%s: corrupted on extract: %s", in.DatasetID, tentative.ErrorMessage), tentative), nil
	}

	if in.Old != nil && tentative.Checksum.Equal(in.Old.Checksum) {
		unchangedRecord := *in.Old
		unchangedRecord.LastModified = in.SrcLastModified
		unchangedRecord.LastDownloaded = tentative.LastDownloaded
		return Result{Outcome: OutcomeUnchanged, Record: unchangedRecord}, nil
	}

	// Deep content scan: content is new or has genuinely changed.
	if scanErr, err := p.Integrity.DeepScan(localFile); err != nil {
		return Result{}, fmt.Errorf("deep-scanning %s: %w", in.DatasetID, err)
	} else if scanErr != "" {
		tentative.Status = domain.StatusCorrupted
		tentative.ErrorMessage = scanErr
		p.Notifier.CorruptedFile(ctx, in.DefinitionID, in.DatasetID, scanErr)
		return warningWithRecord(fmt.Sprintf("%s: failed deep scan: %s", in.DatasetID, scanErr), tentative), nil
	}

	if err := p.Sink.Publish(ctx, localFile, in.DestURI); err != nil {
		return fileError(fmt.Sprintf("%s: publish failed: %v", in.DatasetID, err)), nil
	}

	return downloaded(tentative), nil
}
