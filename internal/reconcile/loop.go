package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/ereefs-mirror/internal/archive"
	"github.com/zzenonn/ereefs-mirror/internal/domain"
	"github.com/zzenonn/ereefs-mirror/internal/notify"
	"github.com/zzenonn/ereefs-mirror/internal/sink"
	"github.com/zzenonn/ereefs-mirror/internal/store"
)

// CatalogueLoader is the capability the loop depends on (spec.md §4.1).
// *catalogue.Loader satisfies this; tests substitute a fake catalogue map.
type CatalogueLoader interface {
	Load(ctx context.Context, def domain.DownloadDefinition) (map[string]domain.DatasetEntry, error)
}

// Runner drives the whole-run control flow of spec.md §4.2: for each
// enabled definition, load its catalogue and metadata, reconcile dataset
// by dataset, and notify. One Runner is constructed per process
// invocation.
type Runner struct {
	Loader   CatalogueLoader
	Store    store.MetadataStore
	Pipeline *Pipeline
	Notifier notify.Notifier
	SinkFor  func(domain.Output) (sink.Sink, error)
	Limit    int // <0 unlimited, 0 means "do nothing"
	Now      func() int64
}

// Run reconciles every enabled definition in definitions and returns the
// aggregate summary. Narrowing the run to one definition is done by the
// caller before Run is invoked. A fault that aborts a definition (a
// catalogue, metadata-cache, or sink-building failure, or a fatal pipeline
// error) is recorded in that definition's Errors and the run continues with
// the next definition; the returned error is always nil.
func (r *Runner) Run(ctx context.Context, definitions []domain.DownloadDefinition) (RunSummary, error) {
	summary := RunSummary{Definitions: make(map[string]DownloadOutput)}

	for _, def := range definitions {
		if !def.Enabled {
			log.WithField("definition", def.ID).Info("definition disabled, skipping")
			continue
		}

		output, err := r.runDefinition(ctx, def)
		if err != nil {
			log.WithError(err).WithField("definition", def.ID).Error("definition aborted")
			output.Errors = append(output.Errors, fmt.Sprintf("aborted: %v", err))
		}
		summary.Definitions[def.ID] = output

		if !output.Empty() {
			r.Notifier.DefinitionComplete(ctx, def.ID, len(output.Successes), len(output.Warnings), len(output.Errors))
		}
	}

	if summary.NonEmpty() {
		r.Notifier.FinalAggregate(ctx, summary.Counts())
	}
	return summary, nil
}

func (r *Runner) runDefinition(ctx context.Context, def domain.DownloadDefinition) (DownloadOutput, error) {
	output := DownloadOutput{DefinitionID: def.ID}

	if r.Limit == 0 {
		return output, nil
	}

	catalogueEntries, err := r.Loader.Load(ctx, def)
	if err != nil {
		return output, err
	}

	cache, err := store.LoadDefinitionCache(ctx, r.Store, def.ID)
	if err != nil {
		return output, fmt.Errorf("loading metadata cache: %w", err)
	}

	snk, err := r.SinkFor(def.Output)
	if err != nil {
		return output, fmt.Errorf("building sink: %w", err)
	}
	r.Pipeline.Sink = snk

	remaining := r.Limit // <=0 means unlimited; we never decrement below that

	ids := make([]string, 0, len(catalogueEntries))
	for id := range catalogueEntries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, datasetID := range ids {
		entry := catalogueEntries[datasetID]

		result, err := r.reconcileOne(ctx, def, entry, cache)
		if err != nil {
			return output, err
		}

		if result.Record.PrimaryKey != "" {
			if err := cache.Upsert(ctx, result.Record); err != nil {
				return output, fmt.Errorf("persisting metadata for %s: %w", datasetID, err)
			}
		}
		output.record(result)

		if result.Outcome == OutcomeDownloaded && r.Limit > 0 {
			remaining--
			if remaining <= 0 {
				break
			}
		}
	}

	return output, nil
}

// reconcileOne applies the decision matrix of spec.md §4.2 to a single
// catalogue entry.
func (r *Runner) reconcileOne(ctx context.Context, def domain.DownloadDefinition, entry domain.DatasetEntry, cache *store.DefinitionCache) (Result, error) {
	old, hasOld := cache.Get(entry.DatasetID)

	filename := entry.FileName()
	destFilename := filename
	if archive.IsArchive(filename) {
		destFilename = archive.StripExtension(filename)
	}
	destURI := sink.DestURI(def.Output, entry.Source.SubDirectory, destFilename)

	if hasOld && entry.LastModifiedMs <= old.LastModified {
		return r.Pipeline.VerifyPresent(ctx, old)
	}

	var oldPtr *domain.DatasetMetadata
	if hasOld {
		oldCopy := old
		oldPtr = &oldCopy
	}

	return r.Pipeline.DownloadAndPublish(ctx, downloadInputs{
		DefinitionID:    def.ID,
		DatasetID:       entry.DatasetID,
		SrcURI:          entry.AccessURL,
		SrcFileName:     filename,
		SrcLastModified: entry.LastModifiedMs,
		SrcSizeBytes:    entry.SizeBytes,
		DestURI:         destURI,
		DownloadDir:     def.Output.DownloadDir,
		Old:             oldPtr,
	})
}

// UnixMillis is the production Now implementation for Pipeline and Runner.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}
