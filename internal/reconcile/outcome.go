// Package reconcile is the reconciliation loop and download-and-publish
// pipeline of spec.md §4.2-§4.4: the core the rest of the mirror exists to
// support. Nothing here reads configuration or the environment directly;
// everything is constructed and passed in (Design Notes §9).
package reconcile

import "github.com/zzenonn/ereefs-mirror/internal/domain"

// Outcome tags what a single pipeline invocation did, replacing a
// nullable-bool/exception signal with an explicit variant the caller must
// switch on (Design Notes §9, "null means halt").
type Outcome int

const (
	// OutcomeDownloaded means a new or changed object was published and its
	// metadata persisted. Consumes one unit of the per-definition limit.
	OutcomeDownloaded Outcome = iota
	// OutcomeUnchanged means no download was necessary or no publish
	// occurred, and this is not a failure: verify-present ran (possibly
	// flipping the record to DELETED), content was unchanged after a
	// re-fetch, or dry-run short-circuited.
	OutcomeUnchanged
	// OutcomeWarning means a recoverable per-file issue occurred: the
	// dataset was not mirrored this run, but the definition continues.
	OutcomeWarning
	// OutcomeError means an unrecoverable per-file issue occurred: the
	// dataset was not mirrored, no metadata was written, but the
	// definition continues with the next dataset.
	OutcomeError
)

// Result is what every pipeline stage and the loop itself pass upward. A
// fatal-for-this-definition signal (spec.md §4.2's "null return") is
// represented by the accompanying error return of the function producing
// a Result being non-nil, not by a special Result value — callers check
// the error first, always.
//
// Record and Outcome vary independently: Outcome decides which summary
// bucket a dataset lands in and whether it consumes limit quota, while
// Record — when its PrimaryKey is non-empty — tells the loop there is a
// metadata write to persist regardless of bucket (a CORRUPTED record is a
// Warning that still must be persisted, per spec.md §4.4 stage 6).
type Result struct {
	Outcome Outcome
	Record  domain.DatasetMetadata // non-zero PrimaryKey means "persist this"
	Message string                 // set for Warning and Error; empty otherwise
}

func downloaded(record domain.DatasetMetadata) Result {
	return Result{Outcome: OutcomeDownloaded, Record: record}
}

func unchanged() Result {
	return Result{Outcome: OutcomeUnchanged}
}

func warning(message string) Result {
	return Result{Outcome: OutcomeWarning, Message: message}
}

func warningWithRecord(message string, record domain.DatasetMetadata) Result {
	return Result{Outcome: OutcomeWarning, Message: message, Record: record}
}

func fileError(message string) Result {
	return Result{Outcome: OutcomeError, Message: message}
}

// DownloadOutput is the per-definition summary spec.md §4.2 requires:
// three disjoint lists.
type DownloadOutput struct {
	DefinitionID string
	Successes    []domain.DatasetMetadata
	Warnings     []string
	Errors       []string
}

// Empty reports whether nothing notable happened for this definition.
func (o DownloadOutput) Empty() bool {
	return len(o.Successes) == 0 && len(o.Warnings) == 0 && len(o.Errors) == 0
}

func (o *DownloadOutput) record(r Result) {
	switch r.Outcome {
	case OutcomeDownloaded:
		o.Successes = append(o.Successes, r.Record)
	case OutcomeWarning:
		o.Warnings = append(o.Warnings, r.Message)
	case OutcomeError:
		o.Errors = append(o.Errors, r.Message)
	}
}

// RunSummary is the final aggregate emitted once all definitions complete
// (spec.md §4.7 "final aggregate").
type RunSummary struct {
	Definitions map[string]DownloadOutput
}

// NonEmpty reports whether any definition in the run produced a non-empty
// summary, per spec.md §4.7's "emitted once... if any definition produced
// a non-empty summary".
func (s RunSummary) NonEmpty() bool {
	for _, d := range s.Definitions {
		if !d.Empty() {
			return true
		}
	}
	return false
}

// Counts flattens the summary into the [successes, warnings, errors] shape
// the notifier publishes (spec.md §4.7).
func (s RunSummary) Counts() map[string][3]int {
	out := make(map[string][3]int, len(s.Definitions))
	for id, d := range s.Definitions {
		out[id] = [3]int{len(d.Successes), len(d.Warnings), len(d.Errors)}
	}
	return out
}
