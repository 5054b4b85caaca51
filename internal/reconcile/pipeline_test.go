package reconcile

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

// gzipFetcher fakes a fetch that lands a real gzip archive on disk, so
// archive.Expand has something genuine to decompress.
type gzipFetcher struct {
	payload []byte
}

func (g *gzipFetcher) FetchWithRetry(ctx context.Context, srcURL, destPath string, sizeHint int64) error {
	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(g.payload); err != nil {
		return err
	}
	return gw.Close()
}

// fakeSink, fakeIntegrity, fakeFetcher, and fakeNotifier are hand-rolled
// test doubles, mirroring the teacher's mock-repository test style.

type fakeSink struct {
	existing  map[string]bool
	published map[string]string // destURI -> tempPath content read at publish time
	publishFn func(destURI string) error
}

func newFakeSink() *fakeSink {
	return &fakeSink{existing: map[string]bool{}, published: map[string]string{}}
}

func (f *fakeSink) Publish(ctx context.Context, tempPath, destURI string) error {
	if f.publishFn != nil {
		if err := f.publishFn(destURI); err != nil {
			return err
		}
	}
	content, err := os.ReadFile(tempPath)
	if err != nil {
		return err
	}
	f.published[destURI] = string(content)
	f.existing[destURI] = true
	return os.Remove(tempPath)
}

func (f *fakeSink) Exists(ctx context.Context, destURI string) (bool, error) {
	return f.existing[destURI], nil
}

func (f *fakeSink) Hash(ctx context.Context, destURI string) (domain.Checksum, error) {
	return domain.NewChecksum("MD5", "dead"), nil
}

type fakeIntegrity struct {
	status       domain.Status
	checksum     domain.Checksum
	errorMessage string
	deepScanErr  string
}

func (f *fakeIntegrity) Extract(definitionID, datasetID, destURI, localFile string, srcLastModifiedMs int64) (domain.DatasetMetadata, error) {
	return domain.DatasetMetadata{
		PrimaryKey:   domain.PrimaryKeyFor(definitionID, datasetID),
		DefinitionID: definitionID,
		DatasetID:    datasetID,
		FileURI:      destURI,
		Checksum:     f.checksum,
		Status:       f.status,
		LastModified: srcLastModifiedMs,
		ErrorMessage: f.errorMessage,
	}, nil
}

func (f *fakeIntegrity) DeepScan(localFile string) (string, error) {
	return f.deepScanErr, nil
}

type fakeFetcher struct {
	content []byte
	err     error
}

func (f *fakeFetcher) FetchWithRetry(ctx context.Context, srcURL, destPath string, sizeHint int64) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(destPath, f.content, 0o644)
}

type fakeNotifier struct {
	diskFullCount     int
	corruptedCount    int
	definitionCount   int
	finalAggregateHit bool
}

func (f *fakeNotifier) DiskFull(ctx context.Context, definitionID, sourceURI string, sizeMB, freeMB float64) {
	f.diskFullCount++
}
func (f *fakeNotifier) CorruptedFile(ctx context.Context, definitionID, datasetID, message string) {
	f.corruptedCount++
}
func (f *fakeNotifier) DefinitionComplete(ctx context.Context, definitionID string, successes, warnings, errors int) {
	f.definitionCount++
}
func (f *fakeNotifier) FinalAggregate(ctx context.Context, summaries map[string][3]int) {
	f.finalAggregateHit = true
}

func newTestPipeline(t *testing.T, snk *fakeSink, integ *fakeIntegrity, fetch *fakeFetcher, notifier *fakeNotifier) *Pipeline {
	t.Helper()
	return &Pipeline{
		Sink:      snk,
		Fetcher:   fetch,
		Integrity: integ,
		Notifier:  notifier,
		Now:       func() int64 { return 1000 },
	}
}

func TestVerifyPresentStillThere(t *testing.T) {
	snk := newFakeSink()
	snk.existing["file:///dest.nc"] = true
	p := newTestPipeline(t, snk, &fakeIntegrity{}, &fakeFetcher{}, &fakeNotifier{})

	old := domain.DatasetMetadata{FileURI: "file:///dest.nc", Status: domain.StatusValid}
	result, err := p.VerifyPresent(context.Background(), old)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeUnchanged || result.Record.PrimaryKey != "" {
		t.Errorf("expected unchanged with no persist, got %+v", result)
	}
}

func TestVerifyPresentGoneFlipsToDeleted(t *testing.T) {
	snk := newFakeSink() // nothing exists
	p := newTestPipeline(t, snk, &fakeIntegrity{}, &fakeFetcher{}, &fakeNotifier{})

	old := domain.DatasetMetadata{PrimaryKey: "def1/a", FileURI: "file:///dest.nc", Status: domain.StatusValid}
	result, err := p.VerifyPresent(context.Background(), old)
	if err != nil {
		t.Fatal(err)
	}
	if result.Record.Status != domain.StatusDeleted {
		t.Errorf("expected DELETED status, got %+v", result.Record)
	}
}

func TestVerifyPresentTombstoneNotReprobed(t *testing.T) {
	snk := newFakeSink() // probing would say "gone" if called
	p := newTestPipeline(t, snk, &fakeIntegrity{}, &fakeFetcher{}, &fakeNotifier{})

	old := domain.DatasetMetadata{FileURI: "file:///dest.nc", Status: domain.StatusDeleted}
	result, err := p.VerifyPresent(context.Background(), old)
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeUnchanged || result.Record.PrimaryKey != "" {
		t.Errorf("tombstone must not be touched, got %+v", result)
	}
}

func TestDownloadAndPublishNewDataset(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()
	fetch := &fakeFetcher{content: []byte("netcdf bytes")}
	integ := &fakeIntegrity{status: domain.StatusValid, checksum: domain.NewChecksum("MD5", "abc")}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, snk, integ, fetch, notifier)

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID:    "def1",
		DatasetID:       "chl_oc3",
		SrcURI:          "https://example.org/chl.nc",
		SrcFileName:     "chl.nc",
		SrcLastModified: 500,
		SrcSizeBytes:    12,
		DestURI:         "file:///dest.nc",
		DownloadDir:     dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeDownloaded {
		t.Fatalf("expected OutcomeDownloaded, got %v (%s)", result.Outcome, result.Message)
	}
	if result.Record.Status != domain.StatusValid {
		t.Errorf("expected VALID record, got %+v", result.Record)
	}
	if _, err := os.Stat(filepath.Join(dir, "chl.nc")); !os.IsNotExist(err) {
		t.Error("temp file must not survive a successful publish")
	}
}

func TestDownloadAndPublishCorruptedOnExtract(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()
	fetch := &fakeFetcher{content: []byte("garbage")}
	integ := &fakeIntegrity{status: domain.StatusCorrupted, errorMessage: "bad magic"}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, snk, integ, fetch, notifier)

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID: "def1", DatasetID: "chl_oc3", SrcURI: "https://example.org/chl.nc",
		SrcFileName: "chl.nc", DestURI: "file:///dest.nc", DownloadDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeWarning {
		t.Fatalf("expected OutcomeWarning, got %v", result.Outcome)
	}
	if result.Record.Status != domain.StatusCorrupted {
		t.Error("expected a CORRUPTED record to persist")
	}
	if notifier.corruptedCount != 1 {
		t.Error("expected a corrupted-file notification")
	}
	if _, err := os.Stat(filepath.Join(dir, "chl.nc")); !os.IsNotExist(err) {
		t.Error("temp file must be removed even on corruption")
	}
}

func TestDownloadAndPublishChecksumUnchanged(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()
	fetch := &fakeFetcher{content: []byte("same bytes")}
	integ := &fakeIntegrity{status: domain.StatusValid, checksum: domain.NewChecksum("MD5", "same")}
	p := newTestPipeline(t, snk, integ, fetch, &fakeNotifier{})

	old := &domain.DatasetMetadata{
		PrimaryKey: "def1/chl_oc3", Checksum: domain.NewChecksum("MD5", "same"),
		LastModified: 100, Status: domain.StatusValid,
	}

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID: "def1", DatasetID: "chl_oc3", SrcURI: "https://example.org/chl.nc",
		SrcFileName: "chl.nc", SrcLastModified: 900, DestURI: "file:///dest.nc",
		DownloadDir: dir, Old: old,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeUnchanged {
		t.Fatalf("expected OutcomeUnchanged, got %v", result.Outcome)
	}
	if result.Record.LastModified != 900 {
		t.Errorf("expected lastModified refreshed to 900, got %d", result.Record.LastModified)
	}
	if len(snk.published) != 0 {
		t.Error("content-unchanged branch must not touch the sink")
	}
}

func TestDownloadAndPublishDeepScanFailure(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()
	fetch := &fakeFetcher{content: []byte("new content")}
	integ := &fakeIntegrity{status: domain.StatusValid, checksum: domain.NewChecksum("MD5", "new"), deepScanErr: "truncated read"}
	notifier := &fakeNotifier{}
	p := newTestPipeline(t, snk, integ, fetch, notifier)

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID: "def1", DatasetID: "chl_oc3", SrcURI: "https://example.org/chl.nc",
		SrcFileName: "chl.nc", DestURI: "file:///dest.nc", DownloadDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeWarning || result.Record.Status != domain.StatusCorrupted {
		t.Fatalf("expected a CORRUPTED warning, got %+v", result)
	}
	if notifier.corruptedCount != 1 {
		t.Error("expected a corrupted-file notification on deep-scan failure")
	}
	if len(snk.published) != 0 {
		t.Error("a failed deep scan must never publish")
	}
}

func TestDownloadAndPublishPublishFailureDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()
	snk.publishFn = func(destURI string) error { return os.ErrPermission }
	fetch := &fakeFetcher{content: []byte("new content")}
	integ := &fakeIntegrity{status: domain.StatusValid, checksum: domain.NewChecksum("MD5", "new")}
	p := newTestPipeline(t, snk, integ, fetch, &fakeNotifier{})

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID: "def1", DatasetID: "chl_oc3", SrcURI: "https://example.org/chl.nc",
		SrcFileName: "chl.nc", DestURI: "file:///dest.nc", DownloadDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeError {
		t.Fatalf("expected OutcomeError, got %v", result.Outcome)
	}
	if result.Record.PrimaryKey != "" {
		t.Error("a publish failure must not carry a record to persist")
	}
}

func TestDownloadAndPublishArchiveExpansion(t *testing.T) {
	dir := t.TempDir()
	snk := newFakeSink()

	// Write a real gzip archive so archive.Expand succeeds.
	fetch := &gzipFetcher{payload: []byte("inner netcdf bytes")}
	integ := &fakeIntegrity{status: domain.StatusValid, checksum: domain.NewChecksum("MD5", "new")}
	p := newTestPipeline(t, snk, integ, fetch, &fakeNotifier{})

	result, err := p.DownloadAndPublish(context.Background(), downloadInputs{
		DefinitionID: "def1", DatasetID: "chl_oc3", SrcURI: "https://example.org/chl.nc.gz",
		SrcFileName: "chl.nc.gz", DestURI: "file:///dest.nc", DownloadDir: dir,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Outcome != OutcomeDownloaded {
		t.Fatalf("expected OutcomeDownloaded, got %v (%s)", result.Outcome, result.Message)
	}
	if _, err := os.Stat(filepath.Join(dir, "chl.nc.gz")); !os.IsNotExist(err) {
		t.Error("archive file must not remain after expansion")
	}
	if _, err := os.Stat(filepath.Join(dir, "chl.nc")); !os.IsNotExist(err) {
		t.Error("expanded file must not remain after a successful publish")
	}
}
