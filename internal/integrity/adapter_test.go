package integrity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractRecognisesNetCDFMagic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "valid.nc", append([]byte{'C', 'D', 'F', 0x01}, []byte("rest of file")...))

	a := NewNetCDFAdapter()
	meta, err := a.Extract("def1", "chl_oc3", "file:///dest.nc", path, 123)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != domain.StatusValid {
		t.Errorf("expected VALID, got %s", meta.Status)
	}
	if meta.Checksum == "" {
		t.Error("expected a non-empty checksum")
	}
	if meta.LastModified != 123 {
		t.Errorf("expected lastModified 123, got %d", meta.LastModified)
	}
}

func TestExtractFlagsCorruptedOnBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.nc", []byte("not a netcdf file at all"))

	a := NewNetCDFAdapter()
	meta, err := a.Extract("def1", "chl_oc3", "file:///dest.nc", path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Status != domain.StatusCorrupted {
		t.Errorf("expected CORRUPTED, got %s", meta.Status)
	}
	if meta.ErrorMessage == "" {
		t.Error("expected an error message explaining the corruption")
	}
}

func TestDeepScanPassesOnWellFormedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "valid.nc", append([]byte{'C', 'D', 'F', 0x02}, make([]byte, 1<<20)...))

	a := NewNetCDFAdapter()
	msg, err := a.DeepScan(path)
	if err != nil {
		t.Fatal(err)
	}
	if msg != "" {
		t.Errorf("expected no error message, got %q", msg)
	}
}

func TestDeepScanFlagsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.nc", []byte("garbage"))

	a := NewNetCDFAdapter()
	msg, err := a.DeepScan(path)
	if err != nil {
		t.Fatal(err)
	}
	if msg == "" {
		t.Error("expected a failure message for a bad-magic file")
	}
}
