package catalogue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

const sampleCatalogue = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="http://www.unidata.ucar.edu/namespaces/thredds/InvCatalog/v1.0">
  <service name="fileServer" serviceType="HTTPServer" base="/thredds/fileServer/"/>
  <dataset name="chl collection">
    <dataset name="chl_20240101" ID="chl_20240101" urlPath="chl/2024/chl_20240101.nc">
      <date type="modified">2024-01-02T00:00:00Z</date>
      <dataSize units="Mbytes">12.5</dataSize>
    </dataset>
    <dataset name="sst_20240101" ID="sst_20240101" urlPath="sst/2024/sst_20240101.nc">
      <date type="modified">2024-01-02T00:00:00Z</date>
      <dataSize units="Mbytes">8</dataSize>
    </dataset>
  </dataset>
</catalog>`

func writeCatalogue(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.xml")
	if err := os.WriteFile(path, []byte(sampleCatalogue), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFiltersByRegex(t *testing.T) {
	path := writeCatalogue(t)
	def := domain.DownloadDefinition{
		ID:            "def1",
		FilenameRegex: "^chl_.*\\.nc$",
		CatalogueURLs: []domain.CatalogueSource{{CatalogueURL: path}},
	}

	l := NewLoader()
	entries, err := l.Load(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 filtered entry, got %d: %+v", len(entries), entries)
	}
	entry, ok := entries["chl_20240101"]
	if !ok {
		t.Fatalf("expected dataset chl_20240101, got %+v", entries)
	}
	if entry.AccessURL != "/thredds/fileServer/chl/2024/chl_20240101.nc" {
		t.Errorf("unexpected access URL %q", entry.AccessURL)
	}
	wantSize := int64(12.5 * 1024 * 1024)
	if entry.SizeBytes != wantSize {
		t.Errorf("expected size %d, got %d", wantSize, entry.SizeBytes)
	}
}

func TestLoadNoFilterAdmitsAll(t *testing.T) {
	path := writeCatalogue(t)
	def := domain.DownloadDefinition{
		ID:            "def1",
		CatalogueURLs: []domain.CatalogueSource{{CatalogueURL: path}},
	}

	l := NewLoader()
	entries, err := l.Load(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestLoadNoSuitableCatalogue(t *testing.T) {
	def := domain.DownloadDefinition{
		ID:            "def1",
		CatalogueURLs: []domain.CatalogueSource{{CatalogueURL: "/nonexistent/path.xml"}},
	}

	l := NewLoader()
	if _, err := l.Load(context.Background(), def); err == nil {
		t.Fatal("expected an error when no source yields any dataset")
	}
}
