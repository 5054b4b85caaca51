// Package integrity is the adapter boundary spec.md §4.6 describes: a
// capability that extracts scientific metadata and a content hash from a
// downloaded file, and a separate, stricter deep scan used only when
// content has actually changed. NetCDF parsing itself stays opaque — the
// concrete Adapter here sniffs the NetCDF magic bytes and does not
// interpret the scientific payload, matching spec.md §1's "opaque
// integrity scan + metadata extract" framing. A real deployment would
// plug in a NetCDF library here (none ships in this module's dependency
// set); see DESIGN.md.
package integrity

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

// netcdfMagics holds the classic-format NetCDF file signature ("CDF\x01"/\x02)
// and the HDF5 signature used by NetCDF-4.
var netcdfMagics = [][]byte{
	{'C', 'D', 'F', 0x01},
	{'C', 'D', 'F', 0x02},
	{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'},
}

// Adapter is the integrity & metadata extraction capability the
// reconciliation pipeline depends on (spec.md §4.6). No other capability
// of this collaborator is assumed.
type Adapter interface {
	// Extract produces a tentative DatasetMetadata with Status set to
	// VALID if localFile is a well-formed dataset, CORRUPTED otherwise,
	// and a freshly computed checksum over the exact bytes on disk.
	Extract(definitionID, datasetID, destURI, localFile string, srcLastModifiedMs int64) (domain.DatasetMetadata, error)

	// DeepScan performs a stricter, streaming-safe validation used only
	// when content has actually changed. A non-empty string return is an
	// error message; empty means the scan passed.
	DeepScan(localFile string) (string, error)
}

// NetCDFAdapter is the concrete Adapter used in production: a lightweight
// magic-byte sniff for Extract, and a full streaming read for DeepScan.
type NetCDFAdapter struct{}

func NewNetCDFAdapter() *NetCDFAdapter { return &NetCDFAdapter{} }

// Extract computes the MD5 checksum of localFile and sniffs its header for
// a recognised NetCDF/HDF5 signature.
func (a *NetCDFAdapter) Extract(definitionID, datasetID, destURI, localFile string, srcLastModifiedMs int64) (domain.DatasetMetadata, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return domain.DatasetMetadata{}, err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, _ := io.ReadFull(f, header)
	wellFormed := isNetCDFMagic(header[:n])

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return domain.DatasetMetadata{}, err
	}
	sum, err := md5Sum(f)
	if err != nil {
		return domain.DatasetMetadata{}, err
	}

	meta := domain.DatasetMetadata{
		PrimaryKey:     domain.PrimaryKeyFor(definitionID, datasetID),
		DefinitionID:   definitionID,
		DatasetID:      datasetID,
		FileURI:        destURI,
		Checksum:       sum,
		LastModified:   srcLastModifiedMs,
	}
	if wellFormed {
		meta.Status = domain.StatusValid
		meta.ExtractedMeta = map[string]any{"format": "netcdf"}
	} else {
		meta.Status = domain.StatusCorrupted
		meta.ErrorMessage = "file does not begin with a recognised NetCDF/HDF5 signature"
	}
	return meta, nil
}

// DeepScan streams localFile end-to-end, re-verifying it is fully readable
// and well-formed. Safe to call on large files: it never loads the whole
// file into memory.
func (a *NetCDFAdapter) DeepScan(localFile string) (string, error) {
	f, err := os.Open(localFile)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 8)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", err
	}
	if !isNetCDFMagic(header[:n]) {
		return "file does not begin with a recognised NetCDF/HDF5 signature", nil
	}

	// Walk the remainder to confirm the file is fully readable on disk;
	// a real adapter would validate internal structure here instead.
	if _, err := io.Copy(io.Discard, bufio.NewReaderSize(f, 1<<20)); err != nil {
		return fmt.Sprintf("deep scan read error: %v", err), nil
	}
	return "", nil
}

func isNetCDFMagic(header []byte) bool {
	for _, magic := range netcdfMagics {
		if len(header) >= len(magic) && string(header[:len(magic)]) == string(magic) {
			return true
		}
	}
	return false
}

func md5Sum(r io.Reader) (domain.Checksum, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return domain.NewChecksum("MD5", hex.EncodeToString(h.Sum(nil))), nil
}
