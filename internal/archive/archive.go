// Package archive implements the optional single-file de-archive step of
// spec.md §4.4 stage 4. Scope is deliberately narrow — exactly the
// single-file archive case the spec names, not general multi-file archive
// handling — so the standard library's compress/gzip and archive/zip
// cover it without pulling in a third-party archive library (see
// DESIGN.md for why this stays on the standard library).
package archive

import (
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
)

// recognisedExtensions lists the single-file archive extensions that are
// dropped from the destination filename, per spec.md §6 "Destination URI
// construction".
var recognisedExtensions = []string{".gz", ".zip"}

// IsArchive reports whether filename carries a recognised single-file
// archive extension.
func IsArchive(filename string) bool {
	for _, ext := range recognisedExtensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// StripExtension drops a recognised archive extension from filename,
// matching what the destination URI construction in spec.md §6 expects.
func StripExtension(filename string) string {
	for _, ext := range recognisedExtensions {
		if strings.HasSuffix(filename, ext) {
			return strings.TrimSuffix(filename, ext)
		}
	}
	return filename
}

// Expand de-archives archivePath (which must carry a recognised
// extension) to a sibling file with that extension dropped, and removes
// the archive. It returns the path to the expanded file.
func Expand(archivePath string) (string, error) {
	destPath := StripExtension(archivePath)
	if destPath == archivePath {
		return "", fmt.Errorf("archive.Expand: %s has no recognised archive extension", archivePath)
	}

	switch {
	case strings.HasSuffix(archivePath, ".gz"):
		if err := expandGzip(archivePath, destPath); err != nil {
			return "", err
		}
	case strings.HasSuffix(archivePath, ".zip"):
		if err := expandZip(archivePath, destPath); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("archive.Expand: unsupported archive %s", archivePath)
	}

	if err := os.Remove(archivePath); err != nil {
		return "", fmt.Errorf("removing archive after expansion: %w", err)
	}
	return destPath, nil
}

func expandGzip(archivePath, destPath string) error {
	in, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer in.Close()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer gz.Close()

	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, gz)
	return err
}

// expandZip extracts the single entry expected inside a single-file zip
// archive. If the archive carries more than one entry, the first
// non-directory entry is used and the rest are ignored: multi-file
// archives are out of this system's scope (spec.md §1 Non-goals).
func expandZip(archivePath, destPath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		return copyErr
	}
	return fmt.Errorf("archive.Expand: zip archive %s contains no file entries", archivePath)
}
