package domain

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a persisted DatasetMetadata record.
type Status string

const (
	StatusValid     Status = "VALID"
	StatusCorrupted Status = "CORRUPTED"
	StatusDeleted   Status = "DELETED"
)

// Checksum is a content hash tagged with its algorithm, e.g. "MD5:<hex>".
type Checksum string

// NewChecksum builds a tagged checksum value.
func NewChecksum(algo, hexDigest string) Checksum {
	return Checksum(algo + ":" + hexDigest)
}

// Equal reports whether two checksums carry the same algorithm and digest.
// An empty checksum is never equal to anything, including another empty one,
// since "no checksum on record" must never be mistaken for "content unchanged".
func (c Checksum) Equal(other Checksum) bool {
	if c == "" || other == "" {
		return false
	}
	return c == other
}

// DatasetMetadata is the authoritative persisted record for one mirrored
// file. The primary key is definitionId + "/" + normalise(datasetId).
type DatasetMetadata struct {
	PrimaryKey     string            `json:"_id" dynamodbav:"_id"`
	DefinitionID   string            `json:"definitionId" dynamodbav:"definitionId"`
	DatasetID      string            `json:"datasetId" dynamodbav:"datasetId"`
	FileURI        string            `json:"fileURI" dynamodbav:"fileURI"`
	Checksum       Checksum          `json:"checksum" dynamodbav:"checksum"`
	Status         Status            `json:"status" dynamodbav:"status"`
	LastModified   int64             `json:"lastModified" dynamodbav:"lastModified"`
	LastDownloaded int64             `json:"lastDownloaded" dynamodbav:"lastDownloaded"`
	ErrorMessage   string            `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
	Stacktrace     []string          `json:"stacktrace,omitempty" dynamodbav:"stacktrace,omitempty"`
	ExtractedMeta  map[string]any    `json:"extractedMetadata,omitempty" dynamodbav:"extractedMetadata,omitempty"`
}

// normaliseChar mirrors the store's key-alphabet restriction: anything that
// isn't alphanumeric, '-', or '_' is unsafe and gets folded to a single '_'.
// A dot is the common offender (Design Notes §9, Scenario E).
func normaliseChar(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		return r
	default:
		return '_'
	}
}

// NormaliseDatasetID replaces every character unsafe for the store's key
// alphabet with '_'. This is lossy by design: distinct ids can collide onto
// the same normalised form, and legacy records stored under the raw
// (un-normalised) id are therefore invisible to lookups keyed by this
// function. See Design Notes §9 "Dataset-id normalisation drift".
func NormaliseDatasetID(datasetID string) string {
	var b strings.Builder
	b.Grow(len(datasetID))
	for _, r := range datasetID {
		b.WriteRune(normaliseChar(r))
	}
	return b.String()
}

// PrimaryKeyFor builds the canonical "(definitionId, datasetId)" key.
func PrimaryKeyFor(definitionID, datasetID string) string {
	return fmt.Sprintf("%s/%s", definitionID, NormaliseDatasetID(datasetID))
}
