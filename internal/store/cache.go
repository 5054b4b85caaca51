package store

import (
	"context"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

// DefinitionCache holds one definition's metadata records in memory for
// the duration of a reconciliation run: a single batched List at
// construction, keyed by the canonical primary key so a lookup by a
// freshly normalised dataset id naturally misses any legacy record stored
// under a differently-spelled key (Design Notes §9, Scenario E). Writes go
// straight through to the backing store and update the in-memory copy so
// later reads in the same run observe them (spec.md §4.8).
type DefinitionCache struct {
	backing      MetadataStore
	definitionID string
	byPrimaryKey map[string]domain.DatasetMetadata
}

// LoadDefinitionCache performs the single batched fetch spec.md §4.8
// requires at the start of reconciliation.
func LoadDefinitionCache(ctx context.Context, backing MetadataStore, definitionID string) (*DefinitionCache, error) {
	records, err := backing.List(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]domain.DatasetMetadata, len(records))
	for _, r := range records {
		byKey[r.PrimaryKey] = r
	}
	return &DefinitionCache{backing: backing, definitionID: definitionID, byPrimaryKey: byKey}, nil
}

// Get returns the record at the canonical primary key for datasetID, if
// any. A legacy record stored under a different (unsanitised) key is not
// returned here, by design.
func (c *DefinitionCache) Get(datasetID string) (domain.DatasetMetadata, bool) {
	key := domain.PrimaryKeyFor(c.definitionID, datasetID)
	rec, ok := c.byPrimaryKey[key]
	return rec, ok
}

// Upsert writes record through to the backing store and updates the
// in-memory copy.
func (c *DefinitionCache) Upsert(ctx context.Context, record domain.DatasetMetadata) error {
	if err := c.backing.Upsert(ctx, record); err != nil {
		return err
	}
	c.byPrimaryKey[record.PrimaryKey] = record
	return nil
}
