// Package store is the metadata store adapter of spec.md §4.8, generalising
// the teacher's internal/repository/db/metadata_repository.go: a
// DynamoDB-backed repository keyed the same way, (partition key,
// sort key), just renamed from (prefix, file_name) to
// (definitionId, primaryKey).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zzenonn/ereefs-mirror/internal/domain"
)

// ErrNotFound reports that no metadata record exists for a key. No method
// of DynamoStore returns it.
var ErrNotFound = errors.New("metadata not found")

// MetadataStore is the capability the reconciliation loop needs (spec.md
// §4.8): list, upsert, delete.
type MetadataStore interface {
	List(ctx context.Context, definitionID string) ([]domain.DatasetMetadata, error)
	Upsert(ctx context.Context, record domain.DatasetMetadata) error
	Delete(ctx context.Context, definitionID, primaryKey string) error
}

// DynamoStore manages DynamoDB interactions for DatasetMetadata.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore initialises a new DynamoStore.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName}
}

// List retrieves every DatasetMetadata record for definitionID. The
// reconciliation loop calls this once per definition, at the start of its
// run, and keeps the result in memory for the rest of the run (spec.md
// §4.8's single-batched-fetch caching rule).
func (s *DynamoStore) List(ctx context.Context, definitionID string) ([]domain.DatasetMetadata, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#definitionId = :definitionId"),
		ExpressionAttributeNames: map[string]string{
			"#definitionId": "definitionId",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":definitionId": &types.AttributeValueMemberS{Value: definitionID},
		},
	}

	var records []domain.DatasetMetadata
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("querying metadata for definition %s: %w", definitionID, err)
		}
		for _, item := range result.Items {
			var record domain.DatasetMetadata
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, fmt.Errorf("unmarshalling metadata: %w", err)
			}
			records = append(records, record)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
	return records, nil
}

// Upsert stores record, full replacement on the primary key (spec.md
// §4.8: "writes go straight through").
func (s *DynamoStore) Upsert(ctx context.Context, record domain.DatasetMetadata) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("upserting metadata %s: %w", record.PrimaryKey, err)
	}
	return nil
}

// Delete removes a record by its composite key. The reconciliation loop
// never actually deletes records (DELETED is a status, not a removal;
// spec.md §3 Lifecycle) — Delete exists for completeness and for test/ops
// tooling that needs to purge a malformed legacy record.
func (s *DynamoStore) Delete(ctx context.Context, definitionID, primaryKey string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"definitionId": &types.AttributeValueMemberS{Value: definitionID},
			"_id":          &types.AttributeValueMemberS{Value: primaryKey},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting metadata %s: %w", primaryKey, err)
	}
	return nil
}
