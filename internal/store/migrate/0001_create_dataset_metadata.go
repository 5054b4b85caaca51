// Package migrate holds versioned DynamoDB table migrations for the
// metadata store, generalising the teacher's
// internal/repository/migrate idiom (CreateTableInput +
// NewTableExistsWaiter) to the dataset-metadata table's
// (definitionId, _id) key schema (spec.md §4.8).
package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	DatasetMetadataTableName = "dataset_metadata"
	DatasetMetadataVersion   = "20250731000000_dataset_metadata_table"
)

// CreateDatasetMetadataTable provisions the table the store package reads
// and writes through DynamoStore: partition key definitionId, sort key
// _id (the canonical primary key string from domain.PrimaryKeyFor), so a
// single Query call returns every record for one definition.
type CreateDatasetMetadataTable struct{}

func (m *CreateDatasetMetadataTable) Version() string {
	return DatasetMetadataVersion
}

func (m *CreateDatasetMetadataTable) TableName() string {
	return DatasetMetadataTableName
}

func (m *CreateDatasetMetadataTable) Up(ctx context.Context, client *dynamodb.Client) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("definitionId"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("_id"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("definitionId"),
				KeyType:       types.KeyTypeHash,
			},
			{
				AttributeName: aws.String("_id"),
				KeyType:       types.KeyTypeRange,
			},
		},
		TableName:   aws.String(DatasetMetadataTableName),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("DatasetMetadata"),
			},
			{
				Key:   aws.String("Environment"),
				Value: aws.String("Development"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(DatasetMetadataTableName),
	}, 5*time.Minute)
}

func (m *CreateDatasetMetadataTable) Down(ctx context.Context, client *dynamodb.Client) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(DatasetMetadataTableName),
	})
	return err
}
