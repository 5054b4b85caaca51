package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/cobra"

	storemigrate "github.com/zzenonn/ereefs-mirror/internal/store/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or drop the dataset-metadata DynamoDB table",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create the dataset-metadata table",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the dataset-metadata table",
	RunE:  runMigrateDown,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	client := dynamodb.NewFromConfig(cfg.AwsConfig)

	migration := &storemigrate.CreateDatasetMetadataTable{}
	if err := migration.Up(context.Background(), client); err != nil {
		return fmt.Errorf("running migration %s: %w", migration.Version(), err)
	}
	fmt.Printf("table %s created\n", migration.TableName())
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	client := dynamodb.NewFromConfig(cfg.AwsConfig)

	migration := &storemigrate.CreateDatasetMetadataTable{}
	if err := migration.Down(context.Background(), client); err != nil {
		return fmt.Errorf("rolling back migration %s: %w", migration.Version(), err)
	}
	fmt.Printf("table %s dropped\n", migration.TableName())
	return nil
}
