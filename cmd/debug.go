package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Show loaded configuration for debugging",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)
		fmt.Printf("Configuration:\n")
		fmt.Printf("  Log Level: %s\n", cfg.LogLevel)
		fmt.Printf("  Dry Run: %v\n", cfg.DryRun)
		fmt.Printf("  Limit: %d\n", cfg.Limit)
		fmt.Printf("  Definition ID: %s\n", cfg.DefinitionID)
		fmt.Printf("  Files: %v\n", cfg.Files)
		fmt.Printf("  DynamoDB Table: %s\n", cfg.DynamoDBTable)
		fmt.Printf("  DynamoDB Region: %s\n", cfg.DynamoDBRegion)
		fmt.Printf("  Download Complete Channel: %s\n", cfg.DownloadCompleteChannel)
		fmt.Printf("  Final Aggregate Channel: %s\n", cfg.FinalAggregateChannel)
		fmt.Printf("  Admin Channel: %s\n", cfg.AdminChannel)
	},
}
