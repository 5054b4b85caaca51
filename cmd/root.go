// Command ereefs-mirror is the scheduled ingestion worker's entrypoint: a
// cobra.Command tree (root, run, migrate, debug) directly modelled on the
// teacher's cmd/main.go initConfig/setupFlags wiring, with viper-bound
// flags and environment variables (spec.md §6).
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/ereefs-mirror/internal/config"
	"github.com/zzenonn/ereefs-mirror/internal/logging"
)

var (
	cfg        *config.Config
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "ereefs-mirror",
	Short: "Mirrors THREDDS-catalogued scientific datasets into a durable object store",
	Long:  "A scheduled ingestion worker that reconciles one or more THREDDS catalogues against an object store and a DynamoDB metadata index.",
}

func init() {
	setupFlags()
	addCommands()
}

func setupFlags() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (no config file is read when unset)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("dynamodb-table", "dataset_metadata", "DynamoDB table name")
	rootCmd.PersistentFlags().String("dynamodb-region", "", "DynamoDB region override")
	rootCmd.PersistentFlags().String("download-complete-channel", "", "SNS topic ARN for per-definition download notifications")
	rootCmd.PersistentFlags().String("final-aggregate-channel", "", "SNS topic ARN for the final run-aggregate notification")
	rootCmd.PersistentFlags().String("admin-channel", "", "SNS topic ARN for disk-full and corrupted-file notifications")
}

func addCommands() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(debugCmd)
}

// loadConfig binds cmd's merged flag set (local plus inherited persistent
// flags, already merged by cobra by the time a subcommand's RunE fires)
// via config.LoadConfig, and initialises logging from the result.
func loadConfig(cmd *cobra.Command) *config.Config {
	var err error
	cfg, err = config.LoadConfig(configPath, cmd)
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	logging.InitLogger(cfg)
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
