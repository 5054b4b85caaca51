package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zzenonn/ereefs-mirror/internal/catalogue"
	"github.com/zzenonn/ereefs-mirror/internal/domain"
	"github.com/zzenonn/ereefs-mirror/internal/integrity"
	"github.com/zzenonn/ereefs-mirror/internal/notify"
	"github.com/zzenonn/ereefs-mirror/internal/reconcile"
	"github.com/zzenonn/ereefs-mirror/internal/sink"
	"github.com/zzenonn/ereefs-mirror/internal/store"
	"github.com/zzenonn/ereefs-mirror/internal/transport"
)

var definitionsFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile configured definitions against their THREDDS catalogues",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "log intended transfers without downloading or publishing")
	runCmd.Flags().Int("limit", -1, "cap on successful downloads per definition; <0 means unlimited, 0 means do nothing")
	runCmd.Flags().String("definition-id", "", "restrict the run to one definition (including disabled ones)")
	runCmd.Flags().String("files", "", "comma-separated filenames, overriding the definition's filter (requires definition-id)")
	runCmd.Flags().StringVar(&definitionsFile, "definitions-file", "definitions.json", "path to the JSON array of download definitions")
}

func loadDefinitions(path string) ([]domain.DownloadDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file %s: %w", path, err)
	}
	var defs []domain.DownloadDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("parsing definitions file %s: %w", path, err)
	}
	return defs, nil
}

// selectDefinitions applies spec.md §6's definitionId/files override: when
// definitionId is set, only that definition runs (even if disabled), and
// an explicit files list overrides its filter.
func selectDefinitions(all []domain.DownloadDefinition, definitionID string, files []string) ([]domain.DownloadDefinition, error) {
	if definitionID == "" {
		return all, nil
	}
	for _, def := range all {
		if def.ID != definitionID {
			continue
		}
		def.Enabled = true
		if len(files) > 0 {
			def.Files = files
			def.FilenameRegex = ""
		}
		return []domain.DownloadDefinition{def}, nil
	}
	return nil, fmt.Errorf("definition %s not found", definitionID)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)

	defs, err := loadDefinitions(definitionsFile)
	if err != nil {
		return err
	}
	defs, err = selectDefinitions(defs, cfg.DefinitionID, cfg.Files)
	if err != nil {
		return err
	}

	dynamoClient := dynamodb.NewFromConfig(cfg.AwsConfig)
	s3Client := s3.NewFromConfig(cfg.AwsConfig)
	metadataStore := store.NewDynamoStore(dynamoClient, cfg.DynamoDBTable)

	notifier := notify.NewSNSNotifier(cfg.AwsConfig, notify.Channels{
		DownloadComplete: cfg.DownloadCompleteChannel,
		FinalAggregate:   cfg.FinalAggregateChannel,
		Admin:            cfg.AdminChannel,
	})

	pipeline := &reconcile.Pipeline{
		Fetcher:   transport.NewFetcher(false),
		Integrity: integrity.NewNetCDFAdapter(),
		Notifier:  notifier,
		DryRun:    cfg.DryRun,
		Now:       reconcile.UnixMillis,
	}

	runner := &reconcile.Runner{
		Loader:   catalogue.NewLoader(),
		Store:    metadataStore,
		Pipeline: pipeline,
		Notifier: notifier,
		SinkFor: func(output domain.Output) (sink.Sink, error) {
			return sink.New(output, s3Client)
		},
		Limit: cfg.Limit,
		Now:   reconcile.UnixMillis,
	}

	summary, err := runner.Run(context.Background(), defs)
	if err != nil {
		return err
	}

	for id, output := range summary.Definitions {
		log.WithFields(log.Fields{
			"definition": id,
			"successes":  len(output.Successes),
			"warnings":   len(output.Warnings),
			"errors":     len(output.Errors),
		}).Info("definition reconciled")
	}

	// spec.md §6: a successful run exits 0 regardless of per-file warnings
	// or errors; only a run that executed no definition at all is treated
	// as a configuration fault (spec.md §7).
	if len(summary.Definitions) == 0 {
		return fmt.Errorf("no definitions ran")
	}
	return nil
}
