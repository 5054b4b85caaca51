// Package config holds the explicit configuration record the reconciliation
// engine is constructed with. Design Notes §9 ("Implicit global state")
// call for environment reading to live at the outer cmd/ boundary rather
// than scattered through the core; LoadConfig is that boundary, wired with
// viper the way the teacher wires its CLI configuration.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the explicit, immutable-per-run configuration passed into the
// reconciliation constructor. Nothing downstream of LoadConfig reads an
// environment variable directly.
type Config struct {
	LogLevel string

	// Run controls, per spec.md §6.
	DryRun       bool
	Limit        int
	DefinitionID string // optional; restricts the run to one definition
	Files        []string

	// Metadata store.
	AwsConfig      aws.Config
	DynamoDBTable  string
	DynamoDBRegion string

	// Notification channels, per spec.md §6.
	DownloadCompleteChannel string
	FinalAggregateChannel   string
	AdminChannel            string
}

// LoadConfig binds flags, environment, and an optional config file via
// viper, validating the invalid-dryRun-defaults-to-true safety rule from
// spec.md §6.
func LoadConfig(configPath string, cmd *cobra.Command) (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	v.SetDefault("log-level", "info")
	v.SetDefault("limit", -1)
	v.SetDefault("dry-run", false)
	v.SetDefault("dynamodb-table", "dataset_metadata")

	dryRun, err := parseDryRun(v.GetString("dry-run"))
	if err != nil {
		// Per spec.md §6: an invalid dryRun value must default to true, so a
		// misconfigured run never mirrors destructively by accident.
		dryRun = true
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}
	if region := v.GetString("dynamodb-region"); region != "" {
		awsCfg.Region = region
	}

	var files []string
	if raw := v.GetString("files"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				files = append(files, f)
			}
		}
	}

	return &Config{
		LogLevel:                v.GetString("log-level"),
		DryRun:                  dryRun,
		Limit:                   v.GetInt("limit"),
		DefinitionID:            v.GetString("definition-id"),
		Files:                   files,
		AwsConfig:               awsCfg,
		DynamoDBTable:           v.GetString("dynamodb-table"),
		DynamoDBRegion:          v.GetString("dynamodb-region"),
		DownloadCompleteChannel: v.GetString("download-complete-channel"),
		FinalAggregateChannel:   v.GetString("final-aggregate-channel"),
		AdminChannel:            v.GetString("admin-channel"),
	}, nil
}

// parseDryRun mirrors strconv.ParseBool but treats the empty string as
// "use the default", leaving the invalid-value fallback to the caller.
func parseDryRun(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no":
		return false, nil
	case "true", "1", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("invalid dry-run value %q", s)
	}
}
