// Package notify is the notification adapter of spec.md §4.7: four
// fire-and-forget notification kinds delivered over SNS, constructed the
// same way the teacher constructs its other AWS service clients in
// internal/repository/db/db.go (NewFromConfig, thin wrapper struct).
// Failures here are logged, never propagated as a download failure.
package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	log "github.com/sirupsen/logrus"
)

// Channels is the set of SNS topic ARNs the loop publishes to (spec.md §6:
// "three channel identifiers are read from the environment").
type Channels struct {
	DownloadComplete string
	FinalAggregate   string
	Admin            string
}

// Notifier is the capability the reconciliation loop and pipeline depend
// on. All methods are fire-and-forget: a delivery failure is logged by the
// implementation and never returned to the caller as an error the caller
// must act on.
type Notifier interface {
	DiskFull(ctx context.Context, definitionID, sourceURI string, sizeMB, freeMB float64)
	CorruptedFile(ctx context.Context, definitionID, datasetID, message string)
	DefinitionComplete(ctx context.Context, definitionID string, successes, warnings, errors int)
	FinalAggregate(ctx context.Context, summaries map[string][3]int)
}

// SNSNotifier publishes each notification kind as a plain-text SNS
// message, grounded on the teacher's AWS service-client construction
// idiom (NewFromConfig + thin wrapper).
type SNSNotifier struct {
	client   *sns.Client
	channels Channels
}

func NewSNSNotifier(awsConfig aws.Config, channels Channels) *SNSNotifier {
	return &SNSNotifier{
		client:   sns.NewFromConfig(awsConfig),
		channels: channels,
	}
}

func (n *SNSNotifier) publish(ctx context.Context, topicARN, subject, message string) {
	if topicARN == "" {
		log.WithField("subject", subject).Warn("notify: no channel configured, dropping notification")
		return
	}
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		log.WithError(err).WithField("subject", subject).Error("notify: failed to publish")
	}
}

// DiskFull targets the administrative channel (spec.md §4.7: "Disk-full
// and corrupted notifications target an administrative channel").
func (n *SNSNotifier) DiskFull(ctx context.Context, definitionID, sourceURI string, sizeMB, freeMB float64) {
	msg := fmt.Sprintf("definition=%s source=%s sizeMB=%.2f freeMB=%.2f", definitionID, sourceURI, sizeMB, freeMB)
	n.publish(ctx, n.channels.Admin, "disk full", msg)
}

func (n *SNSNotifier) CorruptedFile(ctx context.Context, definitionID, datasetID, message string) {
	msg := fmt.Sprintf("definition=%s dataset=%s error=%s", definitionID, datasetID, message)
	n.publish(ctx, n.channels.Admin, "corrupted file", msg)
}

// DefinitionComplete targets the download-complete channel.
func (n *SNSNotifier) DefinitionComplete(ctx context.Context, definitionID string, successes, warnings, errors int) {
	msg := fmt.Sprintf("definition=%s successes=%d warnings=%d errors=%d", definitionID, successes, warnings, errors)
	n.publish(ctx, n.channels.DownloadComplete, "definition download complete", msg)
}

// FinalAggregate targets the final-aggregate channel. summaries maps
// definitionID to [successes, warnings, errors].
func (n *SNSNotifier) FinalAggregate(ctx context.Context, summaries map[string][3]int) {
	msg := ""
	for id, counts := range summaries {
		msg += fmt.Sprintf("definition=%s successes=%d warnings=%d errors=%d\n", id, counts[0], counts[1], counts[2])
	}
	n.publish(ctx, n.channels.FinalAggregate, "run complete", msg)
}
