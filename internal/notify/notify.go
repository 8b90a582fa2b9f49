package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNS rejects subjects longer than 100 characters.
const maxSubjectLen = 100

type Publisher interface {
	Publish(ctx context.Context, subject, message string) error
}

type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNS struct {
	client   API
	topicARN string
}

func NewSNS(client API, topicARN string) *SNS {
	return &SNS{client: client, topicARN: topicARN}
}

func NewFromConfig(cfg aws.Config, topicARN string) *SNS {
	return NewSNS(sns.NewFromConfig(cfg), topicARN)
}

func (s *SNS) Publish(ctx context.Context, subject, message string) error {
	out, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(truncate(subject, maxSubjectLen)),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	slog.Info("Notification published", "topic", s.topicARN, "messageId", aws.ToString(out.MessageId))
	return nil
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for cut < len(s) {
		_, size := utf8.DecodeRuneInString(s[cut:])
		if cut+size > n-3 {
			break
		}
		cut += size
	}
	return s[:cut] + "..."
}

// Report summarises a successful run.
type Report struct {
	Database         string
	Location         string
	StoredBytes      int64
	OriginalBytes    int64
	Compression      string
	CompressionRatio float64
	Tables           int
	Sequences        int
	Encrypted        bool
	Duration         time.Duration
	Timestamp        string
	RunID            string
}

func megabytes(n int64) float64 {
	return float64(n) / 1024 / 1024
}

func SuccessMessage(r Report) (subject, message string) {
	subject = fmt.Sprintf("Backup succeeded: %s", r.Database)

	var b strings.Builder
	fmt.Fprintf(&b, "Backup completed successfully\n\n")
	fmt.Fprintf(&b, "Database:    %s\n", r.Database)
	fmt.Fprintf(&b, "Location:    %s\n", r.Location)
	fmt.Fprintf(&b, "Size:        %.2f MB\n", megabytes(r.StoredBytes))
	if r.Compression != "" && r.Compression != "none" {
		fmt.Fprintf(&b, "Original:    %.2f MB\n", megabytes(r.OriginalBytes))
		fmt.Fprintf(&b, "Compression: %s (ratio %.2f)\n", r.Compression, r.CompressionRatio)
	}
	fmt.Fprintf(&b, "Tables:      %d\n", r.Tables)
	fmt.Fprintf(&b, "Sequences:   %d\n", r.Sequences)
	if r.Encrypted {
		fmt.Fprintf(&b, "Encrypted:   age\n")
	}
	fmt.Fprintf(&b, "Duration:    %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "Timestamp:   %s\n", r.Timestamp)
	fmt.Fprintf(&b, "Run ID:      %s\n", r.RunID)

	return subject, b.String()
}

func FailureMessage(database string, err error, at time.Time, runID string) (subject, message string) {
	subject = fmt.Sprintf("Backup FAILED: %s", database)

	var b strings.Builder
	fmt.Fprintf(&b, "Backup failed\n\n")
	fmt.Fprintf(&b, "Database:  %s\n", database)
	fmt.Fprintf(&b, "Error:     %v\n", err)
	fmt.Fprintf(&b, "Time:      %s\n", at.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Run ID:    %s\n", runID)

	return subject, b.String()
}
