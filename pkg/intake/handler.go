// Package intake turns ingestion messages into open integrity issues
package intake

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/store"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Extractor builds a raw fact and issue type from a payload
type Extractor interface {
	Extract(payload []byte) (models.RawFact, string, error)
}

// NewHandler returns a consumer handler that stores each message as an open issue.
// Payloads that cannot be read are dropped; store failures are retried.
func NewHandler(extractor Extractor, issues store.IssueStore, logger ectologger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		ctx, span := tracing.StartSpan(ctx, "intake.Handler")
		defer span.End()

		fact, issueType, err := extractor.Extract(msg.Value)
		if err != nil {
			return &kafka.PermanentError{Err: err}
		}

		source := msg.Headers["source"]
		if source == "" {
			source = msg.Topic
		}

		issue, err := issues.CreateIssue(ctx, &models.Issue{
			IssueType: issueType,
			Source:    source,
			Fact:      fact,
		})
		if err != nil {
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{
			"issue_id":   issue.ID,
			"issue_type": issueType,
			"kind":       fact.Kind,
			"source":     source,
		}).Info("Raised integrity issue")
		return nil
	}
}
