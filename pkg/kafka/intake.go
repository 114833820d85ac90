package kafka

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

var validate = validator.New()

// CandidateInserter stores postings, ignoring ids already seen.
type CandidateInserter interface {
	Insert(ctx context.Context, rec models.CandidateRecord) (bool, error)
}

// FeedbackRecorder records a human match outcome.
type FeedbackRecorder interface {
	Record(ctx context.Context, rec models.FeedbackRecord) error
}

// CandidateIntake handles scraped certificate postings. The publish date is reduced to its
// YYYY-MM-DD form before the posting is stored.
func CandidateIntake(inserter CandidateInserter, logger ectologger.Logger) MessageHandler {
	return func(ctx context.Context, msg *IncomingMessage) error {
		var posting models.CandidatePosting
		if err := msg.Decode(&posting); err != nil {
			return err
		}
		if err := validate.Struct(posting); err != nil {
			return Permanent(fmt.Errorf("invalid posting %d: %w", posting.ID, err))
		}

		published := normalizers.PublishDate(posting.PublishDate)
		if published == "" {
			return Permanent(fmt.Errorf("posting %d has no YYYY-MM-DD publish date in %q", posting.ID, posting.PublishDate))
		}
		posting.PublishDate = published

		inserted, err := inserter.Insert(ctx, posting.ToRecord())
		if err != nil {
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{
			"candidate_id": posting.ID,
			"source":       posting.Source,
			"inserted":     inserted,
		}).Debug("Consumed candidate posting")
		return nil
	}
}

// FeedbackIntake handles feedback events. Records the ledger refuses as invalid are
// committed and skipped.
func FeedbackIntake(recorder FeedbackRecorder, logger ectologger.Logger) MessageHandler {
	return func(ctx context.Context, msg *IncomingMessage) error {
		var rec models.FeedbackRecord
		if err := msg.Decode(&rec); err != nil {
			return err
		}

		if err := recorder.Record(ctx, rec); err != nil {
			if status := httperror.GetStatusCode(err); status >= 400 && status < 500 {
				return Permanent(err)
			}
			return err
		}

		logger.WithContext(ctx).WithFields(map[string]any{
			"query_id":     rec.QueryID,
			"candidate_id": rec.CandidateID,
		}).Debug("Consumed feedback")
		return nil
	}
}
