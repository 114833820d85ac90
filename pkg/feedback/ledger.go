// Package feedback records human match outcomes against tracked projects.
package feedback

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// FeedbackStore is the persistence the ledger writes through.
type FeedbackStore interface {
	Upsert(ctx context.Context, rec models.FeedbackRecord) error
	ListByQuery(ctx context.Context, queryID string) ([]models.FeedbackRecord, error)
	DemoteOtherPositives(ctx context.Context, queryID string, keepCandidateID int64) (int64, error)
}

// QueryStore is the slice of the query repository the ledger needs.
type QueryStore interface {
	GetByID(ctx context.Context, id string) (*models.QueryRecord, error)
	IsClosed(ctx context.Context, id string) (bool, error)
	Close(ctx context.Context, id string) error
}

// CandidateStore resolves the candidate a feedback row points at.
type CandidateStore interface {
	GetByID(ctx context.Context, id int64) (*models.CandidateRecord, error)
}

type Ledger struct {
	db         database.DB
	feedback   FeedbackStore
	queries    QueryStore
	candidates CandidateStore
	validate   *validator.Validate
	logger     ectologger.Logger
	today      func() string
}

func NewLedger(db database.DB, feedback FeedbackStore, queries QueryStore, candidates CandidateStore, logger ectologger.Logger) *Ledger {
	return &Ledger{
		db:         db,
		feedback:   feedback,
		queries:    queries,
		candidates: candidates,
		validate:   validator.New(),
		logger:     logger,
		today:      func() string { return time.Now().UTC().Format(time.DateOnly) },
	}
}

// Record stores one feedback row. A confirmed match closes the query and clears any other
// confirmed row for it, so a query never has more than one positive.
func (l *Ledger) Record(ctx context.Context, rec models.FeedbackRecord) error {
	ctx, span := tracing.StartSpan(ctx, "feedback.Ledger.Record")
	defer span.End()

	if rec.Source == "" {
		rec.Source = models.FeedbackSourceFeedback
	}
	if rec.LogDate == "" {
		rec.LogDate = l.today()
	}
	if err := l.validate.Struct(rec); err != nil {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid feedback: %s", err.Error())
	}

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"query_id":     rec.QueryID,
		"candidate_id": rec.CandidateID,
		"ground_truth": rec.GroundTruth,
		"source":       rec.Source,
	})

	query, err := l.queries.GetByID(ctx, rec.QueryID)
	if err != nil {
		return err
	}
	if query == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "query record %s does not exist", rec.QueryID)
	}
	candidate, err := l.candidates.GetByID(ctx, rec.CandidateID)
	if err != nil {
		return err
	}
	if candidate == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "candidate record %d does not exist", rec.CandidateID)
	}

	ctx, tx, err := l.db.GetTx(ctx, nil)
	if err != nil {
		log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to begin feedback transaction")
		return err
	}
	defer tx.Rollback(ctx)

	// re-read inside the transaction, a concurrent confirmation may have closed the query
	closed, err := l.queries.IsClosed(ctx, rec.QueryID)
	if err != nil {
		return err
	}
	if closed && rec.GroundTruth == 1 {
		log.Info("Query already resolved, recording confirmation as the new match")
	}

	if err := l.feedback.Upsert(ctx, rec); err != nil {
		return err
	}

	if rec.GroundTruth == 1 {
		demoted, err := l.feedback.DemoteOtherPositives(ctx, rec.QueryID, rec.CandidateID)
		if err != nil {
			return err
		}
		if demoted > 0 {
			log.WithField("demoted", demoted).Warn("Superseded earlier confirmed match")
		}
		if !closed {
			if err := l.queries.Close(ctx, rec.QueryID); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).WithField("category", metrics.CategoryStore).Error("Failed to commit feedback")
		return err
	}

	metrics.RecordFeedback(rec.Source, rec.GroundTruth)
	log.Info("Recorded feedback")
	return nil
}

// List returns the feedback rows recorded for a query.
func (l *Ledger) List(ctx context.Context, queryID string) ([]models.FeedbackRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "feedback.Ledger.List")
	defer span.End()

	return l.feedback.ListByQuery(ctx, queryID)
}
