package feedback

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "feedback_records"

var columns = []string{"query_id", "candidate_id", "ground_truth", "multi_phase", "validate", "source", "log_date"}

// Repository stores match feedback, one row per (query, candidate).
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Upsert writes a feedback row. A later write for the same pair replaces the earlier one.
func (r *Repository) Upsert(ctx context.Context, rec models.FeedbackRecord) error {
	ctx, span := tracing.StartSpan(ctx, "FeedbackRepository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder(r.db)
	ib.InsertInto(tableName).
		Cols(columns...).
		Values(rec.QueryID, rec.CandidateID, rec.GroundTruth, rec.MultiPhase, rec.Validate, rec.Source, rec.LogDate)

	query, args := ib.Build()
	query += database.OnConflictUpdate([]string{"query_id", "candidate_id"},
		"ground_truth", "multi_phase", "validate", "source", "log_date")

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"query_id":     rec.QueryID,
			"candidate_id": rec.CandidateID,
		}).Error("failed to upsert feedback")
		return repositories.Internal("failed to record feedback")
	}
	return nil
}

// Get returns one feedback row, or nil when none exists.
func (r *Repository) Get(ctx context.Context, queryID string, candidateID int64) (*models.FeedbackRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "FeedbackRepository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.Equal("query_id", queryID), sb.Equal("candidate_id", candidateID))

	query, args := sb.Build()
	var rec models.FeedbackRecord
	err := database.Conn(ctx, r.db).GetContext(ctx, &rec, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", queryID).Error("failed to get feedback")
		return nil, repositories.Internal("failed to get feedback")
	}
	return &rec, nil
}

// ListByQuery returns the feedback rows of one query, in candidate order.
func (r *Repository) ListByQuery(ctx context.Context, queryID string) ([]models.FeedbackRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "FeedbackRepository.ListByQuery")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.Equal("query_id", queryID)).OrderBy("candidate_id")

	query, args := sb.Build()
	records := []models.FeedbackRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", queryID).Error("failed to list feedback")
		return nil, repositories.Internal("failed to list feedback")
	}
	return records, nil
}

// ListConfirmed returns confirmed single-phase matches, split by the validate flag:
// validate=0 rows train models and validate=1 rows are held out to gate them.
func (r *Repository) ListConfirmed(ctx context.Context, validate int) ([]models.FeedbackRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "FeedbackRepository.ListConfirmed")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).
		Where(sb.Equal("ground_truth", 1), sb.Equal("multi_phase", 0), sb.Equal("validate", validate)).
		OrderBy("query_id", "candidate_id")

	query, args := sb.Build()
	records := []models.FeedbackRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("validate", validate).Error("failed to list confirmed feedback")
		return nil, repositories.Internal("failed to list confirmed feedback")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"validate":       validate,
		"feedback_count": len(records),
	}).Debugf("Listed %s", tableName)
	return records, nil
}

// DemoteOtherPositives clears ground_truth on every other confirmed row of the query.
func (r *Repository) DemoteOtherPositives(ctx context.Context, queryID string, keepCandidateID int64) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "FeedbackRepository.DemoteOtherPositives")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(tableName).
		Set(ub.Assign("ground_truth", 0)).
		Where(ub.Equal("query_id", queryID), ub.Equal("ground_truth", 1), ub.NotEqual("candidate_id", keepCandidateID))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", queryID).Error("failed to demote feedback")
		return 0, repositories.Internal("failed to record feedback")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, repositories.Internal("failed to record feedback")
	}
	return rows, nil
}
