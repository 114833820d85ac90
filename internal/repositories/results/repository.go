package results

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	tableName   = "lifecycle_results"
	defaultPage = 50
	maxPage     = 500
)

var columns = []string{
	"id", "run_date", "model_slot", "model_name", "true_positives", "false_positives", "false_negatives",
	"true_negatives", "recall_score", "precision_score", "prob_floor", "promoted", "created_at",
}

// Repository is the append-only ledger of lifecycle validation results.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Append adds an entry, filling its id and creation time.
func (r *Repository) Append(ctx context.Context, entry models.ResultsEntry) (*models.ResultsEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultsRepository.Append")
	defer span.End()

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	ib := database.NewInsertBuilder(r.db)
	ib.InsertInto(tableName).
		Cols(columns...).
		Values(entry.ID, entry.RunDate, entry.ModelSlot, entry.ModelName, entry.TruePositives, entry.FalsePositives,
			entry.FalseNegatives, entry.TrueNegatives, entry.Recall, entry.Precision, entry.ProbFloor,
			database.BoolInt(entry.Promoted), entry.CreatedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_date":   entry.RunDate,
			"model_slot": entry.ModelSlot,
		}).Error("failed to append lifecycle result")
		return nil, repositories.Internal("failed to append lifecycle result")
	}
	return &entry, nil
}

// List returns the most recent entries first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.ResultsEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ResultsRepository.List")
	defer span.End()

	if limit < 1 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).OrderBy("created_at DESC", "run_date DESC", "model_slot").Limit(limit)

	query, args := sb.Build()
	entries := []models.ResultsEntry{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list lifecycle results")
		return nil, repositories.Internal("failed to list lifecycle results")
	}
	return entries, nil
}
