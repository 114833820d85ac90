package queryrecord

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/internal/repositories"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const tableName = "query_records"

var columns = []string{
	"id", "job_number", "city", "address", "title", "owner", "contractor", "certifier",
	"submitted_date", "latitude", "longitude", "closed", "last_seen_candidate_id",
}

// Repository stores tracked projects.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new query record. An existing id is a conflict.
func (r *Repository) Create(ctx context.Context, rec models.QueryRecord) (*models.QueryRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.Create")
	defer span.End()

	existing, err := r.GetByID(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, repositories.Conflict("query record %s already exists", rec.ID)
	}

	ib := database.NewInsertBuilder(r.db)
	ib.InsertInto(tableName).
		Cols(columns...).
		Values(rec.ID, rec.JobNumber, rec.City, rec.Address, rec.Title, rec.Owner, rec.Contractor, rec.Certifier,
			rec.SubmittedDate, rec.Latitude, rec.Longitude, database.BoolInt(rec.Closed), rec.LastSeenCandidateID)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", rec.ID).Error("failed to create query record")
		return nil, repositories.Internal("failed to create query record")
	}

	r.logger.WithContext(ctx).WithField("query_id", rec.ID).Debugf("Created %s", tableName)
	return &rec, nil
}

// GetByID returns the record, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.QueryRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec models.QueryRecord
	err := database.Conn(ctx, r.db).GetContext(ctx, &rec, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", id).Error("failed to get query record")
		return nil, repositories.Internal("failed to get query record")
	}
	return &rec, nil
}

// ListOpen returns every query record without a confirmed match, in id order.
func (r *Repository) ListOpen(ctx context.Context) ([]models.QueryRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.ListOpen")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.Equal("closed", 0)).OrderBy("id")

	query, args := sb.Build()
	records := []models.QueryRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list open query records")
		return nil, repositories.Internal("failed to list open query records")
	}

	r.logger.WithContext(ctx).WithField("query_count", len(records)).Debugf("Listed %s", tableName)
	return records, nil
}

// ListByIDs returns the records with the given ids, in id order. Unknown ids are skipped.
func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]models.QueryRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.ListByIDs")
	defer span.End()

	records := []models.QueryRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.In("id", sqlbuilder.Flatten(ids)...)).OrderBy("id")

	query, args := sb.Build()
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list query records")
		return nil, repositories.Internal("failed to list query records")
	}
	return records, nil
}

// IsClosed reads the record's closed flag straight from the store.
func (r *Repository) IsClosed(ctx context.Context, id string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.IsClosed")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select("closed").From(tableName).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var closed bool
	err := database.Conn(ctx, r.db).GetContext(ctx, &closed, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, repositories.NotFound("query record %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", id).Error("failed to read closed flag")
		return false, repositories.Internal("failed to read query record")
	}
	return closed, nil
}

// Close marks the record as resolved.
func (r *Repository) Close(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.Close")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(tableName).Set(ub.Assign("closed", 1)).Where(ub.Equal("id", id))

	return r.execOne(ctx, ub, id, "close query record")
}

// UpdateWatermark advances last_seen_candidate_id. It never moves backwards.
func (r *Repository) UpdateWatermark(ctx context.Context, id string, candidateID int64) error {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.UpdateWatermark")
	defer span.End()

	ub := database.NewUpdateBuilder(r.db)
	ub.Update(tableName).
		Set(ub.Assign("last_seen_candidate_id", candidateID)).
		Where(ub.Equal("id", id), ub.LessThan("last_seen_candidate_id", candidateID))

	query, args := ub.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"query_id":     id,
			"candidate_id": candidateID,
		}).Error("failed to update watermark")
		return repositories.Internal("failed to update watermark")
	}
	return nil
}

// Delete removes a record and its feedback. Operator use only.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "QueryRecordRepository.Delete")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return repositories.Internal("failed to delete query record")
	}
	defer tx.Rollback(ctx)

	fb := database.NewDeleteBuilder(r.db)
	fb.DeleteFrom("feedback_records").Where(fb.Equal("query_id", id))
	query, args := fb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", id).Error("failed to delete feedback for query record")
		return repositories.Internal("failed to delete query record")
	}

	db := database.NewDeleteBuilder(r.db)
	db.DeleteFrom(tableName).Where(db.Equal("id", id))
	if err := r.execOne(ctx, db, id, "delete query record"); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return repositories.Internal("failed to delete query record")
	}

	r.logger.WithContext(ctx).WithField("query_id", id).Info("Deleted query record")
	return nil
}

func (r *Repository) execOne(ctx context.Context, b sqlbuilder.Builder, id, action string) error {
	query, args := b.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", id).Errorf("failed to %s", action)
		return repositories.Internal("failed to " + action)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("query_id", id).Errorf("failed to %s", action)
		return repositories.Internal("failed to " + action)
	}
	if rows == 0 {
		return repositories.NotFound("query record %s does not exist", id)
	}
	return nil
}
