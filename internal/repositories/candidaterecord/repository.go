package candidaterecord

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

const tableName = "candidate_records"

var columns = []string{
	"id", "publish_date", "job_number", "city", "address", "title", "owner", "contractor", "certifier",
	"latitude", "longitude", "source", "url",
}

// Repository stores scraped certificate postings. Postings are immutable once stored.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert stores a posting and reports whether it was new. A repeated id is ignored.
func (r *Repository) Insert(ctx context.Context, rec models.CandidateRecord) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CandidateRecordRepository.Insert")
	defer span.End()

	ib := database.NewInsertBuilder(r.db)
	ib.InsertInto(tableName).
		Cols(columns...).
		Values(rec.ID, rec.PublishDate, rec.JobNumber, rec.City, rec.Address, rec.Title, rec.Owner, rec.Contractor,
			rec.Certifier, rec.Latitude, rec.Longitude, rec.Source, rec.URL)

	query, args := ib.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query+database.OnConflictDoNothing("id"), args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", rec.ID).Error("failed to insert candidate record")
		return false, repositories.Internal("failed to insert candidate record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", rec.ID).Error("failed to insert candidate record")
		return false, repositories.Internal("failed to insert candidate record")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": rec.ID,
		"inserted":     rows > 0,
	}).Debugf("Inserted %s", tableName)
	return rows > 0, nil
}

// GetByID returns the posting, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "CandidateRecordRepository.GetByID")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var rec models.CandidateRecord
	err := database.Conn(ctx, r.db).GetContext(ctx, &rec, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", id).Error("failed to get candidate record")
		return nil, repositories.Internal("failed to get candidate record")
	}
	return &rec, nil
}

// ListByPublishDate returns postings published within [from, to], in id order.
// An empty bound is open.
func (r *Repository) ListByPublishDate(ctx context.Context, from, to string) ([]models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "CandidateRecordRepository.ListByPublishDate")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName)
	if from != "" {
		sb.Where(sb.GreaterEqualThan("publish_date", from))
	}
	if to != "" {
		sb.Where(sb.LessEqualThan("publish_date", to))
	}
	sb.OrderBy("id")

	query, args := sb.Build()
	records := []models.CandidateRecord{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from": from,
			"to":   to,
		}).Error("failed to list candidate records")
		return nil, repositories.Internal("failed to list candidate records")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from":            from,
		"to":              to,
		"candidate_count": len(records),
	}).Debugf("Listed %s", tableName)
	return records, nil
}

// ListByIDs returns the postings with the given ids, in id order.
func (r *Repository) ListByIDs(ctx context.Context, ids []int64) ([]models.CandidateRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "CandidateRecordRepository.ListByIDs")
	defer span.End()

	records := []models.CandidateRecord{}
	if len(ids) == 0 {
		return records, nil
	}

	sb := database.NewSelectBuilder(r.db)
	sb.Select(columns...).From(tableName).Where(sb.In("id", sqlbuilder.Flatten(ids)...)).OrderBy("id")

	query, args := sb.Build()
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list candidate records")
		return nil, repositories.Internal("failed to list candidate records")
	}
	return records, nil
}
