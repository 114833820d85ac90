package source

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

const tableName = "sources"

// Repository maps candidate source tags to display names.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) Upsert(ctx context.Context, src models.Source) error {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.Upsert")
	defer span.End()

	ib := database.NewInsertBuilder(r.db)
	ib.InsertInto(tableName).Cols("name", "display_name", "base_url").Values(src.Name, src.DisplayName, src.BaseURL)

	query, args := ib.Build()
	query += database.OnConflictUpdate([]string{"name"}, "display_name", "base_url")
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source", src.Name).Error("failed to upsert source")
		return repositories.Internal("failed to save source")
	}
	return nil
}

// GetByName returns the source, or nil when the tag is unknown.
func (r *Repository) GetByName(ctx context.Context, name string) (*models.Source, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.GetByName")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select("name", "display_name", "base_url").From(tableName).Where(sb.Equal("name", name))

	query, args := sb.Build()
	var src models.Source
	err := database.Conn(ctx, r.db).GetContext(ctx, &src, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("source", name).Error("failed to get source")
		return nil, repositories.Internal("failed to get source")
	}
	return &src, nil
}

func (r *Repository) List(ctx context.Context) ([]models.Source, error) {
	ctx, span := tracing.StartSpan(ctx, "SourceRepository.List")
	defer span.End()

	sb := database.NewSelectBuilder(r.db)
	sb.Select("name", "display_name", "base_url").From(tableName).OrderBy("name")

	query, args := sb.Build()
	sources := []models.Source{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &sources, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list sources")
		return nil, repositories.Internal("failed to list sources")
	}
	return sources, nil
}
