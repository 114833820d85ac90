package candidaterecord

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestCandidateRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.DB(t), testutil.NopLogger())

	for _, rec := range []models.CandidateRecord{
		{ID: 1, PublishDate: "2019-01-10", City: "Ottawa", Source: "dcn"},
		{ID: 2, PublishDate: "2019-02-10", City: "Toronto", Source: "dcn"},
		{ID: 3, PublishDate: "2019-03-10", City: "Kanata", Source: "dcn"},
	} {
		inserted, err := repo.Insert(ctx, rec)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	t.Run("repeated id is ignored", func(t *testing.T) {
		inserted, err := repo.Insert(ctx, models.CandidateRecord{ID: 1, PublishDate: "2020-01-01", City: "Changed"})
		require.NoError(t, err)
		assert.False(t, inserted)

		rec, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "Ottawa", rec.City)
	})

	tests := []struct {
		name     string
		from, to string
		expected []int64
	}{
		{"closed window", "2019-02-01", "2019-03-10", []int64{2, 3}},
		{"open start", "", "2019-01-31", []int64{1}},
		{"open end", "2019-03-01", "", []int64{3}},
		{"empty window", "2021-01-01", "2021-12-31", []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := repo.ListByPublishDate(ctx, tt.from, tt.to)
			require.NoError(t, err)
			ids := []int64{}
			for _, rec := range recs {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	t.Run("list by ids", func(t *testing.T) {
		recs, err := repo.ListByIDs(ctx, []int64{3, 1})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, int64(1), recs[0].ID)
	})
}
