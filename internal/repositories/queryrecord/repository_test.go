package queryrecord

import (
	"context"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestQueryRecordRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.DB(t), testutil.NopLogger())

	lat, lng := 45.42, -75.69
	_, err := repo.Create(ctx, models.QueryRecord{ID: "q1", City: "Ottawa", Title: "Marenger Condos", Latitude: &lat, Longitude: &lng})
	require.NoError(t, err)
	_, err = repo.Create(ctx, models.QueryRecord{ID: "q2", City: "Toronto", Title: "Tower"})
	require.NoError(t, err)

	t.Run("duplicate id conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, models.QueryRecord{ID: "q1"})
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	t.Run("get round trips coordinates", func(t *testing.T) {
		rec, err := repo.GetByID(ctx, "q1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.NotNil(t, rec.Latitude)
		assert.Equal(t, 45.42, *rec.Latitude)
		assert.False(t, rec.Closed)

		missing, err := repo.GetByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("close removes from open set", func(t *testing.T) {
		require.NoError(t, repo.Close(ctx, "q2"))

		closed, err := repo.IsClosed(ctx, "q2")
		require.NoError(t, err)
		assert.True(t, closed)

		open, err := repo.ListOpen(ctx)
		require.NoError(t, err)
		require.Len(t, open, 1)
		assert.Equal(t, "q1", open[0].ID)

		_, err = repo.IsClosed(ctx, "nope")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("watermark only advances", func(t *testing.T) {
		require.NoError(t, repo.UpdateWatermark(ctx, "q1", 10))
		require.NoError(t, repo.UpdateWatermark(ctx, "q1", 4))

		rec, err := repo.GetByID(ctx, "q1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), rec.LastSeenCandidateID)
	})

	t.Run("list by ids", func(t *testing.T) {
		recs, err := repo.ListByIDs(ctx, []string{"q2", "q1", "missing"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "q1", recs[0].ID)

		recs, err = repo.ListByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "q2"))
		rec, err := repo.GetByID(ctx, "q2")
		require.NoError(t, err)
		assert.Nil(t, rec)

		err = repo.Delete(ctx, "q2")
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}
