package results

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestResultsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.DB(t), testutil.NopLogger())

	entry, err := repo.Append(ctx, models.ResultsEntry{
		RunDate:        "2026-01-02",
		ModelSlot:      "challenger",
		ModelName:      "challenger-20260102",
		TruePositives:  9,
		FalseNegatives: 0,
		TrueNegatives:  40,
		Recall:         1,
		Precision:      0.9,
		ProbFloor:      0.62,
		Promoted:       true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.NotEmpty(t, entry.CreatedAt)

	_, err = repo.Append(ctx, models.ResultsEntry{RunDate: "2026-01-02", ModelSlot: "incumbent", Recall: 0.8})
	require.NoError(t, err)

	entries, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	var challenger models.ResultsEntry
	for _, e := range entries {
		if e.ModelSlot == "challenger" {
			challenger = e
		}
	}
	assert.True(t, challenger.Promoted)
	assert.Equal(t, 9, challenger.TruePositives)
	assert.InDelta(t, 0.62, challenger.ProbFloor, 1e-9)

	limited, err := repo.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
