package lifecycle

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/internal/testutil"
	"github.com/Ramsey-B/fern/pkg/classifier"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/registry"
)

type fakeStore struct {
	feedback   []models.FeedbackRecord
	queries    map[string]models.QueryRecord
	candidates map[int64]models.CandidateRecord
	results    []models.ResultsEntry
}

func (f *fakeStore) ListConfirmed(_ context.Context, validate int) ([]models.FeedbackRecord, error) {
	var out []models.FeedbackRecord
	for _, rec := range f.feedback {
		if rec.GroundTruth == 1 && rec.MultiPhase == 0 && rec.Validate == validate {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeStore) queriesByIDs(ids []string) []models.QueryRecord {
	var out []models.QueryRecord
	for _, id := range ids {
		if q, ok := f.queries[id]; ok {
			out = append(out, q)
		}
	}
	return out
}

func (f *fakeStore) candidatesByIDs(ids []int64) []models.CandidateRecord {
	var out []models.CandidateRecord
	for _, id := range ids {
		if c, ok := f.candidates[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStore) ListByPublishDate(_ context.Context, from, to string) ([]models.CandidateRecord, error) {
	var out []models.CandidateRecord
	for _, id := range slices.Sorted(maps.Keys(f.candidates)) {
		if c := f.candidates[id]; c.PublishDate >= from && c.PublishDate <= to {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) Append(_ context.Context, entry models.ResultsEntry) (*models.ResultsEntry, error) {
	f.results = append(f.results, entry)
	return &entry, nil
}

type queryLookup struct{ *fakeStore }

func (q queryLookup) ListByIDs(_ context.Context, ids []string) ([]models.QueryRecord, error) {
	return q.queriesByIDs(ids), nil
}

type candidateLookup struct{ *fakeStore }

func (c candidateLookup) ListByIDs(_ context.Context, ids []int64) ([]models.CandidateRecord, error) {
	return c.candidatesByIDs(ids), nil
}

var (
	contractors = []string{"Dilfo Mechanical", "Bondfield Construction", "Graham Brothers", "Eastern Pipe Fitters", "Marcon Builders", "Taplen Group", "Ross Electric", "Pomerleau Inc", "Maple Reinhardt", "Buttcon Limited"}
	cities      = []string{"Ottawa", "Toronto", "Kingston", "Barrie", "Sudbury", "Guelph", "London", "Windsor", "Hamilton", "Kanata"}
	titles      = []string{"Marenger Condos", "Civic Centre", "Library Renewal", "Water Plant", "Arena Expansion", "Fire Hall", "Transit Garage", "Seniors Residence", "Pool Retrofit", "Court House"}
	owners      = []string{"OCHC Housing", "Metrolinx", "Kingston Utilities", "County Board", "Greater Sudbury", "Guelph Hydro", "Fanshawe Trust", "Windsor Port", "Hamilton Health", "Kanata Lakes"}
	streets     = []string{"1230 Marenger Street", "55 Bay Street", "400 Princess Street", "12 Dunlop Street", "88 Elm Street", "9 Wyndham Street", "300 Dundas Street", "77 Ouellette Avenue", "41 King Street", "5 Terry Fox Drive"}
)

// newStore seeds 10 stale postings (ids 1-10, 2018) and, for each project i, a matching
// posting (id 100+i, 2019) with feedback held out when i is listed in heldOut.
func newStore(projects int, heldOut ...int) *fakeStore {
	f := &fakeStore{queries: map[string]models.QueryRecord{}, candidates: map[int64]models.CandidateRecord{}}

	for i := 0; i < 10; i++ {
		j := (i + 5) % 10
		f.candidates[int64(i+1)] = models.CandidateRecord{
			ID:          int64(i + 1),
			PublishDate: fmt.Sprintf("2018-%02d-15", i+1),
			Contractor:  contractors[j],
			City:        cities[(j+3)%10],
			Title:       titles[(j+7)%10],
			Owner:       owners[(j+1)%10],
			Address:     streets[(j+2)%10],
		}
	}

	for i := 0; i < projects; i++ {
		id := fmt.Sprintf("q%d", i)
		f.queries[id] = models.QueryRecord{
			ID:         id,
			Contractor: contractors[i],
			City:       cities[i],
			Title:      titles[i],
			Owner:      owners[i],
			Address:    streets[i],
		}
		candidateID := int64(100 + i)
		f.candidates[candidateID] = models.CandidateRecord{
			ID:          candidateID,
			PublishDate: "2019-06-01",
			Contractor:  contractors[i] + " Ltd.",
			City:        cities[i],
			Title:       titles[i],
			Owner:       owners[i],
			Address:     streets[i],
		}
		validate := 0
		for _, h := range heldOut {
			if h == i {
				validate = 1
			}
		}
		f.feedback = append(f.feedback, models.FeedbackRecord{QueryID: id, CandidateID: candidateID, GroundTruth: 1, Validate: validate})
	}
	return f
}

func newTestManager(t *testing.T, store *fakeStore) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New(t.TempDir(), testutil.NopLogger())
	m := NewManager(DefaultConfig(), store, queryLookup{store}, candidateLookup{store}, store, reg, testutil.NopLogger())
	return m, reg
}

func TestGateDecision(t *testing.T) {
	tests := []struct {
		name      string
		confusion classifier.Confusion
		expected  Decision
	}{
		{"perfect recall", classifier.Confusion{TruePositives: 5, TrueNegatives: 20}, DecisionPromote},
		{"perfect recall with false positives", classifier.Confusion{TruePositives: 5, FalsePositives: 9}, DecisionPromote},
		{"one missed match", classifier.Confusion{TruePositives: 9, FalseNegatives: 1}, DecisionReject},
		{"everything missed", classifier.Confusion{FalseNegatives: 3, TrueNegatives: 10}, DecisionReject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GateDecision(tt.confusion))
		})
	}
}

func TestSelectFeatures(t *testing.T) {
	features := SelectFeatures(matching.FeatureNames(), []string{matching.TotalScoreFeature, "city_pscore"})

	assert.Contains(t, features, "contractor_score")
	assert.Contains(t, features, matching.GeoDistanceFeature)
	assert.NotContains(t, features, matching.TotalScoreFeature)
	assert.NotContains(t, features, "city_pscore")
	assert.Equal(t, "contractor_score", features[0])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"partial score excluded", func(c *Config) { c.ExcludeFeatures = []string{"city_pscore"} }, false},
		{"unknown feature", func(c *Config) { c.ExcludeFeatures = []string{"certifier_score"} }, true},
		{"negative folds", func(c *Config) { c.Folds = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuildTrainingSet(t *testing.T) {
	store := newStore(6, 5)
	m, _ := newTestManager(t, store)

	set, err := m.BuildTrainingSet(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, set.Positives)
	// each confirmed query is paired with its truth and as many stale postings as there are confirmed queries
	assert.Len(t, set.Rows, 5*(1+5))
	for _, row := range set.Rows {
		if row.Label == 1 {
			assert.GreaterOrEqual(t, row.Pair.CandidateID, int64(100))
		} else {
			assert.LessOrEqual(t, row.Pair.CandidateID, int64(10))
		}
	}

	_, err = NewManager(DefaultConfig(), &fakeStore{}, queryLookup{&fakeStore{}}, candidateLookup{&fakeStore{}}, &fakeStore{}, registry.New(t.TempDir(), testutil.NopLogger()), testutil.NopLogger()).
		BuildTrainingSet(context.Background())
	assert.ErrorIs(t, err, ErrNoPositives)
}

func TestRunAdoptsFirstChallenger(t *testing.T) {
	ctx := context.Background()
	store := newStore(8, 6, 7)
	m, reg := newTestManager(t, store)

	report, err := m.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, report.Validation)
	assert.Empty(t, report.Skipped)
	assert.Equal(t, DecisionAdopt, report.Validation.Decision)
	assert.Equal(t, 2, report.Validation.Challenger.Confusion.TruePositives)
	assert.Zero(t, report.Validation.Challenger.Confusion.FalseNegatives)
	assert.Greater(t, report.Validation.Challenger.ProbFloor, 0.5)

	assert.True(t, reg.Exists(registry.SlotIncumbent))
	assert.False(t, reg.Exists(registry.SlotChallenger))

	require.Len(t, store.results, 1)
	assert.Equal(t, registry.SlotChallenger, store.results[0].ModelSlot)
	assert.True(t, store.results[0].Promoted)

	serving, err := reg.Serving(ctx)
	require.NoError(t, err)
	assert.NotContains(t, serving.Features, matching.TotalScoreFeature)
	assert.NoError(t, serving.CheckFeatures(matching.FeatureNames()))
}

func TestValidateRejectsChallengerThatMissesMatches(t *testing.T) {
	ctx := context.Background()
	store := newStore(8, 6, 7)
	m, reg := newTestManager(t, store)

	features := SelectFeatures(matching.FeatureNames(), DefaultConfig().ExcludeFeatures)
	never := &classifier.Model{Name: "never", Features: features, Coefficients: make([]float64, len(features)), Intercept: -10, TrainedAt: time.Now()}
	always := &classifier.Model{Name: "always", Features: features, Coefficients: make([]float64, len(features)), Intercept: 10, TrainedAt: time.Now()}

	require.NoError(t, reg.Save(ctx, registry.SlotIncumbent, always))
	require.NoError(t, reg.Save(ctx, registry.SlotChallenger, never))

	report, err := m.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, DecisionReject, report.Decision)
	assert.Equal(t, 2, report.Challenger.Confusion.FalseNegatives)
	assert.NotEmpty(t, report.Archive)
	require.NotNil(t, report.Incumbent)
	assert.Zero(t, report.Incumbent.Confusion.FalseNegatives)

	serving, err := reg.Serving(ctx)
	require.NoError(t, err)
	assert.Equal(t, "always", serving.Name)
	assert.False(t, reg.Exists(registry.SlotChallenger))
	assert.Len(t, store.results, 2)
}

func TestValidatePromotesOverIncumbent(t *testing.T) {
	ctx := context.Background()
	store := newStore(8, 6, 7)
	m, reg := newTestManager(t, store)

	features := SelectFeatures(matching.FeatureNames(), DefaultConfig().ExcludeFeatures)
	never := &classifier.Model{Name: "never", Features: features, Coefficients: make([]float64, len(features)), Intercept: -10}
	always := &classifier.Model{Name: "always", Features: features, Coefficients: make([]float64, len(features)), Intercept: 10}

	require.NoError(t, reg.Save(ctx, registry.SlotIncumbent, never))
	require.NoError(t, reg.Save(ctx, registry.SlotChallenger, always))

	report, err := m.Validate(ctx)
	require.NoError(t, err)
	assert.Equal(t, DecisionPromote, report.Decision)

	serving, err := reg.Serving(ctx)
	require.NoError(t, err)
	assert.Equal(t, "always", serving.Name)

	status, err := reg.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status.Archives, 1)
	assert.Equal(t, "never", status.Archives[0].Name)
}

func TestRunWithoutHeldOutDataStillServesAModel(t *testing.T) {
	store := newStore(6)
	m, reg := newTestManager(t, store)

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"validate"}, report.Skipped)
	assert.True(t, report.Adopted)
	assert.True(t, reg.Exists(registry.SlotIncumbent))
}

func TestRunSkipsStagesWithoutFeedback(t *testing.T) {
	store := &fakeStore{queries: map[string]models.QueryRecord{}, candidates: map[int64]models.CandidateRecord{}}
	m, reg := newTestManager(t, store)

	report, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "train", "validate"}, report.Skipped)
	assert.False(t, reg.Exists(registry.SlotIncumbent))
}
