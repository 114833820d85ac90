package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func TestAttrScore(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		query     string
		style     Style
		expected  float64
	}{
		{"identical full", "marenger", "marenger", StyleFull, 100},
		{"one edit", "abc", "abd", StyleFull, 67},
		{"substring partial", "main", "100 main street", StylePartial, 100},
		{"empty candidate", "", "ottawa", StyleFull, 0},
		{"blank query", "ottawa", "   ", StylePartial, 0},
		{"both empty", "", "", StyleFull, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AttrScore(tt.candidate, tt.query, tt.style))
		})
	}
}

func TestRatios(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))
	assert.Equal(t, Ratio("kitten", "sitting"), Ratio("sitting", "kitten"))
	assert.Equal(t, PartialRatio("main", "main street"), PartialRatio("main street", "main"))
	assert.GreaterOrEqual(t, PartialRatio("dilfo", "dilfomechanical"), Ratio("dilfo", "dilfomechanical"))
}

func TestGeoDistance(t *testing.T) {
	origin := &models.Coordinates{Lat: 0, Lng: 0}

	assert.Equal(t, 1.0, GeoDistance(nil, origin))
	assert.Equal(t, 1.0, GeoDistance(origin, nil))
	assert.Equal(t, 0.0, GeoDistance(origin, origin))
	assert.InDelta(t, 5.0, GeoDistance(origin, &models.Coordinates{Lat: 3, Lng: 4}), 1e-9)
}

func TestScorerStringAlgorithms(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.ExactMatch("EMCO", "emco", false))
	assert.Equal(t, 0.0, s.ExactMatch("EMCO", "emco", true))
	assert.Equal(t, 1.0, s.Jaro("same", "same"))
	assert.Equal(t, 0.0, s.Jaro("", "abc"))
	assert.InDelta(t, 0.944, s.Jaro("martha", "marhta"), 0.001)
	assert.InDelta(t, 0.961, s.JaroWinkler("martha", "marhta"), 0.001)
}

func TestAcronymScore(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name      string
		query     Party
		candidate Party
		expected  float64
	}{
		{
			name:      "acronym against initials",
			query:     Party{Acronyms: []string{"EPF"}},
			candidate: Party{Name: "easternpipefitter", Initials: "epf"},
			expected:  1,
		},
		{
			name:      "acronym against collapsed name",
			query:     Party{Name: "emco"},
			candidate: Party{Acronyms: []string{"EMCO"}},
			expected:  1,
		},
		{
			name:      "same acronym on both sides",
			query:     Party{Acronyms: []string{"R&D"}},
			candidate: Party{Acronyms: []string{"r&d"}},
			expected:  1,
		},
		{
			name:      "no acronyms",
			query:     Party{Name: "dilfo", Initials: "dm"},
			candidate: Party{Name: "dilfo", Initials: "dm"},
			expected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, s.AcronymScore(tt.query, tt.candidate), 1e-9)
		})
	}
}

func TestCompileScore(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		policy   CompositePolicy
		expected float64
	}{
		{"multiply needs three positives", []float64{1, 1, 0, 0}, PolicyMultiply, 0},
		{"multiply averages positives", []float64{1, 0.5, 0.5, 0}, PolicyMultiply, 2.0 / 3.0},
		{"multiply all agree", []float64{1, 1, 1, 1, 1, 1}, PolicyMultiply, 1},
		{"add sums", []float64{1, 0.5, 0}, PolicyAdd, 1.5},
		{"add empty", nil, PolicyAdd, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, CompileScore(tt.scores, tt.policy), 1e-9)
		})
	}
}

func TestIsMultiPhaseProned(t *testing.T) {
	assert.True(t, IsMultiPhaseProned("Ottawa", "Civic Hospital Wing"))
	assert.True(t, IsMultiPhaseProned("University Heights", "Condos"))
	assert.True(t, IsMultiPhaseProned("Ottawa", "Algonquin COLLEGE Residence"))
	assert.False(t, IsMultiPhaseProned("Ottawa", "Marenger Condos"))
}

func TestFeatureNames(t *testing.T) {
	names := FeatureNames()
	require.Len(t, names, len(MatchAttributes)*2+4)
	assert.Equal(t, "contractor_score", names[0])
	assert.Equal(t, "contractor_pscore", names[1])
	assert.Equal(t, TotalScoreFeature, names[len(names)-1])

	assert.True(t, IsFeatureName("owner_pscore"))
	assert.False(t, IsFeatureName("certifier_score"))
	assert.True(t, HasScoreSuffix(GeoDistanceFeature))
	assert.False(t, HasScoreSuffix("multi_phase"))
}

func project(id string) models.QueryRecord {
	return models.QueryRecord{
		ID:         id,
		City:       "Ottawa",
		Address:    "100 Main Street",
		Title:      "Marenger Condos",
		Owner:      "Dilfo Mechanical Ltd.",
		Contractor: "Graham Brothers Roofing",
	}
}

func posting(id int64) models.CandidateRecord {
	return models.CandidateRecord{
		ID:          id,
		PublishDate: "2019-06-01",
		City:        "Ottawa",
		Address:     "100 Main Street",
		Title:       "Marenger Condos",
		Owner:       "Dilfo Mechanical Ltd.",
		Contractor:  "Graham Brothers Roofing",
		Source:      "dcn",
	}
}

func TestBuilderBuild(t *testing.T) {
	b := NewBuilder()
	pool := []models.CandidateRecord{
		posting(10),
		{ID: 11, City: "Ottawa", PublishDate: "2019-06-02"},
	}

	pairs := b.Build(project("q1"), pool)
	require.Len(t, pairs, 2)

	for _, pair := range pairs {
		assert.Equal(t, "q1", pair.QueryID)
		for _, name := range FeatureNames() {
			_, ok := pair.Scores[name]
			assert.True(t, ok, "pair %d missing %s", pair.CandidateID, name)
		}
		require.NotNil(t, pair.Candidate)
		assert.Equal(t, pair.CandidateID, pair.Candidate.ID)
	}

	exact := pairs[0]
	for _, attr := range MatchAttributes {
		assert.Equal(t, 1.0, exact.Score(attr+FullSuffix), attr)
		assert.Equal(t, 1.0, exact.Score(attr+PartialSuffix), attr)
	}
	assert.Equal(t, 1.0, exact.Score(GeoDistanceFeature))
	assert.Equal(t, 1.0, exact.Score(TotalScoreFeature))

	cityOnly := pairs[1]
	assert.Equal(t, 1.0, cityOnly.Score("city_score"))
	assert.Equal(t, 0.0, cityOnly.Score("title_score"))
	assert.Equal(t, 0.0, cityOnly.Score(TotalScoreFeature))
}

func TestBuilderBuildPartialAgreement(t *testing.T) {
	b := NewBuilder()
	agreeing := func(id int64, owner string) models.CandidateRecord {
		return models.CandidateRecord{
			ID:          id,
			PublishDate: "2019-06-01",
			City:        "Ottawa",
			Address:     "77 Elm Avenue",
			Title:       "Marenger Condos",
			Owner:       owner,
			Contractor:  "Graham Brothers Roofing",
		}
	}

	tests := []struct {
		name      string
		candidate models.CandidateRecord
		ownerZero bool
	}{
		{"owner missing", agreeing(20, ""), true},
		{"owner differs", agreeing(21, "Dilfo Brothers"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs := b.Build(project("q1"), []models.CandidateRecord{tt.candidate})
			require.Len(t, pairs, 1)
			pair := pairs[0]

			for _, attr := range []string{"contractor", "city", "title"} {
				assert.Equal(t, 1.0, pair.Score(attr+FullSuffix), attr)
			}
			assert.Less(t, pair.Score("street_number"+FullSuffix), 1.0)
			assert.Less(t, pair.Score("owner"+FullSuffix), 1.0)
			if tt.ownerZero {
				assert.Equal(t, 0.0, pair.Score("owner"+FullSuffix))
			} else {
				assert.Greater(t, pair.Score("owner"+FullSuffix), 0.0)
			}

			sum, positive := 0.0, 0
			for _, attr := range MatchAttributes {
				if score := pair.Score(attr + FullSuffix); score > 0 {
					sum += score
					positive++
				}
			}
			require.GreaterOrEqual(t, positive, 3)
			assert.InDelta(t, sum/float64(positive), pair.Score(TotalScoreFeature), 1e-9)
			assert.Less(t, pair.Score(TotalScoreFeature), 1.0)
		})
	}
}

func TestBuilderBuildIncremental(t *testing.T) {
	b := NewBuilder()
	pool := []models.CandidateRecord{posting(1), posting(2), posting(3)}

	query := project("q1")
	query.LastSeenCandidateID = 1
	pairs, watermark := b.BuildIncremental(query, pool)
	require.Len(t, pairs, 2)
	assert.Equal(t, int64(2), pairs[0].CandidateID)
	assert.Equal(t, int64(3), pairs[1].CandidateID)
	assert.Equal(t, int64(3), watermark)

	query.LastSeenCandidateID = 3
	pairs, watermark = b.BuildIncremental(query, pool)
	assert.Empty(t, pairs)
	assert.Equal(t, int64(3), watermark)
}

func TestBuilderRank(t *testing.T) {
	b := NewBuilder()
	pool := []models.CandidateRecord{
		{ID: 11, City: "Ottawa"},
		posting(10),
	}

	ranked := b.Rank(project("q1"), pool)
	require.Len(t, ranked, 2)
	assert.Equal(t, int64(10), ranked[0].CandidateID)
	assert.Equal(t, float64(len(MatchAttributes)), ranked[0].Score(TotalScoreFeature))
	assert.Equal(t, 1.0, ranked[1].Score(TotalScoreFeature))
}
