package matching

import (
	"sort"
	"strings"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Feature name parts.
const (
	FullSuffix    = "_score"
	PartialSuffix = "_pscore"

	GeoDistanceFeature       = "geo_distance"
	TotalScoreFeature        = "total_score"
	OwnerAcronymFeature      = "owner_acronym_score"
	ContractorAcronymFeature = "contractor_acronym_score"
)

// MatchAttributes are the attributes compared for every pair, in feature order.
var MatchAttributes = []string{"contractor", "street_name", "street_number", "title", "city", "owner"}

// FeatureNames lists every score the builder produces, in the order they are emitted.
func FeatureNames() []string {
	names := make([]string, 0, len(MatchAttributes)*2+4)
	for _, attr := range MatchAttributes {
		names = append(names, attr+FullSuffix, attr+PartialSuffix)
	}
	return append(names, GeoDistanceFeature, OwnerAcronymFeature, ContractorAcronymFeature, TotalScoreFeature)
}

// IsFeatureName reports whether the builder produces a score with this name.
func IsFeatureName(name string) bool {
	for _, n := range FeatureNames() {
		if n == name {
			return true
		}
	}
	return false
}

// HasScoreSuffix reports whether name is one of the score columns a model can train on.
func HasScoreSuffix(name string) bool {
	return strings.HasSuffix(name, FullSuffix) || strings.HasSuffix(name, PartialSuffix) || name == GeoDistanceFeature
}

// Builder turns a query and a candidate pool into scored pairs.
type Builder struct {
	scorer *Scorer
}

func NewBuilder() *Builder {
	return &Builder{scorer: NewScorer()}
}

// Build scores every candidate in the pool against the query, one pair per candidate.
func (b *Builder) Build(query models.QueryRecord, pool []models.CandidateRecord) []models.ScoredPair {
	q := normalizers.NormalizeQuery(query)
	pairs := make([]models.ScoredPair, 0, len(pool))
	for i := range pool {
		pairs = append(pairs, b.ScorePair(query.ID, q, &pool[i]))
	}
	return pairs
}

// BuildIncremental scores only candidates newer than the query's watermark and returns the
// pairs with the advanced watermark.
func (b *Builder) BuildIncremental(query models.QueryRecord, pool []models.CandidateRecord) ([]models.ScoredPair, int64) {
	fresh := ectolinq.Filter(pool, func(c models.CandidateRecord) bool {
		return c.ID > query.LastSeenCandidateID
	})
	watermark := query.LastSeenCandidateID
	for _, c := range fresh {
		watermark = max(watermark, c.ID)
	}
	return b.Build(query, fresh), watermark
}

// Rank scores the pool and orders it by the plain sum of the full attribute scores, best first.
func (b *Builder) Rank(query models.QueryRecord, pool []models.CandidateRecord) []models.ScoredPair {
	pairs := b.Build(query, pool)
	for i := range pairs {
		pairs[i].Scores[TotalScoreFeature] = CompileScore(fullScores(pairs[i]), PolicyAdd)
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Score(TotalScoreFeature) > pairs[j].Score(TotalScoreFeature)
	})
	return pairs
}

// ScorePair computes every feature for one candidate against an already normalized query.
func (b *Builder) ScorePair(queryID string, q models.NormalizedRecord, candidate *models.CandidateRecord) models.ScoredPair {
	c := normalizers.NormalizeCandidate(*candidate)

	scores := make(map[string]float64, len(MatchAttributes)*2+4)
	for _, attr := range MatchAttributes {
		qv, cv := q.Attribute(attr), c.Attribute(attr)
		scores[attr+FullSuffix] = AttrScore(cv, qv, StyleFull) / 100
		scores[attr+PartialSuffix] = AttrScore(cv, qv, StylePartial) / 100
	}
	scores[GeoDistanceFeature] = GeoDistance(q.Location, c.Location)
	scores[OwnerAcronymFeature] = b.scorer.AcronymScore(
		Party{Name: q.Owner, Initials: q.OwnerInitials, Acronyms: q.OwnerAcronyms},
		Party{Name: c.Owner, Initials: c.OwnerInitials, Acronyms: c.OwnerAcronyms},
	)
	scores[ContractorAcronymFeature] = b.scorer.AcronymScore(
		Party{Name: q.Contractor, Initials: q.ContractorInitials, Acronyms: q.ContractorAcronyms},
		Party{Name: c.Contractor, Initials: c.ContractorInitials, Acronyms: c.ContractorAcronyms},
	)

	pair := models.ScoredPair{
		QueryID:     queryID,
		CandidateID: candidate.ID,
		Scores:      scores,
		Candidate:   candidate,
	}
	scores[TotalScoreFeature] = CompileScore(fullScores(pair), PolicyMultiply)
	return pair
}

func fullScores(pair models.ScoredPair) []float64 {
	out := make([]float64, 0, len(MatchAttributes))
	for _, attr := range MatchAttributes {
		out = append(out, pair.Score(attr+FullSuffix))
	}
	return out
}
