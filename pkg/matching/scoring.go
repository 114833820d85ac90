package matching

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Style selects how two attribute values are compared.
type Style int

const (
	// StyleFull compares the whole strings.
	StyleFull Style = iota
	// StylePartial compares the shorter string against its best window in the longer one.
	StylePartial
)

func (s Style) String() string {
	if s == StylePartial {
		return "partial"
	}
	return "full"
}

// Scorer provides the string comparison algorithms used to build pair features.
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// AttrScore returns the 0-100 similarity of a candidate value against a query value.
// A blank value on either side scores 0.
func AttrScore(candidateValue, queryValue string, style Style) float64 {
	if strings.TrimSpace(candidateValue) == "" || strings.TrimSpace(queryValue) == "" {
		return 0
	}
	if style == StylePartial {
		return PartialRatio(candidateValue, queryValue)
	}
	return Ratio(candidateValue, queryValue)
}

// Ratio is the Levenshtein similarity of two strings scaled to 0-100.
func Ratio(a, b string) float64 {
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return math.Round(100 * (1 - float64(dist)/float64(maxLen)))
}

// PartialRatio slides the shorter string across the longer one and keeps the best window's Ratio.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return Ratio(a, b)
	}

	needle := string(short)
	best := 0.0
	for i := 0; i+len(short) <= len(long); i++ {
		score := Ratio(needle, string(long[i:i+len(short)]))
		if score > best {
			best = score
			if best == 100 {
				break
			}
		}
	}
	return best
}

// GeoDistance is the Euclidean distance between two coordinates in degrees.
// It is 1 when either side is unknown.
func GeoDistance(a, b *models.Coordinates) float64 {
	if a == nil || b == nil {
		return 1
	}
	if math.IsNaN(a.Lat) || math.IsNaN(a.Lng) || math.IsNaN(b.Lat) || math.IsNaN(b.Lng) {
		return 1
	}
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// ExactMatch returns 1.0 for exact match, 0.0 otherwise
func (s *Scorer) ExactMatch(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a = strings.ToLower(a)
		b = strings.ToLower(b)
	}
	if a == b {
		return 1.0
	}
	return 0.0
}

// JaroWinkler calculates the Jaro-Winkler similarity between two strings
// Returns a value between 0.0 (no similarity) and 1.0 (exact match)
func (s *Scorer) JaroWinkler(a, b string) float64 {
	jaro := s.Jaro(a, b)
	if jaro == 1.0 {
		return jaro
	}

	ar, br := []rune(a), []rune(b)
	prefix := 0
	for i := 0; i < len(ar) && i < len(br) && i < 4; i++ {
		if ar[i] != br[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func (s *Scorer) Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 || len(br) == 0 {
		return 0.0
	}

	window := max(max(len(ar), len(br))/2-1, 0)
	aMatched := make([]bool, len(ar))
	bMatched := make([]bool, len(br))

	matches := 0
	for i := range ar {
		lo, hi := max(0, i-window), min(len(br), i+window+1)
		for j := lo; j < hi; j++ {
			if bMatched[j] || ar[i] != br[j] {
				continue
			}
			aMatched[i], bMatched[j] = true, true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0.0
	}

	transpositions, k := 0, 0
	for i := range ar {
		if !aMatched[i] {
			continue
		}
		for !bMatched[k] {
			k++
		}
		if ar[i] != br[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len(ar)) + m/float64(len(br)) + (m-float64(transpositions)/2)/m) / 3.0
}

// AcronymScore compares the acronyms written on one side against the other side's canonical
// name and initials. The best score in either direction wins; 0 when neither side has acronyms.
func (s *Scorer) AcronymScore(query, candidate Party) float64 {
	return max(s.acronymAgainst(query.Acronyms, candidate), s.acronymAgainst(candidate.Acronyms, query))
}

func (s *Scorer) acronymAgainst(acronyms []string, other Party) float64 {
	best := 0.0
	for _, acronym := range acronyms {
		letters := strings.ToLower(strings.NewReplacer("&", "", "-", "").Replace(acronym))
		if letters == "" {
			continue
		}
		if other.Name != "" {
			best = max(best, s.ExactMatch(letters, other.Name, false))
		}
		if other.Initials != "" {
			best = max(best, s.JaroWinkler(letters, other.Initials))
		}
		for _, theirs := range other.Acronyms {
			best = max(best, s.ExactMatch(acronym, theirs, false))
		}
	}
	return best
}

// Party is the acronym view of an owner or contractor.
type Party struct {
	Name     string
	Initials string
	Acronyms []string
}
