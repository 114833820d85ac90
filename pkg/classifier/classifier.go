// Package classifier turns pair scores into match decisions: a logistic regression
// probability estimator, its training and evaluation helpers, and the decision policy.
package classifier

// MultiPhaseThreshold replaces the configured threshold for projects likely built in phases,
// where a posting for an earlier phase is easily mistaken for the tracked one.
const MultiPhaseThreshold = 0.97

// DefaultThreshold is the probability at or above which a pair is a match.
const DefaultThreshold = 0.5

// PredictMatch converts a match probability into a 0/1 decision.
func PredictMatch(probability float64, multiPhaseProned bool, threshold float64) int {
	if multiPhaseProned {
		threshold = MultiPhaseThreshold
	}
	if probability >= threshold {
		return 1
	}
	return 0
}
