package models

// ScoredPair is one (query, candidate) comparison produced during a matching run.
type ScoredPair struct {
	QueryID          string             `json:"query_id"`
	CandidateID      int64              `json:"candidate_id"`
	Scores           map[string]float64 `json:"scores"`
	MultiPhaseProned bool               `json:"multi_phase_proned"`
	Probability      float64            `json:"probability"`
	Prediction       int                `json:"prediction"`
	Candidate        *CandidateRecord   `json:"candidate,omitempty"`
}

// Score returns the named score, 0 when absent.
func (p ScoredPair) Score(name string) float64 {
	return p.Scores[name]
}

// Features extracts the scores named in order.
func (p ScoredPair) Features(names []string) []float64 {
	out := make([]float64, len(names))
	for i, name := range names {
		out[i] = p.Scores[name]
	}
	return out
}
