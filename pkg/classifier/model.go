package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/Ramsey-B/fern/pkg/models"
)

var (
	ErrFeatureMismatch = errors.New("model features do not match the scored pair")
	ErrNotFitted       = errors.New("model has not been fitted")
)

// Model is a fitted logistic regression over an ordered list of named features.
type Model struct {
	Name         string
	Features     []string
	Coefficients []float64
	Intercept    float64
	TrainedAt    time.Time
}

// PredictProba returns the match probability for one feature vector in model order.
func (m *Model) PredictProba(x []float64) (float64, error) {
	if m == nil || len(m.Coefficients) == 0 {
		return 0, ErrNotFitted
	}
	if len(x) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: got %d values, want %d", ErrFeatureMismatch, len(x), len(m.Coefficients))
	}
	return sigmoid(floats.Dot(m.Coefficients, x) + m.Intercept), nil
}

// PredictPair scores a pair, requiring every model feature to be present in its score map.
func (m *Model) PredictPair(pair models.ScoredPair) (float64, error) {
	if m == nil {
		return 0, ErrNotFitted
	}
	for _, name := range m.Features {
		if _, ok := pair.Scores[name]; !ok {
			return 0, fmt.Errorf("%w: missing %q", ErrFeatureMismatch, name)
		}
	}
	return m.PredictProba(pair.Features(m.Features))
}

// CheckFeatures verifies the model's features are produced by the pipeline, in the
// pipeline's order.
func (m *Model) CheckFeatures(produced []string) error {
	if m == nil {
		return ErrNotFitted
	}
	if len(m.Features) != len(m.Coefficients) {
		return fmt.Errorf("%w: %d names for %d coefficients", ErrFeatureMismatch, len(m.Features), len(m.Coefficients))
	}

	next := 0
	for _, name := range m.Features {
		found := false
		for next < len(produced) {
			next++
			if produced[next-1] == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q is unknown or out of order", ErrFeatureMismatch, name)
		}
	}
	return nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1+e^z) without overflow.
func softplus(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}
