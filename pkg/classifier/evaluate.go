package classifier

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Confusion holds binary classification counts.
type Confusion struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
	TrueNegatives  int `json:"true_negatives"`
}

// NewConfusion counts predictions against labels.
func NewConfusion(predictions, labels []int) Confusion {
	var c Confusion
	for i := range predictions {
		switch {
		case predictions[i] == 1 && labels[i] == 1:
			c.TruePositives++
		case predictions[i] == 1:
			c.FalsePositives++
		case labels[i] == 1:
			c.FalseNegatives++
		default:
			c.TrueNegatives++
		}
	}
	return c
}

func (c Confusion) Recall() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
}

func (c Confusion) Precision() float64 {
	return ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
}

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// FoldResult is the held-out evaluation of one cross-validation fold.
type FoldResult struct {
	Fold      int
	Confusion Confusion
	Recall    float64
	Precision float64
	F1        float64
}

// CVSummary averages the fold metrics.
type CVSummary struct {
	Folds     []FoldResult
	Recall    float64
	Precision float64
	F1        float64
}

// KFold shuffles row indices and splits them into k folds of near-equal size.
func KFold(n, k int, rng *rand.Rand) [][]int {
	if k < 2 || n < k {
		return nil
	}
	perm := rng.Perm(n)
	folds := make([][]int, k)
	for i, idx := range perm {
		folds[i%k] = append(folds[i%k], idx)
	}
	return folds
}

// CrossValidate fits one model per fold on the remaining folds and evaluates it on the fold.
// With oversample set, only each fold's training split is oversampled; held-out rows are never duplicated.
func CrossValidate(features []string, x [][]float64, y []int, k int, threshold float64, oversample bool, opts FitOptions, rng *rand.Rand) (*CVSummary, error) {
	folds := KFold(len(x), k, rng)
	if folds == nil {
		return nil, fmt.Errorf("cannot split %d rows into %d folds", len(x), k)
	}

	summary := &CVSummary{}
	recalls := make([]float64, 0, k)
	precisions := make([]float64, 0, k)
	f1s := make([]float64, 0, k)

	for fold, held := range folds {
		heldOut := make(map[int]struct{}, len(held))
		for _, idx := range held {
			heldOut[idx] = struct{}{}
		}

		var trainX [][]float64
		var trainY []int
		for i := range x {
			if _, ok := heldOut[i]; ok {
				continue
			}
			trainX = append(trainX, x[i])
			trainY = append(trainY, y[i])
		}
		if oversample {
			trainX, trainY = RandomOversample(trainX, trainY, rng)
		}

		model, err := Fit(fmt.Sprintf("fold-%d", fold), features, trainX, trainY, opts)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", fold, err)
		}

		predictions := make([]int, len(held))
		labels := make([]int, len(held))
		for i, idx := range held {
			prob, err := model.PredictProba(x[idx])
			if err != nil {
				return nil, fmt.Errorf("fold %d: %w", fold, err)
			}
			predictions[i] = PredictMatch(prob, false, threshold)
			labels[i] = y[idx]
		}

		confusion := NewConfusion(predictions, labels)
		result := FoldResult{
			Fold:      fold,
			Confusion: confusion,
			Recall:    confusion.Recall(),
			Precision: confusion.Precision(),
			F1:        confusion.F1(),
		}
		summary.Folds = append(summary.Folds, result)
		recalls = append(recalls, result.Recall)
		precisions = append(precisions, result.Precision)
		f1s = append(f1s, result.F1)
	}

	summary.Recall = stat.Mean(recalls, nil)
	summary.Precision = stat.Mean(precisions, nil)
	summary.F1 = stat.Mean(f1s, nil)
	return summary, nil
}
