package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

var ErrNoTrainingData = errors.New("no training data provided")

// FitOptions tunes the logistic regression fit.
type FitOptions struct {
	// L2 penalty on the coefficients, the intercept is not penalized.
	L2 float64
	// MaxIterations bounds the optimizer's major iterations.
	MaxIterations int
}

func DefaultFitOptions() FitOptions {
	return FitOptions{L2: 0.01, MaxIterations: 500}
}

// Fit trains a logistic regression on rows of x (in the order of features) against 0/1 labels.
func Fit(name string, features []string, x [][]float64, y []int, opts FitOptions) (*Model, error) {
	if len(x) == 0 {
		return nil, ErrNoTrainingData
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("got %d rows for %d labels", len(x), len(y))
	}
	for i, row := range x {
		if len(row) != len(features) {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), len(features))
		}
	}

	n := float64(len(x))
	dims := len(features)

	// params is coefficients followed by the intercept
	loss := func(params []float64) float64 {
		w, b := params[:dims], params[dims]
		total := 0.0
		for i, row := range x {
			z := floats.Dot(w, row) + b
			total += softplus(z) - float64(y[i])*z
		}
		return total/n + opts.L2/2*floats.Dot(w, w)
	}
	grad := func(g, params []float64) {
		w, b := params[:dims], params[dims]
		for i := range g {
			g[i] = 0
		}
		for i, row := range x {
			residual := sigmoid(floats.Dot(w, row)+b) - float64(y[i])
			floats.AddScaled(g[:dims], residual, row)
			g[dims] += residual
		}
		floats.Scale(1/n, g)
		floats.AddScaled(g[:dims], opts.L2, w)
	}

	settings := &optimize.Settings{MajorIterations: opts.MaxIterations}
	result, err := optimize.Minimize(optimize.Problem{Func: loss, Grad: grad}, make([]float64, dims+1), settings, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("fit logistic regression: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("fit logistic regression: diverged (%v)", err)
		}
	}

	return &Model{
		Name:         name,
		Features:     append([]string(nil), features...),
		Coefficients: append([]float64(nil), result.X[:dims]...),
		Intercept:    result.X[dims],
		TrainedAt:    time.Now().UTC(),
	}, nil
}

// RandomOversample duplicates randomly chosen minority-class rows until both classes are the
// same size. The input slices are not modified.
func RandomOversample(x [][]float64, y []int, rng *rand.Rand) ([][]float64, []int) {
	var positives, negatives []int
	for i, label := range y {
		if label == 1 {
			positives = append(positives, i)
		} else {
			negatives = append(negatives, i)
		}
	}

	outX := append([][]float64(nil), x...)
	outY := append([]int(nil), y...)

	minority, majority := positives, negatives
	if len(minority) > len(majority) {
		minority, majority = majority, minority
	}
	if len(minority) == 0 {
		return outX, outY
	}

	for extra := len(majority) - len(minority); extra > 0; extra-- {
		i := minority[rng.Intn(len(minority))]
		outX = append(outX, x[i])
		outY = append(outY, y[i])
	}
	return outX, outY
}
