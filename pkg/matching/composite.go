package matching

// CompositePolicy selects how per-attribute scores combine into one total.
type CompositePolicy string

const (
	// PolicyMultiply averages the positive scores and requires at least three of them.
	PolicyMultiply CompositePolicy = "multiply"
	// PolicyAdd sums the scores. Used by the single-shot ranking path.
	PolicyAdd CompositePolicy = "add"
)

// minPositiveScores is the number of attributes that must agree before a total is awarded.
const minPositiveScores = 3

// CompileScore combines attribute scores under a policy.
func CompileScore(scores []float64, policy CompositePolicy) float64 {
	sum := 0.0
	positive := 0
	for _, score := range scores {
		sum += score
		if score > 0 {
			positive++
		}
	}

	if policy == PolicyAdd {
		return sum
	}

	if positive < minPositiveScores {
		return 0
	}
	return sum / float64(positive)
}
