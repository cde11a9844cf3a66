package fitting

import "math"

// probabilityFloor keeps log-likelihood terms finite for certain predictions.
const probabilityFloor = 1e-10

// Loss scores predicted probabilities of choosing option 1 against observed choices.
type Loss func(probs []float64, observed []int) float64

// BernoulliNLL is the negative Bernoulli log-likelihood of binary choices.
// NaN probabilities propagate so the caller can flag them.
func BernoulliNLL(probs []float64, observed []int) float64 {
	if len(probs) != len(observed) {
		return math.NaN()
	}
	var nll float64
	for i, p := range probs {
		if math.IsNaN(p) {
			return math.NaN()
		}
		p = math.Min(math.Max(p, probabilityFloor), 1-probabilityFloor)
		if observed[i] == 1 {
			nll -= math.Log(p)
		} else {
			nll -= math.Log(1 - p)
		}
	}
	return nll
}
