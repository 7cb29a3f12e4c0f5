package inference

import (
	"math"
	"sort"
)

// Softmax converts raw logits into probabilities.
func Softmax(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if len(scores) == 0 {
		return out
	}

	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}

	var sum float64
	exps := make([]float64, len(scores))
	for i, s := range scores {
		exps[i] = math.Exp(float64(s - maxScore))
		sum += exps[i]
	}
	for i := range exps {
		out[i] = float32(exps[i] / sum)
	}
	return out
}

// Rank pairs scores with labels and returns the topK entries by descending
// confidence. topK <= 0 keeps everything. Equal scores keep label order.
func Rank(scores []float32, labels []string, topK int) []Classification {
	results := make([]Classification, 0, len(scores))
	for i, s := range scores {
		if i >= len(labels) {
			break
		}
		results = append(results, Classification{
			Label:      labels[i],
			Confidence: s,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
