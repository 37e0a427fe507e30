package retriever

import (
	"math"
	"sort"

	"product-recommender/internal/models"
)

// lowerIsBetter lists criteria where a smaller raw value ranks higher.
var lowerIsBetter = map[string]bool{
	models.CriterionPrice: true,
}

// Weights returns decay^i for n criteria, renormalized to sum to 1.
func Weights(n int, decay float64) []float64 {
	if n <= 0 {
		return nil
	}
	weights := make([]float64, n)
	sum := 0.0
	for i := range weights {
		weights[i] = math.Pow(decay, float64(i))
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights
}

func criterionValue(c *models.ProductCandidate, criterion string) (float64, bool) {
	switch criterion {
	case models.CriterionRelevance:
		return c.RelevanceScore, true
	case models.CriterionPrice:
		return c.Price()
	default:
		v, ok := c.Field(criterion)
		if !ok {
			return 0, false
		}
		return models.ToFloat(v)
	}
}

// normalize scores one criterion column into [0,1]. Missing values score 0
// and a constant column scores 1.
func normalize(candidates []models.ProductCandidate, criterion string) []float64 {
	scores := make([]float64, len(candidates))
	values := make([]float64, len(candidates))
	present := make([]bool, len(candidates))

	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range candidates {
		v, ok := criterionValue(&candidates[i], criterion)
		if !ok || math.IsNaN(v) {
			continue
		}
		values[i], present[i] = v, true
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	for i := range candidates {
		switch {
		case !present[i]:
			scores[i] = 0
		case hi == lo:
			scores[i] = 1
		case lowerIsBetter[criterion]:
			scores[i] = (hi - values[i]) / (hi - lo)
		default:
			scores[i] = (values[i] - lo) / (hi - lo)
		}
	}
	return scores
}

// rerank sets CompositeScore and orders candidates by it. Ties go to private
// candidates, then to the smaller id.
func rerank(candidates []models.ProductCandidate, criteria []string, decay float64) []models.ProductCandidate {
	if len(candidates) == 0 {
		return candidates
	}
	weights := Weights(len(criteria), decay)

	for i := range candidates {
		candidates[i].CompositeScore = 0
	}
	for ci, criterion := range criteria {
		scores := normalize(candidates, criterion)
		for i := range candidates {
			candidates[i].CompositeScore += weights[ci] * scores[i]
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CompositeScore != b.CompositeScore {
			return a.CompositeScore > b.CompositeScore
		}
		if a.Source.Priority() != b.Source.Priority() {
			return a.Source.Priority() < b.Source.Priority()
		}
		return a.ID < b.ID
	})
	return candidates
}
