package policy

// Overall computes the weighted overall score for a set of category
// scores. Each category contributes score x weight / 100.
func Overall(scores []CategoryScore, criteria []Criterion) float64 {
	weights := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		weights[c.Name] = c.Weight
	}

	total := 0.0
	for _, s := range scores {
		total += s.Score * weights[s.CategoryName] / 100
	}
	return clampScore(total)
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
