package retriever

import (
	"strings"

	"product-recommender/internal/models"
)

// applyFilters keeps only candidates that satisfy every active filter.
func applyFilters(candidates []models.ProductCandidate, filters models.Filters) []models.ProductCandidate {
	if len(filters) == 0 {
		return candidates
	}
	kept := candidates[:0:0]
	for _, c := range candidates {
		if matches(&c, filters) {
			kept = append(kept, c)
		}
	}
	return kept
}

func matches(c *models.ProductCandidate, filters models.Filters) bool {
	if max, ok := filters.Float(models.FilterMaxPrice); ok {
		price, has := c.Price()
		if !has || price > max {
			return false
		}
	}
	if min, ok := filters.Float(models.FilterMinPrice); ok {
		price, has := c.Price()
		if !has || price < min {
			return false
		}
	}
	for _, key := range []string{models.FilterBrand, models.FilterCategory} {
		if want, ok := filters.String(key); ok {
			// Web results carry no brand or category field; the title stands in.
			text := c.StringField(key)
			if text == "" && c.Source == models.SourceLive {
				text = c.StringField(models.FieldTitle)
			}
			if !containsFold(text, want) {
				return false
			}
		}
	}
	if want, ok := filters.String(models.FilterMaterial); ok {
		if !containsFold(c.StringField(models.FieldMaterial)+" "+c.StringField(models.FieldDescription), want) {
			return false
		}
	}
	if want, ok := filters.String(models.FilterMustContain); ok {
		if !containsFold(c.StringField(models.FieldTitle)+" "+c.StringField(models.FieldDescription), want) {
			return false
		}
	}
	return true
}

func containsFold(text, sub string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(sub)))
}
