package router

import (
	"strings"

	"product-recommender/internal/models"
)

var constraintAliases = map[string]string{
	"max_price":  models.ConstraintBudgetMax,
	"price_max":  models.ConstraintBudgetMax,
	"budget":     models.ConstraintBudgetMax,
	"min_price":  models.ConstraintBudgetMin,
	"price_min":  models.ConstraintBudgetMin,
	"materials":  models.ConstraintMaterial,
	"brand_name": models.ConstraintBrand,
}

var placeholderValues = map[string]bool{
	"": true, "none": true, "n/a": true, "na": true, "null": true, "unknown": true, "any": true,
}

var numericConstraints = map[string]bool{
	models.ConstraintBudgetMax: true,
	models.ConstraintBudgetMin: true,
}

// cleanConstraints drops empty and placeholder values, folds aliases onto
// their canonical key and coerces budgets to numbers. A canonical key beats
// its alias when both are present.
func cleanConstraints(raw map[string]interface{}) models.Constraints {
	out := models.Constraints{}
	fromAlias := map[string]bool{}

	for rawKey, rawVal := range raw {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		canonical, aliased := constraintAliases[key]
		if !aliased {
			canonical = key
		}
		if canonical == "" {
			continue
		}

		value, ok := cleanValue(rawVal)
		if !ok {
			continue
		}
		if numericConstraints[canonical] {
			f, ok := models.ToFloat(value)
			if !ok || f < 0 {
				continue
			}
			value = f
		}

		if _, exists := out[canonical]; exists && (aliased || !fromAlias[canonical]) {
			continue
		}
		out[canonical] = value
		fromAlias[canonical] = aliased
	}
	return out
}

func cleanValue(v interface{}) (interface{}, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case string:
		s := strings.TrimSpace(val)
		if placeholderValues[strings.ToLower(s)] {
			return nil, false
		}
		return s, true
	case []interface{}:
		kept := make([]interface{}, 0, len(val))
		for _, item := range val {
			if c, ok := cleanValue(item); ok {
				kept = append(kept, c)
			}
		}
		switch len(kept) {
		case 0:
			return nil, false
		case 1:
			return kept[0], true
		default:
			return kept, true
		}
	default:
		return val, true
	}
}
