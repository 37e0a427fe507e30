package planner

import (
	"sort"
	"strings"

	"product-recommender/internal/common/logger"
	"product-recommender/internal/models"
)

var criterionAliases = map[string]string{
	"cost":        models.CriterionPrice,
	"cheapest":    models.CriterionPrice,
	"affordable":  models.CriterionPrice,
	"value":       models.CriterionPrice,
	"reviews":     models.CriterionRating,
	"rating":      models.CriterionRating,
	"ratings":     models.CriterionRating,
	"quality":     models.CriterionRating,
	"match":       models.CriterionRelevance,
	"relevancy":   models.CriterionRelevance,
	"query_match": models.CriterionRelevance,
}

// fieldsForFilter lists the candidate fields a filter inspects.
var fieldsForFilter = map[string][]string{
	models.FilterMaxPrice:    {models.FieldPrice},
	models.FilterMinPrice:    {models.FieldPrice},
	models.FilterBrand:       {models.FieldBrand},
	models.FilterCategory:    {models.FieldCategory},
	models.FilterMaterial:    {models.FieldMaterial, models.FieldDescription},
	models.FilterMustContain: {models.FieldTitle, models.FieldDescription},
}

var fieldsForCriterion = map[string][]string{
	models.CriterionPrice:  {models.FieldPrice},
	models.CriterionRating: {models.FieldRating},
}

// filtersFromConstraints converts router constraints into typed filters.
// Unknown or uncoercible constraints are dropped.
func filtersFromConstraints(constraints models.Constraints, log logger.Logger) models.Filters {
	filters := models.Filters{}
	for key, raw := range constraints {
		switch key {
		case models.ConstraintBudgetMax, models.ConstraintBudgetMin:
			v, ok := models.ToFloat(raw)
			if !ok {
				log.Debug("dropping uncoercible budget constraint", map[string]interface{}{"key": key, "value": raw})
				continue
			}
			if key == models.ConstraintBudgetMax {
				filters[models.FilterMaxPrice] = v
			} else {
				filters[models.FilterMinPrice] = v
			}
		case models.ConstraintBrand, models.ConstraintCategory, models.ConstraintMaterial, models.ConstraintMustContain:
			s := firstString(raw)
			if s == "" {
				log.Debug("dropping empty text constraint", map[string]interface{}{"key": key})
				continue
			}
			filters[key] = s
		default:
			log.Debug("dropping constraint with no filter", map[string]interface{}{"key": key})
		}
	}
	return filters
}

func firstString(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []interface{}:
		for _, item := range v {
			if s := firstString(item); s != "" {
				return s
			}
		}
		return ""
	case []string:
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				return s
			}
		}
		return ""
	case bool, nil:
		return ""
	default:
		return strings.TrimSpace(models.ToString(v))
	}
}

// normalizeCriteria maps synonyms, drops unknown criteria and duplicates.
func normalizeCriteria(requested, defaults []string) []string {
	out := make([]string, 0, len(requested))
	seen := map[string]bool{}
	for _, raw := range requested {
		c := strings.ToLower(strings.TrimSpace(raw))
		if alias, ok := criterionAliases[c]; ok {
			c = alias
		}
		if !models.AllowedCriteria[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return append([]string(nil), defaults...)
	}
	return out
}

// normalizeFields restricts fields to the allowed set, falls back to the
// defaults and appends whatever the filters and criteria need.
func normalizeFields(requested, defaults []string, filters models.Filters, criteria []string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(f string) {
		f = strings.ToLower(strings.TrimSpace(f))
		if models.AllowedFields[f] && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	for _, f := range requested {
		add(f)
	}
	if len(out) == 0 {
		for _, f := range defaults {
			add(f)
		}
	}
	add(models.FieldTitle)

	filterKeys := make([]string, 0, len(filters))
	for k := range filters {
		filterKeys = append(filterKeys, k)
	}
	sort.Strings(filterKeys)
	for _, k := range filterKeys {
		for _, f := range fieldsForFilter[k] {
			add(f)
		}
	}
	for _, c := range criteria {
		for _, f := range fieldsForCriterion[c] {
			add(f)
		}
	}
	return out
}

// wantsLive reports whether any hint term appears in the task, the extracted
// query or a text constraint.
func wantsLive(intent *models.IntentClassification, hints []string) bool {
	var b strings.Builder
	b.WriteString(strings.ToLower(intent.Task))
	b.WriteString(" ")
	b.WriteString(strings.ToLower(intent.ExtractedQuery))
	for _, v := range intent.Constraints {
		if s, ok := v.(string); ok {
			b.WriteString(" ")
			b.WriteString(strings.ToLower(s))
		}
	}
	text := b.String()
	for _, term := range hints {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
