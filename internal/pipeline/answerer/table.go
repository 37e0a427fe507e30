package answerer

import (
	"fmt"
	"strconv"
	"strings"

	"product-recommender/internal/models"
)

// BuildTable turns the leading candidates into comparison rows in rank order.
// Only the requested fields that a candidate actually has are copied.
func BuildTable(candidates []models.ProductCandidate, fields []string) []models.ComparisonRow {
	rows := make([]models.ComparisonRow, 0, len(candidates))
	for i, c := range candidates {
		rowFields := make(map[string]interface{}, len(fields))
		if len(fields) == 0 {
			for k, v := range c.Fields {
				rowFields[k] = v
			}
		}
		for _, f := range fields {
			if v, ok := c.Field(f); ok {
				rowFields[f] = v
			}
		}
		rows = append(rows, models.ComparisonRow{
			Rank:   i + 1,
			ID:     c.ID,
			Source: c.Source,
			Fields: rowFields,
			Link:   c.Link,
			Score:  c.CompositeScore,
		})
	}
	return rows
}

// fallbackSummary is the deterministic answer used when no draft passes the
// grounding check. It only restates table rows.
func fallbackSummary(rows []models.ComparisonRow) string {
	if len(rows) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("My top recommendation is ")
	b.WriteString(describe(rows[0]))
	b.WriteString(".")
	if len(rows) > 1 {
		others := make([]string, 0, len(rows)-1)
		for _, row := range rows[1:] {
			others = append(others, describe(row))
		}
		fmt.Fprintf(&b, " You could also consider %s.", strings.Join(others, ", or "))
	}
	return b.String()
}

func describe(row models.ComparisonRow) string {
	title := models.ToString(row.Fields[models.FieldTitle])
	if title == "" {
		title = "product " + row.ID
	}
	parts := []string{title}
	if brand := models.ToString(row.Fields[models.FieldBrand]); brand != "" {
		parts[0] += " by " + brand
	}
	if price, ok := models.ToFloat(row.Fields[models.FieldPrice]); ok {
		parts = append(parts, "priced at "+strconv.FormatFloat(price, 'f', -1, 64)+" dollars")
	}
	return strings.Join(parts, ", ")
}
