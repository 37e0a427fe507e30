package models

import (
	"fmt"
	"strconv"
	"strings"
)

// RecommendationKind distinguishes the designed terminal outcomes.
type RecommendationKind string

const (
	KindRefusal   RecommendationKind = "refusal"
	KindGeneral   RecommendationKind = "general"
	KindNoResults RecommendationKind = "no_results"
	KindGrounded  RecommendationKind = "grounded"
)

// ComparisonRow is one product in the comparison table, in rank order.
type ComparisonRow struct {
	Rank   int                    `json:"rank"`
	ID     string                 `json:"id"`
	Source Source                 `json:"source"`
	Fields map[string]interface{} `json:"fields"`
	Link   string                 `json:"link,omitempty"`
	Score  float64                `json:"score"`
}

// Recommendation is the pipeline's answer.
type Recommendation struct {
	Kind            RecommendationKind `json:"kind"`
	Text            string             `json:"text"`
	Citations       []string           `json:"citations"`
	ComparisonTable []ComparisonRow    `json:"comparisonTable"`
	Safe            bool               `json:"safe"`
}

// SpeechText renders the comparison table as plain sentences for audio output.
func (r *Recommendation) SpeechText() string {
	if len(r.ComparisonTable) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.ComparisonTable))
	for _, row := range r.ComparisonTable {
		lines = append(lines, row.speech())
	}
	return strings.Join(lines, " ")
}

func (row ComparisonRow) speech() string {
	title := ToString(row.Fields[FieldTitle])
	if title == "" {
		title = "an unnamed product"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Product %d: %s", row.Rank, title)
	if brand := ToString(row.Fields[FieldBrand]); brand != "" {
		fmt.Fprintf(&b, " by %s", brand)
	}
	if category := ToString(row.Fields[FieldCategory]); category != "" {
		fmt.Fprintf(&b, ", in %s", category)
	}
	if price, ok := ToFloat(row.Fields[FieldPrice]); ok {
		fmt.Fprintf(&b, ", priced at %s dollars", strconv.FormatFloat(price, 'f', -1, 64))
	}
	if row.Source == SourceLive {
		b.WriteString(", found on the web")
	}
	b.WriteString(".")
	return b.String()
}
