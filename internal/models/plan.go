package models

import "fmt"

// Source is the provenance of a candidate.
type Source string

const (
	SourcePrivate Source = "private"
	SourceLive    Source = "live"
)

// Priority orders sources for tie-breaking; lower wins.
func (s Source) Priority() int {
	if s == SourcePrivate {
		return 0
	}
	return 1
}

// Product field keys a plan may request.
const (
	FieldTitle        = "title"
	FieldBrand        = "brand"
	FieldCategory     = "category"
	FieldPrice        = "price"
	FieldDescription  = "description"
	FieldIngredients  = "ingredients"
	FieldMaterial     = "material"
	FieldRating       = "rating"
	FieldAvailability = "availability"
)

// AllowedFields is the declared key set of ProductCandidate.Fields.
var AllowedFields = map[string]bool{
	FieldTitle: true, FieldBrand: true, FieldCategory: true, FieldPrice: true,
	FieldDescription: true, FieldIngredients: true, FieldMaterial: true,
	FieldRating: true, FieldAvailability: true,
}

// Ranking criteria. Any numeric allowed field may also be used.
const (
	CriterionRelevance = "relevance"
	CriterionPrice     = FieldPrice
	CriterionRating    = FieldRating
)

// AllowedCriteria lists criteria the reranker knows how to score.
var AllowedCriteria = map[string]bool{
	CriterionRelevance: true,
	CriterionPrice:     true,
	CriterionRating:    true,
}

// Filter keys produced by the planner.
const (
	FilterMaxPrice    = "max_price"
	FilterMinPrice    = "min_price"
	FilterBrand       = "brand"
	FilterCategory    = "category"
	FilterMaterial    = "material"
	FilterMustContain = "must_contain"
)

// Filters maps filter names to typed values: float64 for prices, string otherwise.
type Filters map[string]interface{}

func (f Filters) Float(key string) (float64, bool) {
	v, ok := f[key].(float64)
	return v, ok
}

func (f Filters) String(key string) (string, bool) {
	v, ok := f[key].(string)
	return v, ok && v != ""
}

// RetrievalPlan tells the retriever what to fetch and how to rank it.
type RetrievalPlan struct {
	Sources            []Source `json:"sources"`
	Fields             []string `json:"fields"`
	Filters            Filters  `json:"filters"`
	ComparisonCriteria []string `json:"comparisonCriteria"`
	TopK               int      `json:"topK"`

	// UseWebFor says what the live search should look for; appended to the web query.
	UseWebFor string `json:"useWebFor,omitempty"`
}

func (p *RetrievalPlan) HasSource(s Source) bool {
	for _, src := range p.Sources {
		if src == s {
			return true
		}
	}
	return false
}

func (p *RetrievalPlan) HasField(name string) bool {
	for _, f := range p.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants of a plan.
func (p *RetrievalPlan) Validate() error {
	if len(p.Sources) == 0 {
		return fmt.Errorf("plan has no sources")
	}
	seenSrc := map[Source]bool{}
	for _, s := range p.Sources {
		if s != SourcePrivate && s != SourceLive {
			return fmt.Errorf("unknown source %q", s)
		}
		if seenSrc[s] {
			return fmt.Errorf("duplicate source %q", s)
		}
		seenSrc[s] = true
	}
	seen := map[string]bool{}
	for _, f := range p.Fields {
		if !AllowedFields[f] {
			return fmt.Errorf("field %q is not in the allowed key set", f)
		}
		if seen[f] {
			return fmt.Errorf("duplicate field %q", f)
		}
		seen[f] = true
	}
	if len(p.ComparisonCriteria) == 0 {
		return fmt.Errorf("plan has no comparison criteria")
	}
	if p.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	return nil
}
