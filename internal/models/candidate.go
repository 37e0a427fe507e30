package models

// ProductCandidate is one ranked product with provenance.
type ProductCandidate struct {
	ID             string                 `json:"id"`
	Source         Source                 `json:"source"`
	Fields         map[string]interface{} `json:"fields"`
	RelevanceScore float64                `json:"relevanceScore"`
	Link           string                 `json:"link,omitempty"`
	CompositeScore float64                `json:"compositeScore"`
}

// Field returns a field value if it was populated.
func (c *ProductCandidate) Field(name string) (interface{}, bool) {
	v, ok := c.Fields[name]
	return v, ok && v != nil
}

// Price returns the parsed price, if any.
func (c *ProductCandidate) Price() (float64, bool) {
	v, ok := c.Field(FieldPrice)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// StringField returns a field as text, empty when absent.
func (c *ProductCandidate) StringField(name string) string {
	v, ok := c.Field(name)
	if !ok {
		return ""
	}
	return ToString(v)
}

// Conflict records a catalog product whose web copy disagrees on a field.
type Conflict struct {
	ID      string `json:"id"`
	Field   string `json:"field"`
	Private string `json:"private"`
	Live    string `json:"live"`
	Link    string `json:"link,omitempty"`
}

// RetrievalResult is the ranked, deduplicated output of the retriever.
type RetrievalResult struct {
	Candidates []ProductCandidate `json:"candidates"`
	QueryEcho  string             `json:"queryEcho"`
	Warnings   []string           `json:"warnings,omitempty"`
	Conflicts  []Conflict         `json:"conflicts,omitempty"`
}

func (r *RetrievalResult) IsEmpty() bool {
	return r == nil || len(r.Candidates) == 0
}

// IDs returns candidate ids in rank order.
func (r *RetrievalResult) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// Contains reports whether id is one of the candidates.
func (r *RetrievalResult) Contains(id string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Candidates {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Top returns at most k leading candidates.
func (r *RetrievalResult) Top(k int) []ProductCandidate {
	if r == nil {
		return nil
	}
	if k <= 0 || k > len(r.Candidates) {
		k = len(r.Candidates)
	}
	return r.Candidates[:k]
}
