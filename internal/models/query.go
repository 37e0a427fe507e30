package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Query is the raw request text. It is never mutated after creation.
type Query struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewQuery stamps text with a fresh request id.
func NewQuery(text string) Query {
	return NewQueryWithID(uuid.NewString(), text)
}

// NewQueryWithID keeps a caller-supplied id; an empty id gets a fresh one.
func NewQueryWithID(id, text string) Query {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return Query{ID: id, Text: text, CreatedAt: time.Now().UTC()}
}

// NormalizedText collapses whitespace and lower-cases the text.
func (q Query) NormalizedText() string {
	return strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
}
