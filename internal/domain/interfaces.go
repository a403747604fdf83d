package domain

import (
	"context"
	"fmt"
	"strings"
)

// Record is one labeled corpus row.
type Record struct {
	InputText    string `json:"user_input"`
	Intent       string `json:"intent"`
	StyleTags    string `json:"style_tags"`
	TargetOutput string `json:"json_output"`
}

// DocumentText is the text embedded for a record.
func (r Record) DocumentText() string {
	return strings.TrimSpace(fmt.Sprintf("Input: %s. Style: %s", r.InputText, r.StyleTags))
}

// HoldoutEntry is one protected evaluation example.
type HoldoutEntry struct {
	Text           string `json:"text"`
	ExpectedIntent string `json:"expected_intent"`
}

// IndexEntry is a single stored document of the embedding index.
type IndexEntry struct {
	ID           string
	Embedding    []float64
	DocumentText string
	Metadata     Record
}

// SearchResult represents a matching entry with a relevance score.
type SearchResult struct {
	Entry IndexEntry
	Score float64
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// RetrievalService defines the operations exposed to the orchestration layer.
type RetrievalService interface {
	Initialize(ctx context.Context) error
	Refresh(ctx context.Context) error
	RetrieveContext(ctx context.Context, query string, k int) []string
}
