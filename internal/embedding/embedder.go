package embedding

import "exemplar/internal/domain"

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// Factory returns an embedder ready to be prepared on a new corpus.
// Stateful embedders must return a fresh instance on every call so a rebuild
// never mutates the embedder serving queries.
type Factory func() Embedder

// IsZero reports whether every component of v is zero.
func IsZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
