package vectorstore

import (
	"context"

	"exemplar/internal/domain"
)

// Snapshot is one complete generation of the embedding index.
type Snapshot struct {
	Generation string
	// Embedder names the embedder that produced the vectors.
	Embedder string
	Entries  []domain.IndexEntry
}

// Storage persists index snapshots. Replace must be atomic: after a failed
// Replace, Load still returns the previous snapshot.
type Storage interface {
	Load(ctx context.Context) (Snapshot, error)
	Replace(ctx context.Context, snap Snapshot) error
	Count(ctx context.Context) (int, error)
	Close() error
}
