package cache

import "context"

// ContextCache stores formatted retrieval results. Keys are scoped to an index
// generation, so a rebuild makes every older entry unreachable.
type ContextCache interface {
	Get(ctx context.Context, generation string, k int, query string) ([]string, bool)
	Set(ctx context.Context, generation string, k int, query string, contexts []string)
}
