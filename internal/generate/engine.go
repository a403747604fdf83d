// Package generate turns a user request plus retrieved examples into a model reply.
package generate

import (
	"context"
	"fmt"
)

// Engine produces a reply for query using contexts as few-shot examples.
type Engine interface {
	Name() string
	Generate(ctx context.Context, query string, contexts []string) (string, error)
}

// CommError reports a failed exchange with a generation backend.
type CommError struct {
	Engine string
	Err    error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("error communicating with %s: %v", e.Engine, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }
