package domain

import "errors"

// Error kinds. Wrap with fmt.Errorf("%w: ...") and match with errors.Is.
var (
	// ErrLoad means the corpus source is absent or cannot be parsed at all.
	ErrLoad = errors.New("corpus load failed")
	// ErrHoldoutIO means the persisted holdout exists but cannot be read or written.
	// It is never recovered by regenerating the holdout.
	ErrHoldoutIO = errors.New("holdout io failed")
	// ErrIndexIO means the index storage is unavailable.
	ErrIndexIO = errors.New("index storage failed")
	// ErrEmbedding means at least one document could not be embedded.
	ErrEmbedding = errors.New("embedding failed")
)
