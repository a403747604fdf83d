package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"exemplar/internal/domain"
	"exemplar/internal/vectorstore"
)

func snapshot(gen string, inputs ...string) vectorstore.Snapshot {
	snap := vectorstore.Snapshot{Generation: gen, Embedder: "tfidf"}
	for i, in := range inputs {
		rec := domain.Record{InputText: in, Intent: "generate_json", TargetOutput: `{"x":1}`}
		snap.Entries = append(snap.Entries, domain.IndexEntry{
			ID:           string(rune('0' + i)),
			Embedding:    []float64{float64(i), 0.5, -1.25},
			DocumentText: rec.DocumentText(),
			Metadata:     rec,
		})
	}
	return snap
}

func TestEmptyDatabase(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db", "index.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, snap.Generation)
	require.Empty(t, snap.Entries)
}

func TestReplaceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	want := snapshot("gen-1", "a", "b", "c")
	require.NoError(t, s.Replace(ctx, want))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestReplaceDropsPreviousGeneration(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, snapshot("gen-1", "a", "b", "c")))
	require.NoError(t, s.Replace(ctx, snapshot("gen-2", "d")))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "gen-2", got.Generation)
	require.Len(t, got.Entries, 1)

	var rows int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&rows))
	require.Equal(t, 1, rows)
}

func TestFailedReplaceKeepsPreviousGeneration(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	want := snapshot("gen-1", "a", "b")
	require.NoError(t, s.Replace(ctx, want))

	// Reusing the active generation collides on the primary key mid-transaction.
	require.Error(t, s.Replace(ctx, snapshot("gen-1", "x", "y", "z")))
	require.Error(t, s.Replace(ctx, vectorstore.Snapshot{}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestVectorCodec(t *testing.T) {
	v := []float64{0, 1.5, -2.25, 1e-300}
	got, err := decodeVector(encodeVector(v))
	require.NoError(t, err)
	require.Equal(t, v, got)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
