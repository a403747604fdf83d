package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"exemplar/internal/domain"
	"exemplar/internal/vectorstore"
)

// Storage persists index snapshots in a single SQLite file.
type Storage struct {
	db   *sql.DB
	path string
}

// Open creates the database file and schema if needed.
func Open(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(SchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Load(ctx context.Context) (vectorstore.Snapshot, error) {
	var snap vectorstore.Snapshot
	gen, err := s.meta(ctx, metaGeneration)
	if err != nil || gen == "" {
		return snap, err
	}
	embedder, err := s.meta(ctx, metaEmbedder)
	if err != nil {
		return snap, err
	}
	snap.Generation = gen
	snap.Embedder = embedder

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, embedding, user_input, intent, style_tags, json_output
		FROM entries WHERE generation = ? ORDER BY seq`, gen)
	if err != nil {
		return vectorstore.Snapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e    domain.IndexEntry
			blob []byte
		)
		if err := rows.Scan(&e.ID, &e.DocumentText, &blob,
			&e.Metadata.InputText, &e.Metadata.Intent, &e.Metadata.StyleTags, &e.Metadata.TargetOutput); err != nil {
			return vectorstore.Snapshot{}, err
		}
		if e.Embedding, err = decodeVector(blob); err != nil {
			return vectorstore.Snapshot{}, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

// Replace writes the new generation, flips the active pointer, and drops every
// other generation in one transaction.
func (s *Storage) Replace(ctx context.Context, snap vectorstore.Snapshot) error {
	if snap.Generation == "" {
		return errors.New("snapshot has no generation")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (generation, seq, id, document, embedding, user_input, intent, style_tags, json_output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	dim := 0
	for i, e := range snap.Entries {
		if len(e.Embedding) > dim {
			dim = len(e.Embedding)
		}
		if _, err := stmt.ExecContext(ctx, snap.Generation, i, e.ID, e.DocumentText, encodeVector(e.Embedding),
			e.Metadata.InputText, e.Metadata.Intent, e.Metadata.StyleTags, e.Metadata.TargetOutput); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}

	meta := map[string]string{
		metaGeneration: snap.Generation,
		metaEmbedder:   snap.Embedder,
		metaDimension:  strconv.Itoa(dim),
		metaUpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE generation <> ?`, snap.Generation); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	gen, err := s.meta(ctx, metaGeneration)
	if err != nil || gen == "" {
		return 0, err
	}
	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries WHERE generation = ?`, gen).Scan(&n)
	return n, err
}

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) meta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("embedding blob has %d bytes, not a multiple of 8", len(buf))
	}
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v, nil
}
