package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"exemplar/internal/domain"
	"exemplar/internal/platform/applog"
	"exemplar/internal/vectorstore"
)

const upsertBatch = 256

// Storage is a minimal REST client to Qdrant.
// Each generation lives in its own collection "<alias>-<generation>"; the alias
// names the active one and is swapped atomically on Replace.
type Storage struct {
	url    string
	apiKey string
	alias  string
	client *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

var errNotFound = errors.New("qdrant: not found")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		alias:  cfg.Collection,
		client: &http.Client{Timeout: timeout},
	}
}

type pointPayload struct {
	Generation string `json:"generation"`
	Embedder   string `json:"embedder"`
	ID         string `json:"id"`
	Document   string `json:"document"`
	UserInput  string `json:"user_input"`
	Intent     string `json:"intent"`
	StyleTags  string `json:"style_tags"`
	JSONOutput string `json:"json_output"`
}

type point struct {
	ID      uint64       `json:"id"`
	Vector  []float64    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

func (s *Storage) Replace(ctx context.Context, snap vectorstore.Snapshot) error {
	if snap.Generation == "" {
		return errors.New("snapshot has no generation")
	}
	dim := 0
	if len(snap.Entries) > 0 {
		dim = len(snap.Entries[0].Embedding)
	}
	if dim == 0 {
		return errors.New("snapshot has no vectors")
	}
	target := s.alias + "-" + snap.Generation
	previous, err := s.activeCollection(ctx)
	if err != nil {
		return err
	}

	// Dot distance: vectors are only persisted here, similarity is computed in process.
	body := map[string]any{
		"vectors": map[string]any{"size": dim, "distance": "Dot"},
	}
	if err := s.do(ctx, http.MethodPut, "/collections/"+target, body, nil); err != nil {
		return err
	}

	for start := 0; start < len(snap.Entries); start += upsertBatch {
		end := min(start+upsertBatch, len(snap.Entries))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			e := snap.Entries[i]
			points = append(points, point{
				ID:     uint64(i),
				Vector: e.Embedding,
				Payload: pointPayload{
					Generation: snap.Generation,
					Embedder:   snap.Embedder,
					ID:         e.ID,
					Document:   e.DocumentText,
					UserInput:  e.Metadata.InputText,
					Intent:     e.Metadata.Intent,
					StyleTags:  e.Metadata.StyleTags,
					JSONOutput: e.Metadata.TargetOutput,
				},
			})
		}
		if err := s.do(ctx, http.MethodPut, "/collections/"+target+"/points?wait=true",
			map[string]any{"points": points}, nil); err != nil {
			s.dropCollection(target)
			return err
		}
	}

	actions := []map[string]any{}
	if previous != "" {
		actions = append(actions, map[string]any{"delete_alias": map[string]any{"alias_name": s.alias}})
	}
	actions = append(actions, map[string]any{
		"create_alias": map[string]any{"collection_name": target, "alias_name": s.alias},
	})
	if err := s.do(ctx, http.MethodPost, "/collections/aliases", map[string]any{"actions": actions}, nil); err != nil {
		s.dropCollection(target)
		return err
	}
	if previous != "" && previous != target {
		s.dropCollection(previous)
	}
	return nil
}

func (s *Storage) Load(ctx context.Context) (vectorstore.Snapshot, error) {
	var snap vectorstore.Snapshot
	active, err := s.activeCollection(ctx)
	if err != nil || active == "" {
		return snap, err
	}

	var points []point
	var offset any
	for {
		req := map[string]any{"limit": upsertBatch, "with_payload": true, "with_vector": true}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, "/collections/"+active+"/points/scroll", req, &resp); err != nil {
			return vectorstore.Snapshot{}, err
		}
		points = append(points, resp.Result.Points...)
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	sort.Slice(points, func(i, j int) bool { return points[i].ID < points[j].ID })

	for _, p := range points {
		snap.Generation = p.Payload.Generation
		snap.Embedder = p.Payload.Embedder
		snap.Entries = append(snap.Entries, domain.IndexEntry{
			ID:           p.Payload.ID,
			Embedding:    p.Vector,
			DocumentText: p.Payload.Document,
			Metadata: domain.Record{
				InputText:    p.Payload.UserInput,
				Intent:       p.Payload.Intent,
				StyleTags:    p.Payload.StyleTags,
				TargetOutput: p.Payload.JSONOutput,
			},
		})
	}
	return snap, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+s.alias+"/points/count", map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	return resp.Result.Count, err
}

func (s *Storage) Close() error { return nil }

func (s *Storage) activeCollection(ctx context.Context) (string, error) {
	var resp struct {
		Result struct {
			Aliases []struct {
				AliasName      string `json:"alias_name"`
				CollectionName string `json:"collection_name"`
			} `json:"aliases"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, "/aliases", nil, &resp); err != nil {
		return "", err
	}
	for _, a := range resp.Result.Aliases {
		if a.AliasName == s.alias {
			return a.CollectionName, nil
		}
	}
	return "", nil
}

// dropCollection is best-effort; a leftover collection is harmless.
func (s *Storage) dropCollection(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()
	if err := s.do(ctx, http.MethodDelete, "/collections/"+name, nil, nil); err != nil {
		applog.Warn("[Qdrant] drop collection failed", "collection", name, "error", err)
	}
}

func (s *Storage) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", errNotFound, method, path)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
