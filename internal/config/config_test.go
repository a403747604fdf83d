package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, "tfidf", cfg.Embedder.Type)
	require.Equal(t, "sqlite", cfg.VectorStore.Type)
	require.Equal(t, "database/index.db", cfg.VectorStore.SQLite.Path)
	require.Equal(t, 0.05, cfg.Holdout.Fraction)
	require.EqualValues(t, 42, cfg.Holdout.Seed)
	require.Equal(t, 3, cfg.Retrieval.TopK)
	require.Equal(t, 5*time.Minute, cfg.CacheTTL())
}

func TestLoadAppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
corpus:
  path: corpus.csv
embedder:
  type: openai
  openai: {}
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
generator:
  type: openai
  openai:
    model: gpt-4o-mini
evaluation:
  generators:
    - type: openai
      openai:
        base_url: https://generativelanguage.googleapis.com/v1beta/openai
        api_key_env: GEMINI_API_KEY
        model: gemini-1.5-flash
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "corpus.csv", cfg.Corpus.Path)
	require.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	require.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	require.Equal(t, "stable_diffusion_prompts", cfg.VectorStore.Qdrant.Collection)
	require.Nil(t, cfg.VectorStore.SQLite)
	require.Equal(t, "gpt-4o-mini", cfg.Generator.OpenAI.Model)
	require.Equal(t, "XAI_API_KEY", cfg.Generator.OpenAI.APIKeyEnv)
	require.Len(t, cfg.Evaluation.Generators, 1)
	require.Equal(t, "GEMINI_API_KEY", cfg.Evaluation.Generators[0].OpenAI.APIKeyEnv)
	require.Equal(t, 60, cfg.Evaluation.Generators[0].OpenAI.TimeoutSecs)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Corpus.Path = "other.xlsx"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "other.xlsx", loaded.Corpus.Path)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: [unterminated"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}
