package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exemplar/internal/cache"
	"exemplar/internal/config"
	"exemplar/internal/corpus"
	"exemplar/internal/embedding"
	"exemplar/internal/embedding/openai"
	"exemplar/internal/embedding/tfidf"
	"exemplar/internal/generate"
	"exemplar/internal/holdout"
	"exemplar/internal/index"
	"exemplar/internal/platform/applog"
	"exemplar/internal/service"
	"exemplar/internal/vectorstore"
	"exemplar/internal/vectorstore/memory"
	"exemplar/internal/vectorstore/qdrant"
	"exemplar/internal/vectorstore/sqlite"
)

// app holds the assembled components of one CLI invocation.
type app struct {
	cfg     *config.AppConfig
	storage vectorstore.Storage
	cache   *cache.RedisCache
	holdout *holdout.Manager
	service *service.Service
}

// newApp wires storage, embedder, holdout and the retrieval service from cfg.
// The service is not initialized.
func newApp(ctx context.Context, cfg *config.AppConfig) (*app, error) {
	factory, err := embedderFactory(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	st, err := openStorage(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, storage: st}
	if cfg.Cache.RedisURL != "" {
		c, err := cache.Dial(ctx, cfg.Cache.RedisURL, cfg.CacheTTL())
		if err != nil {
			applog.Warn("[App] redis cache disabled", "error", err)
		} else {
			a.cache = c
		}
	}

	a.holdout = holdout.NewManager(cfg.Holdout.Path,
		holdout.WithFraction(cfg.Holdout.Fraction),
		holdout.WithSeed(cfg.Holdout.Seed))
	ix := index.New(st, factory, index.Options{Workers: cfg.Retrieval.Workers})
	opts := service.Options{
		CorpusPath: cfg.Corpus.Path,
		Corpus:     corpus.Options{Sheet: cfg.Corpus.Sheet, OutputSchema: cfg.Corpus.OutputSchema},
		TopK:       cfg.Retrieval.TopK,
	}
	if a.cache != nil {
		opts.Cache = a.cache
	}
	a.service = service.New(ix, a.holdout, opts)
	return a, nil
}

func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if err := a.storage.Close(); err != nil {
		applog.Warn("[App] close storage", "error", err)
	}
}

func embedderFactory(cfg config.EmbedderConfig) (embedding.Factory, error) {
	switch cfg.Type {
	case "tfidf", "":
		return func() embedding.Embedder { return tfidf.NewEmbedder() }, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		// The client is stateless, so every rebuild can share it.
		return func() embedding.Embedder { return client }, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func openStorage(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "sqlite", "":
		path := "database/index.db"
		if cfg.SQLite != nil && cfg.SQLite.Path != "" {
			path = cfg.SQLite.Path
		}
		return sqlite.Open(path)
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// newEngine returns nil when generation is disabled.
func newEngine(cfg config.GeneratorConfig) (generate.Engine, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		engine, err := generate.NewChatEngine(generate.ChatConfig{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("generator init failed: %w", err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}
