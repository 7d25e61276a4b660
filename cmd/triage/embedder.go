package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/embedding"
	"github.com/Veraticus/dispute-triage/internal/storage"
)

const defaultCachePath = "$HOME/.local/share/triage/embeddings.db"

func cachePath() string {
	path := viper.GetString("cache.path")
	if path == "" {
		path = defaultCachePath
	}
	return config.ExpandPath(path)
}

// newEmbedder builds the embedder named by the lexicon. Remote models are
// backed by the persistent SQLite cache; the local hashing model is cheap
// enough to recompute and only gets the in-memory cache.
func newEmbedder(ctx context.Context, lex *config.Lexicon) (embedding.Embedder, func(), error) {
	noop := func() {}
	if !lex.SemanticEnabled() {
		return nil, noop, nil
	}

	apiKey := viper.GetString("openai.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	inner, err := embedding.New(embedding.Config{
		Model: lex.EmbeddingModel,
		OpenAI: embedding.OpenAIConfig{
			APIKey:     apiKey,
			BaseURL:    viper.GetString("openai.base_url"),
			Timeout:    viper.GetDuration("openai.timeout"),
			Dimensions: viper.GetInt("openai.dimensions"),
		},
	})
	if err != nil {
		return nil, noop, err
	}

	opts := embedding.CacheOptions{
		TTL:     viper.GetDuration("cache.ttl"),
		MaxSize: viper.GetInt("cache.max_size"),
	}

	var store *storage.SQLiteStorage
	if !strings.HasPrefix(lex.EmbeddingModel, "local:") {
		store, err = storage.Open(ctx, cachePath())
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open embedding cache: %w", err)
		}
		opts.Store = store
	}

	cached := embedding.NewCachedEmbedder(inner, opts)
	closeFn := func() {
		hits, misses := cached.Stats()
		slog.Debug("Embedding cache stats", "hits", hits, "misses", misses)
		cached.Close()
		if store != nil {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close embedding cache", "error", err)
			}
		}
	}
	return cached, closeFn, nil
}
