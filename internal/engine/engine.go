// Package engine runs the dispute classification waterfall over a batch.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/Veraticus/dispute-triage/internal/classification"
	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/embedding"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/resolution"
	"github.com/Veraticus/dispute-triage/internal/service"
)

// Options configures an Engine.
type Options struct {
	// Progress is called from worker goroutines and must be safe for concurrent use.
	Progress service.ProgressFunc
	Retry    service.RetryOptions
	Workers  int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Workers: runtime.NumCPU(),
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Engine classifies disputes and suggests resolutions.
// Matchers and exemplar vectors are built once and reused across runs.
type Engine struct {
	lex           *config.Lexicon
	fuzzy         *classification.FuzzyMatcher
	semantic      *classification.SemanticMatcher
	suggester     *resolution.Suggester
	corroborating map[model.Category]map[string]bool
	logger        *slog.Logger
	opts          Options
}

// New validates the lexicon and prepares every stage. Configuration problems
// and an unusable embedding model are reported here, before any dispute is seen.
// embedder may be nil when the lexicon disables semantic matching.
func New(ctx context.Context, lex *config.Lexicon, embedder embedding.Embedder, opts Options) (*Engine, error) {
	if lex == nil {
		return nil, common.NewConfigError("lexicon", "lexicon is required")
	}
	if err := lex.Validate(); err != nil {
		return nil, err
	}

	suggester, err := resolution.NewSuggester(lex)
	if err != nil {
		return nil, err
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultOptions().Retry
	}

	e := &Engine{
		lex:           lex,
		fuzzy:         classification.NewFuzzyMatcher(lex),
		suggester:     suggester,
		corroborating: make(map[model.Category]map[string]bool),
		logger:        slog.Default().With("component", "engine"),
		opts:          opts,
	}

	for _, c := range lex.Categories {
		if len(c.CorroboratingStatuses) == 0 {
			continue
		}
		statuses := make(map[string]bool, len(c.CorroboratingStatuses))
		for _, s := range c.CorroboratingStatuses {
			statuses[strings.ToUpper(strings.TrimSpace(s))] = true
		}
		e.corroborating[model.Category(c.Name)] = statuses
	}

	if lex.SemanticEnabled() {
		if embedder == nil {
			return nil, common.NewConfigError("embedding_model", "semantic matching is enabled but no embedder is configured")
		}
		semantic, err := classification.NewSemanticMatcher(ctx, lex, embedder, opts.Retry)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare semantic matcher: %w", err)
		}
		e.semantic = semantic
		e.logger.Info("Semantic matching enabled", "model", embedder.Model())
	} else {
		e.logger.Info("Semantic matching disabled")
	}

	return e, nil
}

// Lexicon returns the configuration the engine was built with.
func (e *Engine) Lexicon() *config.Lexicon {
	return e.lex
}

// Workers returns the configured worker limit.
func (e *Engine) Workers() int {
	return e.opts.Workers
}
