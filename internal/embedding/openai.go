package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Veraticus/dispute-triage/internal/common"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

// OpenAIConfig configures the OpenAI embeddings client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
}

// OpenAIEmbedder calls the OpenAI embeddings API behind a circuit breaker.
type OpenAIEmbedder struct {
	client  *openai.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	model   string
	dims    int
}

// NewOpenAIEmbedder creates an embedder for the configured OpenAI model.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	logger := slog.Default().With("component", "embedding", "model", model)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai-embeddings",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientConfig),
		breaker: breaker,
		logger:  logger,
		model:   model,
		dims:    cfg.Dimensions,
	}, nil
}

// Model returns the model identifier, e.g. openai:text-embedding-3-small.
func (e *OpenAIEmbedder) Model() string {
	return openAIPrefix + e.model
}

// Embed requests vectors for all texts in one API call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result, err := e.breaker.Execute(func() (interface{}, error) {
		return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dims,
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &common.RetryableError{
				Err:       fmt.Errorf("%w: %v", common.ErrEmbeddingUnavailable, err),
				Retryable: true,
			}
		}
		return nil, classifyOpenAIError(err)
	}

	resp, ok := result.(openai.EmbeddingResponse)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected response type %T", common.ErrEmbeddingFailed, result)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d vectors, received %d", common.ErrEmbeddingFailed, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: invalid vector index %d", common.ErrEmbeddingFailed, d.Index)
		}
		out[d.Index] = d.Embedding
	}

	e.logger.Debug("Embedded texts", "count", len(texts))
	return out, nil
}

// classifyOpenAIError maps API failures onto the retry taxonomy used by common.WithRetry.
func classifyOpenAIError(err error) error {
	status := 0

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", common.ErrRateLimit, err)
	case status >= http.StatusInternalServerError, status == 0:
		return &common.RetryableError{Err: fmt.Errorf("%w: %v", common.ErrEmbeddingFailed, err), Retryable: true}
	default:
		return &common.RetryableError{Err: fmt.Errorf("%w: %v", common.ErrEmbeddingFailed, err), Retryable: false}
	}
}
