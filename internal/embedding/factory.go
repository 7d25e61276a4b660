package embedding

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/dispute-triage/internal/common"
)

const (
	localHashingPrefix = "local:hashing-"
	openAIPrefix       = "openai:"
)

// Config selects and configures an embedder.
type Config struct {
	// Model is "local:hashing-<dims>" or "openai:<model>".
	Model  string
	OpenAI OpenAIConfig
}

// New creates the embedder named by cfg.Model.
func New(cfg Config) (Embedder, error) {
	model := strings.TrimSpace(cfg.Model)

	switch {
	case strings.HasPrefix(model, localHashingPrefix):
		dims, err := strconv.Atoi(strings.TrimPrefix(model, localHashingPrefix))
		if err != nil {
			return nil, common.NewConfigError("embedding_model", fmt.Sprintf("invalid dimension in %q", model))
		}
		embedder, err := NewHashingEmbedder(dims)
		if err != nil {
			return nil, common.NewConfigError("embedding_model", err.Error())
		}
		return embedder, nil

	case strings.HasPrefix(model, openAIPrefix):
		openAICfg := cfg.OpenAI
		openAICfg.Model = strings.TrimPrefix(model, openAIPrefix)
		if openAICfg.Model == "" {
			return nil, common.NewConfigError("embedding_model", "openai model name is required")
		}
		return NewOpenAIEmbedder(openAICfg)

	default:
		return nil, common.NewConfigError("embedding_model", fmt.Sprintf("unsupported embedding model %q", model))
	}
}
