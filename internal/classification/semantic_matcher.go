package classification

import (
	"context"
	"fmt"

	"github.com/Veraticus/dispute-triage/internal/common"
	"github.com/Veraticus/dispute-triage/internal/config"
	"github.com/Veraticus/dispute-triage/internal/embedding"
	"github.com/Veraticus/dispute-triage/internal/model"
	"github.com/Veraticus/dispute-triage/internal/service"
)

type exemplar struct {
	category model.Category
	text     string
	vector   []float32
}

// SemanticMatcher compares dispute text to category exemplars in embedding space.
type SemanticMatcher struct {
	embedder  embedding.Embedder
	exemplars []exemplar
	threshold float64
}

// NewSemanticMatcher embeds every exemplar once. Failure here means the
// embedding model is unusable and is returned to the caller.
func NewSemanticMatcher(ctx context.Context, lex *config.Lexicon, embedder embedding.Embedder, retry service.RetryOptions) (*SemanticMatcher, error) {
	var exemplars []exemplar
	var texts []string
	for _, c := range lex.Categories {
		for _, text := range c.Exemplars {
			exemplars = append(exemplars, exemplar{category: model.Category(c.Name), text: text})
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, common.NewConfigError("categories", "semantic matching needs at least one exemplar")
	}

	vectors, err := common.Retry(ctx, retry, func() ([][]float32, error) {
		return embedder.Embed(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed category exemplars with %s: %w", embedder.Model(), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d exemplar vectors, got %d", common.ErrEmbeddingFailed, len(texts), len(vectors))
	}

	for i := range exemplars {
		if embedding.IsZero(vectors[i]) {
			return nil, fmt.Errorf("%w: exemplar %q has an empty vector", common.ErrEmbeddingFailed, exemplars[i].text)
		}
		exemplars[i].vector = vectors[i]
	}

	return &SemanticMatcher{
		embedder:  embedder,
		exemplars: exemplars,
		threshold: lex.SemanticThreshold,
	}, nil
}

// Best returns the category and exemplar most similar to vec.
// Exemplars are scanned in declared category order, so ties keep the earlier category.
func (s *SemanticMatcher) Best(vec []float32) (model.Category, string, float64) {
	best := -1
	bestSim := 0.0
	for i, ex := range s.exemplars {
		sim := embedding.Cosine(vec, ex.vector)
		if best == -1 || sim > bestSim {
			best, bestSim = i, sim
		}
	}
	if best == -1 {
		return "", "", 0
	}
	return s.exemplars[best].category, s.exemplars[best].text, bestSim
}

// Match embeds text and assigns the closest category when similarity reaches
// the threshold. A returned error wraps common.ErrEmbeddingFailed and means
// the stage could not run for this text.
func (s *SemanticMatcher) Match(ctx context.Context, text string) (*Match, error) {
	vectors, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrEmbeddingFailed, err)
	}
	if len(vectors) != 1 || embedding.IsZero(vectors[0]) {
		return nil, fmt.Errorf("%w: no usable vector", common.ErrEmbeddingFailed)
	}

	category, ex, sim := s.Best(vectors[0])
	if category == "" || sim < s.threshold {
		return nil, nil
	}

	return &Match{
		Category:    category,
		Method:      model.MethodSemanticMatch,
		Confidence:  clamp01(sim),
		Explanation: fmt.Sprintf("Description is semantically similar to %s example %q (similarity %.2f).", category, ex, sim),
		Evidence: model.Evidence{
			Exemplar:   ex,
			Similarity: sim,
		},
	}, nil
}
