package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/Veraticus/dispute-triage/internal/common"
)

const minHashingDims = 16

// Feature weights. Whole words dominate; bigrams and character trigrams add
// word-order and spelling tolerance.
const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.25
)

// HashingEmbedder is an offline embedder that projects word unigrams, word
// bigrams and character trigrams into a fixed number of buckets with signed
// feature hashing. Output is L2-normalized and fully deterministic.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
func NewHashingEmbedder(dims int) (*HashingEmbedder, error) {
	if dims < minHashingDims {
		return nil, fmt.Errorf("hashing embedder needs at least %d dimensions, got %d", minHashingDims, dims)
	}
	return &HashingEmbedder{dims: dims}, nil
}

// Model returns the model identifier, e.g. local:hashing-256.
func (h *HashingEmbedder) Model() string {
	return fmt.Sprintf("%s%d", localHashingPrefix, h.dims)
}

// Embed encodes each text. Text without any word characters is an error.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := h.embedOne(text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (h *HashingEmbedder) embedOne(text string) ([]float32, error) {
	tokens := common.Tokenize(text)
	if len(tokens) == 0 {
		return nil, permanent(fmt.Errorf("%w: no words in %q", common.ErrEmbeddingFailed, text))
	}

	acc := make([]float64, h.dims)
	for i, tok := range tokens {
		h.add(acc, "w:"+tok, unigramWeight)
		if i > 0 {
			h.add(acc, "b:"+tokens[i-1]+" "+tok, bigramWeight)
		}
		runes := []rune("#" + tok + "#")
		for j := 0; j+3 <= len(runes); j++ {
			h.add(acc, "c:"+string(runes[j:j+3]), trigramWeight)
		}
	}

	var norm float64
	for _, x := range acc {
		norm += x * x
	}
	if norm == 0 {
		return nil, permanent(fmt.Errorf("%w: features cancelled out for %q", common.ErrEmbeddingFailed, text))
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, h.dims)
	for i, x := range acc {
		vec[i] = float32(x / norm)
	}
	return vec, nil
}

func (h *HashingEmbedder) add(acc []float64, feature string, weight float64) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()

	if sum>>63 == 1 {
		weight = -weight
	}
	acc[sum%uint64(h.dims)] += weight
}

// permanent marks an error that retrying cannot fix.
func permanent(err error) error {
	return &common.RetryableError{Err: err, Retryable: false}
}
