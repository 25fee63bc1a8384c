package rag

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/viant/vec/search"
)

// HashingEmbedder maps text to a bag-of-words vector using the hashing trick.
// It needs no network access and is deterministic, which makes it suitable for
// tests and offline use. Vectors are L2-normalized.
type HashingEmbedder struct {
	model     string
	dimension int
}

// NewHashingEmbedder creates a hashing embedder with the given dimension.
func NewHashingEmbedder(model string, dimension int) (*HashingEmbedder, error) {
	if dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	if model == "" {
		model = "hashing-v1"
	}
	return &HashingEmbedder{model: model, dimension: dimension}, nil
}

func (h *HashingEmbedder) GetModel() string { return h.model }

func (h *HashingEmbedder) GetDimension() int { return h.dimension }

// Embed implements Embedder.
func (h *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyTexts
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashingEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dimension)
	for _, token := range tokenize(text) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(token))
		sum := hasher.Sum64()
		bucket := int(sum % uint64(h.dimension))
		if sum&(1<<63) != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	mag := search.Float32s(vec).Magnitude()
	if mag == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= mag
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
