// Package embedding defines the embedding adapter contract and its providers.
// The repository stores vectors at the dimension the configured provider
// produces; switching providers requires a re-embed pass.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"

	appErrors "forgetful-backend/pkg/errors"
)

// Adapter converts text into a fixed-dimension vector. Implementations must
// be deterministic for a given provider+model and safe for concurrent use.
type Adapter interface {
	// GenerateEmbedding returns a vector of exactly Dimensions() length.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the vector length this adapter produces.
	Dimensions() int
}

// BatchAdapter is implemented by providers with a native batch endpoint.
// The re-embed orchestrator uses it when available.
type BatchAdapter interface {
	Adapter
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// CheckDimension fails loudly when a provider returns a vector of the wrong
// length. Silent truncation or padding would poison the index.
func CheckDimension(vec []float32, want int) error {
	if len(vec) != want {
		return appErrors.NewInternal(
			"embedding provider returned wrong dimension", nil)
	}
	return nil
}

// HashAdapter produces deterministic pseudo-embeddings from a SHA-256 stream
// of the input text. It has no semantic power beyond exact-ish lexical
// overlap, but it is free, offline, and stable, which makes it the default
// for local development and the test suite.
type HashAdapter struct {
	dims int
}

// NewHashAdapter creates a hash-based adapter with the given dimension.
func NewHashAdapter(dims int) *HashAdapter {
	return &HashAdapter{dims: dims}
}

// Dimensions returns the configured vector length.
func (a *HashAdapter) Dimensions() int { return a.dims }

// GenerateEmbedding builds a unit vector from overlapping word shingles so
// that texts sharing words land near each other under cosine distance.
func (a *HashAdapter) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, a.dims)
	for _, tok := range tokenize(text) {
		h := sha256.Sum256([]byte(tok))
		idx := binary.BigEndian.Uint32(h[:4]) % uint32(a.dims)
		sign := float32(1)
		if h[4]&1 == 1 {
			sign = -1
		}
		vec[idx] += sign
	}
	normalize(vec)
	return vec, nil
}

// GenerateEmbeddings implements BatchAdapter.
func (a *HashAdapter) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := a.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func tokenize(text string) []string {
	var toks []string
	start := -1
	lower := []rune(text)
	for i, r := range lower {
		isWord := r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isWord && start < 0 {
			start = i
		}
		if !isWord && start >= 0 {
			toks = append(toks, lowerString(lower[start:i]))
			start = -1
		}
	}
	if start >= 0 {
		toks = append(toks, lowerString(lower[start:]))
	}
	return toks
}

func lowerString(rs []rune) string {
	out := make([]rune, len(rs))
	for i, r := range rs {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		out[i] = r
	}
	return string(out)
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		// Zero text still needs a valid unit vector.
		vec[0] = 1
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// Cosine returns the cosine similarity of two equal-length vectors.
func Cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
