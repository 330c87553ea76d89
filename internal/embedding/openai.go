package embedding

import (
	"context"

	"github.com/tmc/langchaingo/llms/openai"

	appErrors "forgetful-backend/pkg/errors"
)

// OpenAIAdapter generates embeddings through an OpenAI-compatible endpoint.
// Works against the hosted API and self-hosted servers (Ollama, vLLM) that
// speak the same protocol.
type OpenAIAdapter struct {
	llm  *openai.LLM
	dims int
}

// OpenAIConfig selects the model and endpoint for the adapter.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewOpenAIAdapter builds the adapter. Dimensions must match what the model
// actually emits; the first mismatched response is a hard error.
func NewOpenAIAdapter(cfg OpenAIConfig) (*OpenAIAdapter, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, appErrors.NewInternal("failed to initialize embedding provider", err)
	}
	return &OpenAIAdapter{llm: llm, dims: cfg.Dimensions}, nil
}

// Dimensions returns the configured vector length.
func (a *OpenAIAdapter) Dimensions() int { return a.dims }

// GenerateEmbedding embeds a single text.
func (a *OpenAIAdapter) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// GenerateEmbeddings embeds a batch in one provider round trip.
func (a *OpenAIAdapter) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := a.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, appErrors.NewTimeout("embedding request cancelled", err)
		}
		return nil, appErrors.NewInternal("embedding provider request failed", err)
	}
	if len(vecs) != len(texts) {
		return nil, appErrors.NewInternal("embedding provider returned wrong batch size", nil)
	}
	for _, v := range vecs {
		if err := CheckDimension(v, a.dims); err != nil {
			return nil, err
		}
	}
	return vecs, nil
}
