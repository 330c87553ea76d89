// Package rerank defines the cross-encoder reranker contract. Reranking is
// optional: the retrieval pipeline skips the stage when no adapter is
// configured.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	appErrors "forgetful-backend/pkg/errors"
)

// RankedDoc pairs an input index with its relevance score.
type RankedDoc struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Adapter scores documents against a query. The result is sorted by score
// descending and has the same length as the input; empty input yields empty
// output.
type Adapter interface {
	Rerank(ctx context.Context, query string, documents []string) ([]RankedDoc, error)
}

// HTTPAdapter calls a Jina/Cohere-compatible rerank endpoint.
type HTTPAdapter struct {
	url     string
	apiKey  string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// HTTPConfig configures the rerank endpoint.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewHTTPAdapter builds a reranker client with a circuit breaker.
func NewHTTPAdapter(cfg HTTPConfig, logger *zap.Logger) *HTTPAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "rerank-provider",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPAdapter{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: timeout},
		breaker: cb,
		logger:  logger.Named("Reranker"),
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores documents against the query via the remote cross-encoder.
func (a *HTTPAdapter) Rerank(ctx context.Context, query string, documents []string) ([]RankedDoc, error) {
	if len(documents) == 0 {
		return []RankedDoc{}, nil
	}

	out, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, query, documents)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, appErrors.NewInternal("rerank provider unavailable", err)
		}
		return nil, err
	}
	return out.([]RankedDoc), nil
}

func (a *HTTPAdapter) call(ctx context.Context, query string, documents []string) ([]RankedDoc, error) {
	body, err := json.Marshal(rerankRequest{
		Model:     a.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, appErrors.NewInternal("failed to encode rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.NewInternal("failed to build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, appErrors.NewTimeout("rerank request cancelled", err)
		}
		return nil, appErrors.NewInternal("rerank request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.NewInternal(
			fmt.Sprintf("rerank provider returned status %d", resp.StatusCode), nil)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, appErrors.NewInternal("failed to decode rerank response", err)
	}
	if len(parsed.Results) != len(documents) {
		return nil, appErrors.NewInternal("rerank provider returned wrong result count", nil)
	}

	ranked := make([]RankedDoc, len(parsed.Results))
	for i, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, appErrors.NewInternal("rerank provider returned out-of-range index", nil)
		}
		ranked[i] = RankedDoc{Index: r.Index, Score: r.RelevanceScore}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
