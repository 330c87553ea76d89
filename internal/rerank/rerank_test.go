package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapterEmptyInput(t *testing.T) {
	a := NewHTTPAdapter(HTTPConfig{URL: "http://unused"}, nil)
	got, err := a.Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHTTPAdapterRanksAndSorts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Len(t, req.Documents, 3)

		// Deliberately unsorted response; the adapter must sort by score.
		resp := rerankResponse{}
		resp.Results = []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}{
			{Index: 0, RelevanceScore: 0.2},
			{Index: 2, RelevanceScore: 0.9},
			{Index: 1, RelevanceScore: 0.5},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPConfig{URL: srv.URL, Model: "test-model"}, nil)
	got, err := a.Rerank(context.Background(), "query", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, 0, got[2].Index)
}

func TestHTTPAdapterBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPConfig{URL: srv.URL}, nil)
	_, err := a.Rerank(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}

func TestHTTPAdapterWrongResultCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"index":0,"relevance_score":1.0}]}`))
	}))
	defer srv.Close()

	a := NewHTTPAdapter(HTTPConfig{URL: srv.URL}, nil)
	_, err := a.Rerank(context.Background(), "q", []string{"a", "b"})
	assert.Error(t, err)
}
