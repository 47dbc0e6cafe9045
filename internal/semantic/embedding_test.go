package semantic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/semantic"
)

func fixedVector(dims int, fill float32) []float32 {
	v := make([]float32, dims)
	for i := range v {
		v[i] = fill
	}
	return v
}

func TestEmbeddingClientGenerateReturnsVector(t *testing.T) {
	var capturedAuth, capturedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedAuth = r.Header.Get("Authorization")
		var req struct {
			Input string `json:"input"`
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		capturedBody = req.Input
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"embedding": fixedVector(1024, 0.5), "index": 0},
			},
		})
	}))
	defer server.Close()

	client := semantic.NewEmbeddingClientWithEndpoint("voyage-key", server.URL)
	vec, err := client.Generate(context.Background(), "some document text")
	require.NoError(t, err)
	assert.Len(t, vec, 1024)
	assert.Equal(t, "Bearer voyage-key", capturedAuth)
	assert.Equal(t, "some document text", capturedBody)
}

func TestEmbeddingClientTruncatesOversizedText(t *testing.T) {
	var capturedBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		capturedBody = req.Input
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": fixedVector(1024, 0.1)}},
		})
	}))
	defer server.Close()

	client := semantic.NewEmbeddingClientWithEndpoint("key", server.URL)
	huge := strings.Repeat("a", 20000)
	_, err := client.Generate(context.Background(), huge)
	require.NoError(t, err)
	assert.Len(t, capturedBody, 16000)
}

func TestEmbeddingClientRejectsWrongDimensionality(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": fixedVector(8, 0.1)}},
		})
	}))
	defer server.Close()

	client := semantic.NewEmbeddingClientWithEndpoint("key", server.URL)
	_, err := client.Generate(context.Background(), "text")
	require.Error(t, err)
}

func TestEmbeddingClientRejectsEmptyText(t *testing.T) {
	client := semantic.NewEmbeddingClientWithEndpoint("key", "http://unused")
	_, err := client.Generate(context.Background(), "")
	require.Error(t, err)
}
