// Package semantic is the optional post-finalization observer that embeds a
// finalized document's combined text and upserts it into Qdrant. It is
// write-only: the pipeline never reads it back, so there is no search
// surface here, only indexing.
package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	embeddingTimeout  = 30 * time.Second
	embeddingMaxChars = 16000
	embeddingDims     = 1024
)

// EmbeddingClient generates voyage-3 embeddings for document text.
type EmbeddingClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewEmbeddingClient(apiKey string) *EmbeddingClient {
	return NewEmbeddingClientWithEndpoint(apiKey, "https://api.voyageai.com/v1/embeddings")
}

// NewEmbeddingClientWithEndpoint targets an embeddings endpoint other than
// VoyageAI's default, for tests.
func NewEmbeddingClientWithEndpoint(apiKey, baseURL string) *EmbeddingClient {
	return &EmbeddingClient{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: embeddingTimeout},
	}
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *EmbeddingClient) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("semantic: empty text")
	}
	if len(text) > embeddingMaxChars {
		text = text[:embeddingMaxChars]
	}

	payload, err := json.Marshal(embeddingRequest{Input: text, Model: "voyage-3"})
	if err != nil {
		return nil, fmt.Errorf("semantic: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, embeddingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("semantic: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("semantic: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("semantic: status %d: %s", resp.StatusCode, body)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("semantic: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("semantic: empty embedding response")
	}
	if len(parsed.Data[0].Embedding) != embeddingDims {
		return nil, fmt.Errorf("semantic: expected %d dims, got %d", embeddingDims, len(parsed.Data[0].Embedding))
	}
	return parsed.Data[0].Embedding, nil
}
