package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/store"
)

const (
	llmSummaryTimeout  = 60 * time.Second
	llmSummaryMaxChars = 24000
)

// LlmSummaryAnnotator calls an OpenAI-compatible chat-completions endpoint
// (OpenRouter) to produce a short synopsis of a document's combined text.
// Deferred: dominated by remote API latency, not local CPU.
type LlmSummaryAnnotator struct {
	st         store.Store
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewLlmSummaryAnnotator(st store.Store, apiKey, model string) *LlmSummaryAnnotator {
	return NewLlmSummaryAnnotatorWithEndpoint(st, apiKey, model, "https://openrouter.ai/api/v1/chat/completions")
}

// NewLlmSummaryAnnotatorWithEndpoint targets a chat-completions endpoint
// other than OpenRouter's default, for self-hosted OpenAI-compatible
// gateways and for tests.
func NewLlmSummaryAnnotatorWithEndpoint(st store.Store, apiKey, model, baseURL string) *LlmSummaryAnnotator {
	return &LlmSummaryAnnotator{
		st:         st,
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: llmSummaryTimeout},
	}
}

func (a *LlmSummaryAnnotator) AnnotationType() string { return "llm_summary" }
func (a *LlmSummaryAnnotator) DisplayName() string    { return "LLM Summary" }
func (a *LlmSummaryAnnotator) Version() int           { return 1 }
func (a *LlmSummaryAnnotator) IsDeferred() bool       { return true }

func (a *LlmSummaryAnnotator) IsAvailable(ctx context.Context) bool { return a.apiKey != "" }
func (a *LlmSummaryAnnotator) AvailabilityHint() string             { return "OPENROUTER_API_KEY not configured" }

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *LlmSummaryAnnotator) Annotate(ctx context.Context, doc Document) (Output, error) {
	text := doc.Text
	if len(text) > llmSummaryMaxChars {
		text = text[:llmSummaryMaxChars]
	}

	reqBody := chatCompletionRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Summarize the document in two or three sentences. Return only the summary, no preamble."},
			{Role: "user", Content: text},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Output{}, fmt.Errorf("llm_summary: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, llmSummaryTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Output{}, fmt.Errorf("llm_summary: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("llm_summary: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Output{}, fmt.Errorf("llm_summary: status %d: %s", resp.StatusCode, body)
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Output{}, fmt.Errorf("llm_summary: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return NoResult(), nil
	}

	summary := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if summary == "" {
		return NoResult(), nil
	}
	return DataOutput(summary), nil
}

func (a *LlmSummaryAnnotator) PostRecord(ctx context.Context, doc Document, output Output) error {
	if !output.IsData() {
		return nil
	}
	return a.st.UpdateDocumentSynopsis(ctx, doc.ID, output.Data())
}
