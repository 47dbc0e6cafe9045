package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
)

const remoteBackendTimeout = 30 * time.Second

// RemoteVisionBackend calls an OpenAI-compatible chat-completions endpoint
// with an inline base64 image and a fixed OCR-style prompt. Groq and Gemini
// (via an OpenAI-compatible proxy) share this shape; they differ only in
// base URL, API key and model name.
type RemoteVisionBackend struct {
	id         string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewGroqVisionBackend(apiKey, model string) *RemoteVisionBackend {
	return newRemoteVisionBackend("groq", "https://api.groq.com/openai/v1/chat/completions", apiKey, model)
}

func NewGeminiVisionBackend(apiKey, model string) *RemoteVisionBackend {
	return newRemoteVisionBackend("gemini", "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions", apiKey, model)
}

// NewRemoteVisionBackend targets an OpenAI-compatible vision endpoint other
// than Groq/Gemini's defaults, for self-hosted proxies and for tests.
func NewRemoteVisionBackend(id, baseURL, apiKey, model string) *RemoteVisionBackend {
	return newRemoteVisionBackend(id, baseURL, apiKey, model)
}

func newRemoteVisionBackend(id, baseURL, apiKey, model string) *RemoteVisionBackend {
	return &RemoteVisionBackend{
		id:         id,
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: remoteBackendTimeout},
	}
}

func (b *RemoteVisionBackend) AnalysisType() AnalysisType { return Ocr }
func (b *RemoteVisionBackend) BackendID() string          { return b.id }
func (b *RemoteVisionBackend) IsDeferred() bool           { return true }
func (b *RemoteVisionBackend) Granularity() Granularity   { return GranularityPage }

func (b *RemoteVisionBackend) SupportsMimetype(mimeType string) bool {
	return matchAnyMimetype([]string{"image/*", "application/pdf"}, mimeType)
}

func (b *RemoteVisionBackend) IsAvailable(ctx context.Context) bool {
	return b.apiKey != ""
}

func (b *RemoteVisionBackend) AvailabilityHint() string {
	return fmt.Sprintf("%s API key not configured", b.id)
}

func (b *RemoteVisionBackend) AnalyzeFile(ctx context.Context, path string) (AnalysisResult, error) {
	return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzeFile")
}

func (b *RemoteVisionBackend) AnalyzePage(ctx context.Context, path string, page int) (AnalysisResult, error) {
	return b.AnalyzeImage(ctx, path)
}

type visionChatRequest struct {
	Model    string              `json:"model"`
	Messages []visionChatMessage `json:"messages"`
}

type visionChatMessage struct {
	Role    string             `json:"role"`
	Content []visionChatContent `json:"content"`
}

type visionChatContent struct {
	Type     string            `json:"type"`
	Text     string            `json:"text,omitempty"`
	ImageURL *visionChatImgURL `json:"image_url,omitempty"`
}

type visionChatImgURL struct {
	URL string `json:"url"`
}

type visionChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (b *RemoteVisionBackend) AnalyzeImage(ctx context.Context, path string) (AnalysisResult, error) {
	if !b.IsAvailable(ctx) {
		return AnalysisResult{}, errdefs.NewBackendNotAvailable(b.id, b.AvailabilityHint())
	}
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return AnalysisResult{}, errdefs.NewIO(path, err)
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)

	reqBody := visionChatRequest{
		Model: b.model,
		Messages: []visionChatMessage{
			{
				Role: "user",
				Content: []visionChatContent{
					{Type: "text", Text: "Transcribe all visible text in this image verbatim. Return only the transcription."},
					{Type: "image_url", ImageURL: &visionChatImgURL{URL: dataURL}},
				},
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.id, path, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, remoteBackendTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL, bytes.NewReader(payload))
	if err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.id, path, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return AnalysisResult{}, errdefs.NewIO(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return AnalysisResult{}, errdefs.NewRateLimited(b.id, 0)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.id, path, fmt.Sprintf("status %d: %s", resp.StatusCode, body), nil)
	}

	var parsed visionChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.id, path, "decode response", err)
	}
	if len(parsed.Choices) == 0 {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.id, path, "empty response", nil)
	}

	return AnalysisResult{
		Text:         parsed.Choices[0].Message.Content,
		Model:        b.model,
		ProcessingMs: time.Since(start).Milliseconds(),
	}, nil
}
