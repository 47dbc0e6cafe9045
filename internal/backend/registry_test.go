package backend_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/backend"
)

type stubBackend struct {
	id        string
	available bool
	mimes     []string
}

func (s *stubBackend) AnalysisType() backend.AnalysisType         { return backend.Ocr }
func (s *stubBackend) BackendID() string                          { return s.id }
func (s *stubBackend) IsAvailable(ctx context.Context) bool       { return s.available }
func (s *stubBackend) AvailabilityHint() string                   { return "unavailable" }
func (s *stubBackend) IsDeferred() bool                           { return false }
func (s *stubBackend) Granularity() backend.Granularity            { return backend.GranularityPage }
func (s *stubBackend) SupportsMimetype(mimeType string) bool {
	for _, m := range s.mimes {
		if m == mimeType {
			return true
		}
	}
	return false
}
func (s *stubBackend) AnalyzeFile(ctx context.Context, path string) (backend.AnalysisResult, error) {
	return backend.AnalysisResult{}, nil
}
func (s *stubBackend) AnalyzePage(ctx context.Context, path string, page int) (backend.AnalysisResult, error) {
	return backend.AnalysisResult{}, nil
}
func (s *stubBackend) AnalyzeImage(ctx context.Context, path string) (backend.AnalysisResult, error) {
	return backend.AnalysisResult{Text: s.id}, nil
}

func TestRegistryOcrDefaultsToFirstRegistered(t *testing.T) {
	r := backend.NewRegistry()
	first := &stubBackend{id: "tesseract", available: true, mimes: []string{"image/png"}}
	second := &stubBackend{id: "remote", available: true, mimes: []string{"image/png"}}
	r.RegisterOcr(first)
	r.RegisterOcr(second)

	b, ok := r.Get("ocr")
	require.True(t, ok)
	assert.Equal(t, "tesseract", b.BackendID())

	b, ok = r.Get("ocr:remote")
	require.True(t, ok)
	assert.Equal(t, "remote", b.BackendID())
}

func TestRegistryGetBackendsForResolvesInOrderAndDropsUnavailable(t *testing.T) {
	r := backend.NewRegistry()
	r.RegisterOcr(&stubBackend{id: "tesseract", available: true, mimes: []string{"image/png"}})
	r.RegisterCustom("ocrmypdf", &stubBackend{id: "ocrmypdf", available: false, mimes: []string{"application/pdf"}})

	resolved := r.GetBackendsFor(context.Background(), []string{"ocr", "ocrmypdf", "unknown"}, "image/png")
	require.Len(t, resolved, 1)
	assert.Equal(t, "tesseract", resolved[0].BackendID())
}

func TestRegistryGetBackendsForSkipsMimetypeMismatch(t *testing.T) {
	r := backend.NewRegistry()
	r.RegisterOcr(&stubBackend{id: "tesseract", available: true, mimes: []string{"application/pdf"}})

	resolved := r.GetBackendsFor(context.Background(), []string{"ocr"}, "image/png")
	assert.Empty(t, resolved)
}

func TestRegistryAllDeduplicatesSameBackendUnderMultipleKeys(t *testing.T) {
	r := backend.NewRegistry()
	r.RegisterOcr(&stubBackend{id: "tesseract", available: true, mimes: []string{"image/png"}})

	all := r.All()
	assert.Len(t, all, 1)
}
