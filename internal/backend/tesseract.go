package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
)

// TesseractBackend runs local OCR via gosseract. Page-level; AnalyzeFile is
// unsupported.
type TesseractBackend struct {
	tesseractPath string
}

func NewTesseractBackend(tesseractPath string) *TesseractBackend {
	if tesseractPath == "" {
		tesseractPath = "/usr/bin/tesseract"
	}
	return &TesseractBackend{tesseractPath: tesseractPath}
}

func (b *TesseractBackend) AnalysisType() AnalysisType { return Ocr }
func (b *TesseractBackend) BackendID() string          { return "tesseract" }
func (b *TesseractBackend) IsDeferred() bool           { return false }
func (b *TesseractBackend) Granularity() Granularity   { return GranularityPage }

func (b *TesseractBackend) SupportsMimetype(mimeType string) bool {
	return matchAnyMimetype([]string{"image/*", "application/pdf"}, mimeType)
}

func (b *TesseractBackend) IsAvailable(ctx context.Context) bool {
	if _, err := os.Stat(b.tesseractPath); err == nil {
		return true
	}
	_, err := exec.LookPath("tesseract")
	return err == nil
}

func (b *TesseractBackend) AvailabilityHint() string {
	return fmt.Sprintf("tesseract binary not found at %s or in PATH", b.tesseractPath)
}

func (b *TesseractBackend) AnalyzeFile(ctx context.Context, path string) (AnalysisResult, error) {
	return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzeFile")
}

func (b *TesseractBackend) AnalyzePage(ctx context.Context, path string, page int) (AnalysisResult, error) {
	return b.AnalyzeImage(ctx, path)
}

func (b *TesseractBackend) AnalyzeImage(ctx context.Context, path string) (AnalysisResult, error) {
	start := time.Now()

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetImage(path); err != nil {
		return AnalysisResult{}, errdefs.NewIO(path, fmt.Errorf("set image: %w", err))
	}

	text, err := client.Text()
	if err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.BackendID(), path, "tesseract recognition failed", err)
	}

	confidence := estimateConfidence(text)
	return AnalysisResult{
		Text:         text,
		Model:        "tesseract-local",
		Confidence:   &confidence,
		ProcessingMs: time.Since(start).Milliseconds(),
	}, nil
}

// estimateConfidence is a rough text-quality heuristic used when a backend
// doesn't surface a real confidence score, generalized to any text producer.
func estimateConfidence(text string) float64 {
	confidence := 0.5
	if len(text) > 1000 {
		confidence += 0.1
	}
	if len(text) > 5000 {
		confidence += 0.1
	}
	if words := strings.Fields(text); len(words) > 100 {
		confidence += 0.1
	}
	alpha := 0
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			alpha++
		}
	}
	if len(text) > 0 {
		ratio := float64(alpha) / float64(len(text))
		if ratio > 0.5 && ratio < 0.9 {
			confidence += 0.1
		}
	}
	if confidence > 0.85 {
		confidence = 0.85
	}
	return confidence
}
