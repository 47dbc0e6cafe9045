package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
)

const whisperTimeout = 5 * time.Minute

// WhisperBackend transcribes audio/video documents via a local whisper.cpp
// (or compatible) CLI binary. Document-level.
type WhisperBackend struct {
	binaryPath string
	modelPath  string
}

func NewWhisperBackend(binaryPath, modelPath string) *WhisperBackend {
	if binaryPath == "" {
		binaryPath = "whisper"
	}
	return &WhisperBackend{binaryPath: binaryPath, modelPath: modelPath}
}

func (b *WhisperBackend) AnalysisType() AnalysisType { return Whisper }
func (b *WhisperBackend) BackendID() string          { return "whisper" }
func (b *WhisperBackend) IsDeferred() bool           { return false }
func (b *WhisperBackend) Granularity() Granularity   { return GranularityDocument }

func (b *WhisperBackend) SupportsMimetype(mimeType string) bool {
	return matchAnyMimetype([]string{"audio/*", "video/*"}, mimeType)
}

func (b *WhisperBackend) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(b.binaryPath)
	return err == nil
}

func (b *WhisperBackend) AvailabilityHint() string {
	return fmt.Sprintf("whisper binary %q not found in PATH", b.binaryPath)
}

func (b *WhisperBackend) AnalyzePage(ctx context.Context, path string, page int) (AnalysisResult, error) {
	return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzePage")
}

func (b *WhisperBackend) AnalyzeImage(ctx context.Context, path string) (AnalysisResult, error) {
	return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzeImage")
}

func (b *WhisperBackend) AnalyzeFile(ctx context.Context, path string) (AnalysisResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, whisperTimeout)
	defer cancel()

	args := []string{"-f", path, "-otxt", "-of", "-"}
	if b.modelPath != "" {
		args = append([]string{"-m", b.modelPath}, args...)
	}
	cmd := exec.CommandContext(ctx, b.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.BackendID(), path, strings.TrimSpace(stderr.String()), err)
	}

	return AnalysisResult{
		Text:         strings.TrimSpace(stdout.String()),
		Model:        "whisper",
		ProcessingMs: time.Since(start).Milliseconds(),
	}, nil
}
