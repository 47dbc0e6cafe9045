// Package backend defines the analysis backend contract and the adapters
// that implement it: local Tesseract OCR, remote vision-model OCR, local
// Whisper transcription, and user-configured subprocess backends.
package backend

import "context"

// AnalysisType identifies the family of analysis a backend performs.
type AnalysisType struct {
	kind   string
	custom string
}

var (
	Ocr     = AnalysisType{kind: "ocr"}
	Whisper = AnalysisType{kind: "whisper"}
)

// Custom builds the Custom(name) analysis type variant.
func Custom(name string) AnalysisType { return AnalysisType{kind: "custom", custom: name} }

func (t AnalysisType) String() string {
	if t.kind == "custom" {
		return "custom:" + t.custom
	}
	return t.kind
}

// Granularity is the unit of work a backend operates over.
type Granularity int

const (
	GranularityPage Granularity = iota
	GranularityDocument
)

// AnalysisResult is the text and provenance produced by one backend
// invocation.
type AnalysisResult struct {
	Text         string
	Model        string
	Confidence   *float64
	ProcessingMs int64
}

// Backend is the analysis backend contract shared by every adapter. A given
// implementation supports exactly one of AnalyzeFile or AnalyzePage per its
// Granularity; the other returns errdefs.ErrUnsupportedOperation.
type Backend interface {
	AnalysisType() AnalysisType
	BackendID() string
	IsAvailable(ctx context.Context) bool
	AvailabilityHint() string
	IsDeferred() bool
	Granularity() Granularity
	SupportsMimetype(mimeType string) bool

	AnalyzeFile(ctx context.Context, path string) (AnalysisResult, error)
	AnalyzePage(ctx context.Context, path string, page int) (AnalysisResult, error)
	AnalyzeImage(ctx context.Context, path string) (AnalysisResult, error)
}
