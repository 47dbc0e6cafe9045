package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
)

const customBackendDefaultTimeout = 30 * time.Second

// CustomBackend invokes a user-configured subprocess with an argv template.
// Placeholders $INPUT and $PAGE are substituted positionally; output is
// captured either from stdout or from a configured output file path
// (itself subject to the same placeholder substitution).
type CustomBackend struct {
	name        string
	command     string
	args        []string
	mimetypes   []string
	granularity Granularity
	stdout      bool
	outputFile  string
}

type CustomBackendSpec struct {
	Name        string
	Command     string
	Args        []string
	Mimetypes   []string
	Granularity Granularity
	Stdout      bool
	OutputFile  string
}

func NewCustomBackend(spec CustomBackendSpec) *CustomBackend {
	return &CustomBackend{
		name:        spec.Name,
		command:     spec.Command,
		args:        spec.Args,
		mimetypes:   spec.Mimetypes,
		granularity: spec.Granularity,
		stdout:      spec.Stdout,
		outputFile:  spec.OutputFile,
	}
}

func (b *CustomBackend) AnalysisType() AnalysisType { return Custom(b.name) }
func (b *CustomBackend) BackendID() string          { return b.name }
func (b *CustomBackend) IsDeferred() bool           { return false }
func (b *CustomBackend) Granularity() Granularity   { return b.granularity }

func (b *CustomBackend) SupportsMimetype(mimeType string) bool {
	return matchAnyMimetype(b.mimetypes, mimeType)
}

func (b *CustomBackend) IsAvailable(ctx context.Context) bool {
	_, err := exec.LookPath(b.command)
	return err == nil
}

func (b *CustomBackend) AvailabilityHint() string {
	return fmt.Sprintf("custom backend %q: command %q not found in PATH", b.name, b.command)
}

func (b *CustomBackend) AnalyzeFile(ctx context.Context, path string) (AnalysisResult, error) {
	if b.granularity != GranularityDocument {
		return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzeFile")
	}
	return b.run(ctx, path, 0)
}

func (b *CustomBackend) AnalyzePage(ctx context.Context, path string, page int) (AnalysisResult, error) {
	if b.granularity != GranularityPage {
		return AnalysisResult{}, errdefs.NewUnsupportedOperation(b.BackendID(), "AnalyzePage")
	}
	return b.run(ctx, path, page)
}

func (b *CustomBackend) AnalyzeImage(ctx context.Context, path string) (AnalysisResult, error) {
	return b.run(ctx, path, 0)
}

func (b *CustomBackend) run(ctx context.Context, path string, page int) (AnalysisResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, customBackendDefaultTimeout)
	defer cancel()

	var outputFile string
	if !b.stdout {
		outputFile = b.substitute(b.outputFile, path, page)
		if outputFile == "" {
			dir, err := os.MkdirTemp("", "docpipeline-custom-*")
			if err != nil {
				return AnalysisResult{}, errdefs.NewIO(path, err)
			}
			defer os.RemoveAll(dir)
			outputFile = filepath.Join(dir, "output.txt")
		}
	}

	args := make([]string, len(b.args))
	for i, a := range b.args {
		args[i] = b.substituteOutput(a, path, page, outputFile)
	}

	cmd := exec.CommandContext(ctx, b.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return AnalysisResult{}, errdefs.NewAnalysisFailed(b.name, path, strings.TrimSpace(stderr.String()), err)
	}

	var text string
	if b.stdout {
		text = stdout.String()
	} else {
		data, err := os.ReadFile(outputFile)
		if err != nil {
			return AnalysisResult{}, errdefs.NewIO(outputFile, err)
		}
		text = string(data)
	}

	return AnalysisResult{
		Text:         strings.TrimSpace(text),
		Model:        b.name,
		ProcessingMs: time.Since(start).Milliseconds(),
	}, nil
}

func (b *CustomBackend) substitute(template, path string, page int) string {
	s := strings.ReplaceAll(template, "$INPUT", path)
	s = strings.ReplaceAll(s, "$PAGE", strconv.Itoa(page))
	return s
}

func (b *CustomBackend) substituteOutput(template, path string, page int, outputFile string) string {
	s := b.substitute(template, path, page)
	return strings.ReplaceAll(s, "$OUTPUT", outputFile)
}
