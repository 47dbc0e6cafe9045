package annotate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/adverant/nexus/docpipeline/internal/store"
)

var urlRe = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

// UrlExtractionAnnotator pulls URLs referenced inside a document's text
// (citations, source links, cross-references) into document metadata.
type UrlExtractionAnnotator struct {
	st store.Store
}

func NewUrlExtractionAnnotator(st store.Store) *UrlExtractionAnnotator {
	return &UrlExtractionAnnotator{st: st}
}

func (a *UrlExtractionAnnotator) AnnotationType() string               { return "url_extraction" }
func (a *UrlExtractionAnnotator) DisplayName() string                  { return "URL Extraction" }
func (a *UrlExtractionAnnotator) Version() int                         { return 1 }
func (a *UrlExtractionAnnotator) IsDeferred() bool                     { return false }
func (a *UrlExtractionAnnotator) IsAvailable(ctx context.Context) bool { return true }
func (a *UrlExtractionAnnotator) AvailabilityHint() string             { return "" }

func (a *UrlExtractionAnnotator) Annotate(ctx context.Context, doc Document) (Output, error) {
	urls := extractURLs(doc.Text)
	if len(urls) == 0 {
		return NoResult(), nil
	}
	return DataOutput(strconv.Itoa(len(urls)) + " urls"), nil
}

func (a *UrlExtractionAnnotator) PostRecord(ctx context.Context, doc Document, output Output) error {
	if !output.IsData() {
		return nil
	}
	return a.st.UpdateDocumentMetadataURLs(ctx, doc.ID, extractURLs(doc.Text))
}

func extractURLs(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, u := range urlRe.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
