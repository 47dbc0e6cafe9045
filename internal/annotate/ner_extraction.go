package annotate

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Coarse regex patterns grounded on the shapes the original entity extractor
// targets: corporate/agency suffixes for organizations, capitalized
// multi-word runs for persons and locations, and the case/file number
// formats common in government records.
var (
	orgSuffixRe  = regexp.MustCompile(`\b([A-Z][A-Za-z&.,]*(?:\s+[A-Z][A-Za-z&.,]*){0,4}\s+(?:Inc|LLC|Corp|Corporation|Company|Co|Department|Agency|Bureau|Office|Administration|Commission)\.?)\b`)
	personRe     = regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Dr|Agent|Officer|Director|Special Agent)\.?\s+([A-Z][a-z]+(?:\s+[A-Z]\.?)?\s+[A-Z][a-z]+)\b`)
	locationRe   = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?,\s+(?:[A-Z]{2}|[A-Z][a-z]+))\b`)
	caseNumberRe = regexp.MustCompile(`\b([A-Z]{1,4}-\d{2,4}-\d{3,8}|No\.\s*\d{2,4}-[A-Z]{1,4}-\d{3,8})\b`)
)

// NerExtractionAnnotator extracts coarse named entities (organizations,
// persons, locations, case/file numbers) via regex heuristics. It has no
// external dependency, so it is never unavailable.
type NerExtractionAnnotator struct {
	st store.Store
}

func NewNerExtractionAnnotator(st store.Store) *NerExtractionAnnotator {
	return &NerExtractionAnnotator{st: st}
}

func (a *NerExtractionAnnotator) AnnotationType() string               { return "ner_extraction" }
func (a *NerExtractionAnnotator) DisplayName() string                  { return "Named Entity Extraction" }
func (a *NerExtractionAnnotator) Version() int                         { return 1 }
func (a *NerExtractionAnnotator) IsDeferred() bool                     { return false }
func (a *NerExtractionAnnotator) IsAvailable(ctx context.Context) bool { return true }
func (a *NerExtractionAnnotator) AvailabilityHint() string             { return "" }

func (a *NerExtractionAnnotator) Annotate(ctx context.Context, doc Document) (Output, error) {
	entities := extractEntities(doc.Text)
	if len(entities) == 0 {
		return NoResult(), nil
	}
	return DataOutput(strconv.Itoa(len(entities)) + " entities"), nil
}

// PostRecord replaces the document's entity rows wholesale; entity
// extraction is idempotent per run so a delete-then-insert keeps the table
// consistent with the latest regex pass rather than accumulating duplicates
// across re-annotation.
func (a *NerExtractionAnnotator) PostRecord(ctx context.Context, doc Document, output Output) error {
	if !output.IsData() {
		return a.st.ReplaceDocumentEntities(ctx, doc.ID, nil)
	}
	entities := extractEntities(doc.Text)
	rows := make([]model.DocumentEntity, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, model.DocumentEntity{
			DocumentID:     doc.ID,
			Text:           e.text,
			NormalizedText: strings.ToLower(strings.Join(strings.Fields(e.text), " ")),
			EntityType:     e.kind,
		})
	}
	return a.st.ReplaceDocumentEntities(ctx, doc.ID, rows)
}

type entityMatch struct {
	text string
	kind string
}

func extractEntities(text string) []entityMatch {
	seen := map[string]bool{}
	var out []entityMatch

	add := func(kind string, matches [][]string) {
		for _, m := range matches {
			val := strings.TrimSpace(m[1])
			key := kind + ":" + strings.ToLower(val)
			if val == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, entityMatch{text: val, kind: kind})
		}
	}

	add("organization", orgSuffixRe.FindAllStringSubmatch(text, -1))
	add("person", personRe.FindAllStringSubmatch(text, -1))
	add("location", locationRe.FindAllStringSubmatch(text, -1))
	add("case_number", caseNumberRe.FindAllStringSubmatch(text, -1))

	return out
}
