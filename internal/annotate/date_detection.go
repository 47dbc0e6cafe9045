package annotate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Filename/title patterns checked before falling back to the acquiring HTTP
// server's Date header: ISO dates are the least ambiguous, then a spelled
// month name, then US-style slash dates.
var (
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	monthNameRe = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December)\s+(\d{1,2}),?\s+(\d{4})\b`)
	usSlashRe   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
)

var monthByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// DateDetectionAnnotator estimates a document's real-world date from its
// title or source URL, falling back to the acquiring HTTP server's Date
// header, and finally to the version's own acquisition timestamp, when no
// date-like token is present in either.
type DateDetectionAnnotator struct {
	st store.Store
}

func NewDateDetectionAnnotator(st store.Store) *DateDetectionAnnotator {
	return &DateDetectionAnnotator{st: st}
}

func (a *DateDetectionAnnotator) AnnotationType() string               { return "date_detection" }
func (a *DateDetectionAnnotator) DisplayName() string                  { return "Date Detection" }
func (a *DateDetectionAnnotator) Version() int                         { return 1 }
func (a *DateDetectionAnnotator) IsDeferred() bool                     { return false }
func (a *DateDetectionAnnotator) IsAvailable(ctx context.Context) bool { return true }
func (a *DateDetectionAnnotator) AvailabilityHint() string             { return "" }

func (a *DateDetectionAnnotator) Annotate(ctx context.Context, doc Document) (Output, error) {
	if date, ok := extractDate(doc.Title); ok {
		return dateOutput(date, "title"), nil
	}
	if date, ok := extractDate(doc.SourceURL); ok {
		return dateOutput(date, "source_url"), nil
	}
	if doc.ServerDate != nil {
		if t, err := time.Parse(time.RFC3339, *doc.ServerDate); err == nil {
			return dateOutput(t, "server_date"), nil
		}
	}
	if !doc.AcquiredAt.IsZero() {
		return dateOutput(doc.AcquiredAt, "acquired_at"), nil
	}
	return NoResult(), nil
}

// PostRecord persists the detected date onto the document row; Annotate
// only produces the completion record's data payload.
func (a *DateDetectionAnnotator) PostRecord(ctx context.Context, doc Document, output Output) error {
	if !output.IsData() {
		return nil
	}
	date, source, ok := parseDateOutput(output.Data())
	if !ok {
		return fmt.Errorf("date_detection: malformed output payload %q", output.Data())
	}
	return a.st.UpdateDocumentEstimatedDate(ctx, doc.ID, date, source)
}

func dateOutput(t time.Time, source string) Output {
	return DataOutput(t.Format(time.RFC3339) + "|" + source)
}

func parseDateOutput(data string) (time.Time, string, bool) {
	idx := strings.LastIndexByte(data, '|')
	if idx < 0 {
		return time.Time{}, "", false
	}
	t, err := time.Parse(time.RFC3339, data[:idx])
	if err != nil {
		return time.Time{}, "", false
	}
	return t, data[idx+1:], true
}

func extractDate(s string) (time.Time, bool) {
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return t, true
		}
	}
	if m := monthNameRe.FindStringSubmatch(s); m != nil {
		if month, ok := monthByName[strings.ToLower(m[1])]; ok {
			layout := "2006-1-2"
			value := m[3] + "-" + strconv.Itoa(int(month)) + "-" + m[2]
			if t, err := time.Parse(layout, value); err == nil {
				return t, true
			}
		}
	}
	if m := usSlashRe.FindStringSubmatch(s); m != nil {
		if t, err := time.Parse("1-2-2006", m[1]+"-"+m[2]+"-"+m[3]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
