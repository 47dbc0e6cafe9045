// Package annotate implements the post-finalization annotator framework and
// its built-in annotators (date detection, NER, LLM summary, URL
// extraction).
package annotate

import (
	"context"
	"time"
)

// Output is the outcome of one Annotator.Annotate call.
type Output struct {
	kind string
	data string
}

func DataOutput(data string) Output { return Output{kind: "data", data: data} }
func NoResult() Output              { return Output{kind: "no_result"} }
func Skipped() Output               { return Output{kind: "skipped"} }

func (o Output) IsData() bool     { return o.kind == "data" }
func (o Output) IsNoResult() bool { return o.kind == "no_result" }
func (o Output) IsSkipped() bool  { return o.kind == "skipped" }
func (o Output) Data() string    { return o.data }

// Document is the minimal view an annotator needs of a document plus its
// combined page text, decoupling the annotator contract from store.Store's
// full surface.
type Document struct {
	ID         string
	SourceURL  string
	Title      string
	VersionID  int64
	ServerDate *string
	// AcquiredAt is when the current version's content was acquired, the
	// last-resort fallback for date_detection when neither the title/URL nor
	// the acquiring server's own Date header yields a date.
	AcquiredAt time.Time
	Text       string
}

// Annotator is the post-finalization annotation contract implemented by
// each built-in annotator (date detection, NER, LLM summary, URL
// extraction) and any custom one registered alongside them.
type Annotator interface {
	AnnotationType() string
	DisplayName() string
	// Version bumps force re-annotation when incremented.
	Version() int
	IsDeferred() bool
	IsAvailable(ctx context.Context) bool
	AvailabilityHint() string

	Annotate(ctx context.Context, doc Document) (Output, error)
	// PostRecord runs after the completion row is written; it is where
	// side effects like replacing entity rows or updating metadata happen.
	PostRecord(ctx context.Context, doc Document, output Output) error
}
