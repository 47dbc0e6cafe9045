// Package model defines the document/version/page data model shared by the
// pipeline, the store and the annotator framework.
package model

import (
	"strconv"
	"time"
)

// DocumentStatus tracks a document's progress through the pipeline.
type DocumentStatus string

const (
	DocumentPending       DocumentStatus = "pending"
	DocumentDownloaded    DocumentStatus = "downloaded"
	DocumentTextExtracted DocumentStatus = "text_extracted"
	DocumentOcrComplete   DocumentStatus = "ocr_complete"
	DocumentIndexed       DocumentStatus = "indexed"
	DocumentFailed        DocumentStatus = "failed"
)

// PageStatus is the per-page lifecycle state.
type PageStatus string

const (
	PagePending       PageStatus = "pending"
	PageTextExtracted PageStatus = "text_extracted"
	PageOcrComplete   PageStatus = "ocr_complete"
	PageFailed        PageStatus = "failed"
)

// Document is the top-level unit of work. It owns an ordered sequence of
// Versions; CurrentVersionID points at the last one.
type Document struct {
	ID               string
	SourceID         string
	Title            string
	SourceURL        string
	Status           DocumentStatus
	Metadata         map[string]interface{}
	Tags             []string
	Synopsis         *string
	EstimatedDate    *time.Time
	EstimatedDateSrc *string
	DateConfidence   *float64
	CurrentVersionID int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Version is one acquired copy of a Document's content.
type Version struct {
	ID               int64
	DocumentID       string
	ContentHash      string
	SecondaryHash    *string
	MimeType         string
	ByteSize         int64
	StoredPath       *string
	AcquiredAt       time.Time
	OriginalFilename *string
	ServerDate       *time.Time
	PageCount        *int
}

// Page is one (document, version, page_number) slot. Page numbers are
// 1-based and contiguous within a version.
type Page struct {
	ID           int64
	DocumentID   string
	VersionID    int64
	PageNumber   int
	ExtractedText *string
	OcrText      *string
	FinalText    *string
	OcrStatus    PageStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ItemID formats the event-channel identifier for a page, "<doc_id>:p<n>".
func (p Page) ItemID() string {
	return ItemIDForPage(p.DocumentID, p.PageNumber)
}

// ItemIDForPage builds the canonical page item_id without requiring a Page value.
func ItemIDForPage(docID string, pageNumber int) string {
	return docID + ":p" + strconv.Itoa(pageNumber)
}

// PageOcrResult is one (page, backend) row of OCR/extraction output.
type PageOcrResult struct {
	ID              int64
	PageID          int64
	Backend         string
	Text            string
	Model           *string
	Confidence      *float64
	ProcessingMs    *int64
	ImageHash       *string
	CreatedAt       time.Time
}

// AnalysisCompletion marks (document, version, annotation_type) as processed,
// or (with OnFailure set) as terminally failed until a retry cooldown elapses.
type AnalysisCompletion struct {
	ID             int64
	DocumentID     string
	VersionID      int64
	AnnotationType string
	Subtype        string
	Data           *string
	OnFailure      bool
	CreatedAt      time.Time
}

// DocumentEntity is a named-entity row populated by the NER annotator's
// PostRecord side effect. Not part of the distilled core's data model but
// required to make that annotator's side effect observable/testable.
type DocumentEntity struct {
	ID             int64
	DocumentID     string
	Text           string
	NormalizedText string
	EntityType     string
	CreatedAt      time.Time
}

// WorkFilter selects candidate documents for a work queue batch.
type WorkFilter struct {
	WorkType           string
	SourceID           *string
	MimeType           *string
	RetryIntervalHours int
}
