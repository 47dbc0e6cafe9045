// Package store defines the persistence contract the pipeline, work queue
// and annotator framework are built against, plus the PostgreSQL
// implementation shipped with this worker.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/model"
)

// ErrNotFound is returned when a lookup by ID finds nothing.
var ErrNotFound = errors.New("not found")

// ClaimHandle represents an advisory document-level lock held for the
// duration of one stage's processing of that document.
type ClaimHandle struct {
	DocumentID string
	WorkType   string
	Token      string
}

// Store is the persistence contract the core consumes. It does not itself
// choose an engine; Postgres (internal/store's *PostgresStore) is the one
// concrete implementation shipped with this worker.
type Store interface {
	// Work queue support.
	CountNeedingAnalysis(ctx context.Context, filter model.WorkFilter) (uint64, error)
	GetNeedingAnalysis(ctx context.Context, filter model.WorkFilter, limit int, cursor string) ([]model.Document, error)
	Claim(ctx context.Context, docID string, filter model.WorkFilter) (*ClaimHandle, error)
	Complete(ctx context.Context, handle *ClaimHandle) error
	ReleaseClaim(ctx context.Context, handle *ClaimHandle) error

	// Document/version access.
	GetDocument(ctx context.Context, docID string) (*model.Document, error)
	GetCurrentVersion(ctx context.Context, docID string) (*model.Version, error)
	UpdateVersionMimeType(ctx context.Context, versionID int64, mime string) error
	SetVersionPageCount(ctx context.Context, versionID int64, n int) error

	// Page persistence.
	SavePage(ctx context.Context, page *model.Page) (int64, error)
	DeletePages(ctx context.Context, docID string, versionID int64) error
	CountPages(ctx context.Context, docID string, versionID int64) (int, error)
	GetPage(ctx context.Context, pageID int64) (*model.Page, error)
	GetPagesForVersion(ctx context.Context, docID string, versionID int64) ([]model.Page, error)
	GetPagesNeedingOCR(ctx context.Context, limit int, retryIntervalHours int) ([]model.Page, error)
	AreAllPagesComplete(ctx context.Context, docID string, versionID int64) (bool, error)

	// OCR result rows.
	StorePageOcrResult(ctx context.Context, r *model.PageOcrResult) error
	FindOcrResultByImageHash(ctx context.Context, imageHash string, backends []string) (*model.PageOcrResult, error)

	// Finalization and completion tracking.
	FinalizeDocument(ctx context.Context, docID string, versionID int64) error
	GetCombinedPageText(ctx context.Context, docID string, versionID int64) (*string, error)
	StoreAnalysisResultForDocument(ctx context.Context, docID string, versionID int64, annotationType, subtype string, data *string, onFailure bool) error
	HasCompletion(ctx context.Context, docID string, versionID int64, annotationType string) (bool, error)

	// Annotator framework support.
	GetDocumentsNeedingAnnotation(ctx context.Context, annotationType string, annotatorVersion int, retryIntervalHours int, limit int) ([]model.Document, error)
	UpdateDocumentSynopsis(ctx context.Context, docID string, synopsis string) error
	UpdateDocumentEstimatedDate(ctx context.Context, docID string, date time.Time, source string) error
	ReplaceDocumentEntities(ctx context.Context, docID string, entities []model.DocumentEntity) error
	UpdateDocumentMetadataURLs(ctx context.Context, docID string, urls []string) error

	// Path migration (legacy stored_path backfill to the deterministic layout).
	CountLegacyFilePaths(ctx context.Context) (uint64, error)
	GetLegacyFilePathVersions(ctx context.Context, limit int, cursor int64) ([]model.Version, error)
	ClearVersionFilePathsBatch(ctx context.Context, versionIDs []int64) (int, error)

	BackfillAnalysisCompletions(ctx context.Context, annotationType string) (int, error)
	FinalizePendingDocuments(ctx context.Context) (int, error)

	Close() error
}
