// Package stages implements the text extraction and OCR pipeline stages.
package stages

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/store"
	"github.com/adverant/nexus/docpipeline/internal/workqueue"
)

const mimeSniffBytes = 8192

// TextExtractionStage extracts native text from PDFs page-by-page, and
// whole-document text from any other supported mimetype. Not deferred: its
// dominant cost is local CPU (subprocess invocation), so it runs in a
// bounded worker pool.
type TextExtractionStage struct {
	st           store.Store
	queue        *workqueue.Queue
	tools        *pdfTools
	documentsDir string
	workers      int
	log          *logging.Logger

	mu     sync.Mutex
	cursor string
}

func NewTextExtractionStage(st store.Store, documentsDir, pdfinfoPath, pdftotextPath, pdftoppmPath string, workers int, log *logging.Logger) *TextExtractionStage {
	if log == nil {
		log = logging.NewNop()
	}
	return &TextExtractionStage{
		st:           st,
		queue:        workqueue.New(st, "text_extraction"),
		tools:        newPdfTools(pdfinfoPath, pdftotextPath, pdftoppmPath),
		documentsDir: documentsDir,
		workers:      workers,
		log:          log,
	}
}

func (s *TextExtractionStage) Name() string    { return "text_extraction" }
func (s *TextExtractionStage) IsDeferred() bool { return false }

func (s *TextExtractionStage) Count(ctx context.Context) (uint64, error) {
	return s.queue.Count(ctx, model.WorkFilter{RetryIntervalHours: 12})
}

func (s *TextExtractionStage) RunChunk(ctx context.Context, chunkSize int, remainingLimit uint64, events chan<- pipeline.Event) (pipeline.ChunkResult, error) {
	limit := chunkSize
	if remainingLimit > 0 && int(remainingLimit) < limit {
		limit = int(remainingLimit)
	}

	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	filter := model.WorkFilter{RetryIntervalHours: 12}
	docs, err := s.queue.FetchBatch(ctx, filter, limit, cursor)
	if err != nil {
		return pipeline.ChunkResult{}, err
	}
	if len(docs) == 0 {
		return pipeline.ChunkResult{HasMore: false}, nil
	}

	var (
		mu     sync.Mutex
		result pipeline.ChunkResult
		lastID string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			outcome := s.processDocument(gctx, doc, events)
			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
			case outcomeFailed:
				result.Failed++
			case outcomeSkipped:
				result.Skipped++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	lastID = docs[len(docs)-1].ID
	s.mu.Lock()
	s.cursor = lastID
	s.mu.Unlock()

	result.HasMore = len(docs) == limit
	return result, nil
}

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *TextExtractionStage) processDocument(ctx context.Context, doc model.Document, events chan<- pipeline.Event) itemOutcome {
	itemID := doc.ID
	version, err := s.st.GetCurrentVersion(ctx, doc.ID)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}

	path := store.ResolvePath(s.documentsDir, derefOr(version.StoredPath, ""), version.ContentHash, version.MimeType, doc.SourceURL, doc.Title)

	// 1. Inline MIME verification.
	if corrected, ok := s.verifyMimetype(path, version.MimeType); ok {
		if err := s.st.UpdateVersionMimeType(ctx, version.ID, corrected); err != nil {
			s.log.Warn("failed to persist corrected mime type", "document_id", doc.ID, "error", err)
		} else {
			version.MimeType = corrected
		}
	}

	// 2. File presence check.
	if _, err := os.Stat(path); err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemSkipped(s.Name(), itemID))
		return outcomeSkipped
	}

	// 3. Claim.
	filter := model.WorkFilter{RetryIntervalHours: 12}
	handle, err := s.queue.Claim(ctx, doc, filter)
	if err != nil {
		if errors.Is(err, errdefs.ErrAlreadyClaimed) {
			pipeline.Emit(ctx, events, pipeline.ItemSkipped(s.Name(), itemID))
			return outcomeSkipped
		}
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}

	pipeline.Emit(ctx, events, pipeline.ItemStarted(s.Name(), itemID, doc.Title))

	pageCount, err := s.extract(ctx, doc, version, path)
	if err != nil {
		_ = s.queue.Release(ctx, handle)
		if strings.Contains(err.Error(), "Unsupported file type") {
			pipeline.Emit(ctx, events, pipeline.ItemSkipped(s.Name(), itemID))
			return outcomeSkipped
		}
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}

	_ = s.queue.Complete(ctx, handle)
	pipeline.Emit(ctx, events, pipeline.ItemCompleted(s.Name(), itemID, itoaPages(pageCount)))
	return outcomeSucceeded
}

// extract dispatches to the PDF or single-page path and returns the page
// count produced.
func (s *TextExtractionStage) extract(ctx context.Context, doc model.Document, version *model.Version, path string) (int, error) {
	if version.MimeType == "application/pdf" {
		return s.extractPDF(ctx, doc, version, path)
	}
	return s.extractSingle(ctx, doc, version, path)
}

func (s *TextExtractionStage) extractPDF(ctx context.Context, doc model.Document, version *model.Version, path string) (int, error) {
	pageCount := 0
	if version.PageCount != nil {
		pageCount = *version.PageCount
	} else {
		n, err := s.tools.pageCount(ctx, path)
		if err != nil {
			return 0, err
		}
		pageCount = n
		if err := s.st.SetVersionPageCount(ctx, version.ID, pageCount); err != nil {
			s.log.Warn("failed to cache page count", "document_id", doc.ID, "error", err)
		}
	}

	// A cached or reported count of 0 still means one page to extract, not
	// zero: treat it as a single page so a malformed pdfinfo report never
	// silently drops the document.
	if pageCount == 0 {
		pageCount = 1
		if err := s.st.SetVersionPageCount(ctx, version.ID, pageCount); err != nil {
			s.log.Warn("failed to cache page count", "document_id", doc.ID, "error", err)
		}
	}

	if err := s.st.DeletePages(ctx, doc.ID, version.ID); err != nil {
		return 0, err
	}

	for page := 1; page <= pageCount; page++ {
		text, err := s.tools.extractPageText(ctx, path, page)
		if err != nil {
			return 0, err
		}
		p := &model.Page{
			DocumentID:    doc.ID,
			VersionID:     version.ID,
			PageNumber:    page,
			ExtractedText: &text,
			OcrStatus:     model.PageTextExtracted,
		}
		pageID, err := s.st.SavePage(ctx, p)
		if err != nil {
			return 0, err
		}
		confidence := 1.0
		if err := s.st.StorePageOcrResult(ctx, &model.PageOcrResult{
			PageID:     pageID,
			Backend:    "pdftotext",
			Text:       text,
			Confidence: &confidence,
		}); err != nil {
			s.log.Warn("failed to mirror pdftotext result", "document_id", doc.ID, "page", page, "error", err)
		}
	}
	return pageCount, nil
}

func (s *TextExtractionStage) extractSingle(ctx context.Context, doc model.Document, version *model.Version, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	text := string(data)

	if err := s.st.DeletePages(ctx, doc.ID, version.ID); err != nil {
		return 0, err
	}
	p := &model.Page{
		DocumentID: doc.ID,
		VersionID:  version.ID,
		PageNumber: 1,
		FinalText:  &text,
		OcrStatus:  model.PageOcrComplete,
	}
	if _, err := s.st.SavePage(ctx, p); err != nil {
		return 0, err
	}
	if err := s.st.SetVersionPageCount(ctx, version.ID, 1); err != nil {
		s.log.Warn("failed to cache page count", "document_id", doc.ID, "error", err)
	}
	if err := s.st.FinalizeDocument(ctx, doc.ID, version.ID); err != nil {
		return 0, err
	}
	return 1, nil
}

// verifyMimetype reads the first bytes of path and returns a corrected mime
// type if the detected major family differs from storedMime, or storedMime
// is the generic "application/octet-stream". It never narrows
// generic-to-specific within the same family.
func (s *TextExtractionStage) verifyMimetype(path, storedMime string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	buf := make([]byte, mimeSniffBytes)
	n, _ := f.Read(buf)
	detected := mimetype.Detect(buf[:n])
	detectedMime := detected.String()

	if storedMime == "application/octet-stream" || storedMime == "" {
		return detectedMime, detectedMime != storedMime
	}

	storedFamily := majorFamily(storedMime)
	detectedFamily := majorFamily(detectedMime)
	if storedFamily != detectedFamily {
		return detectedMime, true
	}
	return "", false
}

func majorFamily(mime string) string {
	if idx := strings.IndexByte(mime, '/'); idx >= 0 {
		return mime[:idx]
	}
	return mime
}

func derefOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func itoaPages(n int) string {
	return strconv.Itoa(n) + " pages"
}
