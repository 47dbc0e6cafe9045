package stages

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docpipeline/internal/backend"
	"github.com/adverant/nexus/docpipeline/internal/config"
	"github.com/adverant/nexus/docpipeline/internal/errdefs"
	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// OCRStage runs the configured OCR backend cascade over every page the store
// reports as awaiting OCR (whether or not its native text layer is usable),
// dedups identical rendered images via image hash, and finalizes documents
// once every page reaches a terminal state.
type OCRStage struct {
	st       store.Store
	registry *backend.Registry
	entries  []config.OcrEntry
	tools    *pdfTools

	documentsDir       string
	workers            int
	retryIntervalHours int
	log                *logging.Logger
}

func NewOCRStage(st store.Store, registry *backend.Registry, entries []config.OcrEntry, documentsDir, pdfinfoPath, pdftotextPath, pdftoppmPath string, workers, retryIntervalHours int, log *logging.Logger) *OCRStage {
	if log == nil {
		log = logging.NewNop()
	}
	return &OCRStage{
		st:                 st,
		registry:           registry,
		entries:            entries,
		tools:              newPdfTools(pdfinfoPath, pdftotextPath, pdftoppmPath),
		documentsDir:       documentsDir,
		workers:            workers,
		retryIntervalHours: retryIntervalHours,
		log:                log,
	}
}

func (s *OCRStage) Name() string { return "ocr" }

// IsDeferred reports true iff the first entry's primary backend resolves to
// a remote API, matching "the stage is deferred iff the primary backend in
// the first entry is a remote API".
func (s *OCRStage) IsDeferred() bool {
	if len(s.entries) == 0 || len(s.entries[0].Names) == 0 {
		return false
	}
	primary := s.entries[0].Names[0]
	if b, ok := s.registry.Get("ocr:" + strings.ToLower(primary)); ok {
		return b.IsDeferred()
	}
	return false
}

func (s *OCRStage) Count(ctx context.Context) (uint64, error) {
	pages, err := s.st.GetPagesNeedingOCR(ctx, 1<<30, s.retryIntervalHours)
	if err != nil {
		return 0, err
	}
	return uint64(len(pages)), nil
}

func (s *OCRStage) RunChunk(ctx context.Context, chunkSize int, remainingLimit uint64, events chan<- pipeline.Event) (pipeline.ChunkResult, error) {
	limit := chunkSize
	if remainingLimit > 0 && int(remainingLimit) < limit {
		limit = int(remainingLimit)
	}

	pages, err := s.st.GetPagesNeedingOCR(ctx, limit, s.retryIntervalHours)
	if err != nil {
		return pipeline.ChunkResult{}, err
	}
	if len(pages) == 0 {
		return pipeline.ChunkResult{HasMore: false}, nil
	}

	var (
		mu     sync.Mutex
		result pipeline.ChunkResult
	)
	finalizeCandidates := map[string]int64{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, page := range pages {
		page := page
		g.Go(func() error {
			outcome, docID, versionID := s.processPage(gctx, page, events)
			mu.Lock()
			switch outcome {
			case outcomeSucceeded:
				result.Succeeded++
			case outcomeFailed:
				result.Failed++
			case outcomeSkipped:
				result.Skipped++
			}
			finalizeCandidates[docID] = versionID
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for docID, versionID := range finalizeCandidates {
		s.maybeFinalize(ctx, docID, versionID, events)
	}

	result.HasMore = len(pages) == limit
	return result, nil
}

func (s *OCRStage) processPage(ctx context.Context, page model.Page, events chan<- pipeline.Event) (itemOutcome, string, int64) {
	itemID := model.ItemIDForPage(page.DocumentID, page.PageNumber)
	pipeline.Emit(ctx, events, pipeline.ItemStarted(s.Name(), itemID, ""))

	doc, err := s.st.GetDocument(ctx, page.DocumentID)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed, page.DocumentID, page.VersionID
	}
	version, err := s.st.GetCurrentVersion(ctx, page.DocumentID)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed, page.DocumentID, page.VersionID
	}

	path := store.ResolvePath(s.documentsDir, derefOr(version.StoredPath, ""), version.ContentHash, version.MimeType, doc.SourceURL, doc.Title)

	imagePath, cleanup, err := s.renderPageImage(ctx, version.MimeType, path, page.PageNumber)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed, page.DocumentID, page.VersionID
	}
	defer cleanup()

	data, err := os.ReadFile(imagePath)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed, page.DocumentID, page.VersionID
	}
	imageHash := store.HashImageBytes(data, page.PageNumber)

	var candidates []backend.AnalysisResult
	anySucceeded := false
	for _, entry := range s.entries {
		res, ok := s.runEntry(ctx, page, imagePath, imageHash, entry)
		if ok {
			candidates = append(candidates, res)
			anySucceeded = true
		}
	}

	nativeText := derefOr(page.ExtractedText, "")
	finalText, improved := chooseFinalText(candidates, nativeText)

	var status model.PageStatus
	if !anySucceeded {
		status = model.PageFailed
		finalText = nativeText
	} else {
		status = model.PageOcrComplete
	}

	updated := page
	updated.FinalText = &finalText
	updated.OcrStatus = status
	if _, err := s.st.SavePage(ctx, &updated); err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed, page.DocumentID, page.VersionID
	}

	if status == model.PageFailed {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, errdefs.NewAnalysisFailed("ocr", itemID, "all backends failed", nil)))
		return outcomeFailed, page.DocumentID, page.VersionID
	}

	detail := "ocr_complete"
	if improved {
		detail = "improved"
	}
	pipeline.Emit(ctx, events, pipeline.ItemCompleted(s.Name(), itemID, detail))
	return outcomeSucceeded, page.DocumentID, page.VersionID
}

// runEntry resolves entry (a single backend or a fallback chain) against
// the page, reusing a prior result by image hash when one exists for any
// name in the entry.
func (s *OCRStage) runEntry(ctx context.Context, page model.Page, imagePath, imageHash string, entry config.OcrEntry) (backend.AnalysisResult, bool) {
	if reused, err := s.st.FindOcrResultByImageHash(ctx, imageHash, entry.Names); err == nil && reused != nil {
		_ = s.st.StorePageOcrResult(ctx, &model.PageOcrResult{
			PageID:       page.ID,
			Backend:      reused.Backend,
			Text:         reused.Text,
			Model:        reused.Model,
			Confidence:   reused.Confidence,
			ProcessingMs: reused.ProcessingMs,
			ImageHash:    &imageHash,
		})
		return backend.AnalysisResult{Text: reused.Text, Model: derefOr(reused.Model, ""), Confidence: reused.Confidence}, true
	}

	for _, name := range entry.Names {
		b, ok := s.registry.Get("ocr:" + strings.ToLower(name))
		if !ok {
			continue
		}
		if !b.IsAvailable(ctx) {
			continue
		}
		res, err := b.AnalyzeImage(ctx, imagePath)
		if errdefs.Is(err, errdefs.CodeIO) {
			res, err = b.AnalyzeImage(ctx, imagePath)
		}
		if err != nil {
			if errdefs.Is(err, errdefs.CodeBackendNotAvailable) {
				continue
			}
			// AnalysisFailed/RateLimited/Io (Io after its one retry above):
			// fall back to the next name in the chain.
			continue
		}
		_ = s.st.StorePageOcrResult(ctx, &model.PageOcrResult{
			PageID:       page.ID,
			Backend:      b.BackendID(),
			Text:         res.Text,
			Model:        strPtr(res.Model),
			Confidence:   res.Confidence,
			ProcessingMs: &res.ProcessingMs,
			ImageHash:    &imageHash,
		})
		return res, true
	}
	return backend.AnalysisResult{}, false
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\n\r\f\v", r) {
			n++
		}
	}
	return n
}

// chooseFinalText picks the largest non-whitespace character count among
// the native-extracted text and every backend candidate, so a backend
// result only wins when it actually beats the native extraction. improved
// reports whether the winning backend result exceeds the native count by
// more than 20%; ties and a native win both report improved=false.
func chooseFinalText(candidates []backend.AnalysisResult, nativeText string) (string, bool) {
	pdfChars := nonWhitespaceLen(nativeText)
	best := nativeText
	bestChars := pdfChars
	bestIsNative := true
	for _, c := range candidates {
		n := nonWhitespaceLen(c.Text)
		if n > bestChars {
			bestChars = n
			best = c.Text
			bestIsNative = false
		}
	}
	improved := !bestIsNative && float64(bestChars) > float64(pdfChars)*1.2
	return best, improved
}

// renderPageImage returns a path to the page's rasterized (or native)
// image and a cleanup func for any temp file it created.
func (s *OCRStage) renderPageImage(ctx context.Context, mimeType, path string, pageNumber int) (string, func(), error) {
	if mimeType == "application/pdf" {
		dir, err := os.MkdirTemp("", "docpipeline-ocr-*")
		if err != nil {
			return "", func() {}, err
		}
		rendered, err := s.tools.rasterizePage(ctx, path, pageNumber, dir)
		if err != nil {
			os.RemoveAll(dir)
			return "", func() {}, err
		}
		return rendered, func() { os.RemoveAll(dir) }, nil
	}
	return path, func() {}, nil
}

func (s *OCRStage) maybeFinalize(ctx context.Context, docID string, versionID int64, events chan<- pipeline.Event) {
	complete, err := s.st.AreAllPagesComplete(ctx, docID, versionID)
	if err != nil || !complete {
		return
	}
	if err := s.st.FinalizeDocument(ctx, docID, versionID); err != nil {
		s.log.Warn("finalize failed", "document_id", docID, "error", err)
		return
	}
	if err := s.st.StoreAnalysisResultForDocument(ctx, docID, versionID, "ocr", "pipeline", nil, false); err != nil {
		s.log.Warn("store completion failed", "document_id", docID, "error", err)
	}
	pipeline.Emit(ctx, events, pipeline.DocumentFinalized(docID, versionID))
}
