package annotate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Stage applies one Annotator to every document whose current version
// lacks a completion row for (annotation_type, annotator_version). It is a
// pipeline.Stage so it composes with the Runner alongside text extraction
// and OCR.
type Stage struct {
	st                 store.Store
	annotator          Annotator
	retryIntervalHours int
	workers            int
	log                *logging.Logger
}

func NewStage(st store.Store, a Annotator, retryIntervalHours, workers int, log *logging.Logger) *Stage {
	if log == nil {
		log = logging.NewNop()
	}
	return &Stage{st: st, annotator: a, retryIntervalHours: retryIntervalHours, workers: workers, log: log}
}

func (s *Stage) Name() string     { return s.annotator.AnnotationType() }
func (s *Stage) IsDeferred() bool { return s.annotator.IsDeferred() }

func (s *Stage) Count(ctx context.Context) (uint64, error) {
	docs, err := s.st.GetDocumentsNeedingAnnotation(ctx, s.annotator.AnnotationType(), s.annotator.Version(), s.retryIntervalHours, 1<<30)
	if err != nil {
		return 0, err
	}
	return uint64(len(docs)), nil
}

func (s *Stage) RunChunk(ctx context.Context, chunkSize int, remainingLimit uint64, events chan<- pipeline.Event) (pipeline.ChunkResult, error) {
	limit := chunkSize
	if remainingLimit > 0 && int(remainingLimit) < limit {
		limit = int(remainingLimit)
	}

	if !s.annotator.IsAvailable(ctx) {
		s.log.Warn("annotator unavailable, skipping chunk", "annotation_type", s.Name(), "hint", s.annotator.AvailabilityHint())
		return pipeline.ChunkResult{HasMore: false}, nil
	}

	docs, err := s.st.GetDocumentsNeedingAnnotation(ctx, s.annotator.AnnotationType(), s.annotator.Version(), s.retryIntervalHours, limit)
	if err != nil {
		return pipeline.ChunkResult{}, err
	}
	if len(docs) == 0 {
		return pipeline.ChunkResult{HasMore: false}, nil
	}

	var (
		mu     sync.Mutex
		result pipeline.ChunkResult
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

	result.HasMore = len(docs) == limit
	return result, nil
}

type itemOutcome int

const (
	outcomeSucceeded itemOutcome = iota
	outcomeFailed
	outcomeSkipped
)

func (s *Stage) processDocument(ctx context.Context, doc model.Document, events chan<- pipeline.Event) itemOutcome {
	itemID := doc.ID
	pipeline.Emit(ctx, events, pipeline.ItemStarted(s.Name(), itemID, doc.Title))

	text, err := s.st.GetCombinedPageText(ctx, doc.ID, doc.CurrentVersionID)
	if err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}
	if text == nil || *text == "" {
		pipeline.Emit(ctx, events, pipeline.ItemSkipped(s.Name(), itemID))
		return outcomeSkipped
	}

	var serverDate *string
	var acquiredAt time.Time
	if version, err := s.st.GetCurrentVersion(ctx, doc.ID); err == nil {
		if version.ServerDate != nil {
			formatted := version.ServerDate.Format(time.RFC3339)
			serverDate = &formatted
		}
		acquiredAt = version.AcquiredAt
	}

	input := Document{
		ID:         doc.ID,
		SourceURL:  doc.SourceURL,
		Title:      doc.Title,
		VersionID:  doc.CurrentVersionID,
		ServerDate: serverDate,
		AcquiredAt: acquiredAt,
		Text:       *text,
	}

	output, err := s.annotator.Annotate(ctx, input)
	if err != nil {
		_ = s.st.StoreAnalysisResultForDocument(ctx, doc.ID, doc.CurrentVersionID, s.Name(), "", nil, true)
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}

	if output.IsSkipped() {
		pipeline.Emit(ctx, events, pipeline.ItemSkipped(s.Name(), itemID))
		return outcomeSkipped
	}

	var data *string
	if output.IsData() {
		d := output.Data()
		data = &d
	}
	if err := s.st.StoreAnalysisResultForDocument(ctx, doc.ID, doc.CurrentVersionID, s.Name(), "", data, false); err != nil {
		pipeline.Emit(ctx, events, pipeline.ItemFailed(s.Name(), itemID, err))
		return outcomeFailed
	}

	if err := s.annotator.PostRecord(ctx, input, output); err != nil {
		s.log.Warn("post-record side effect failed", "annotation_type", s.Name(), "document_id", doc.ID, "error", err)
	}

	pipeline.Emit(ctx, events, pipeline.ItemCompleted(s.Name(), itemID, ""))
	return outcomeSucceeded
}
