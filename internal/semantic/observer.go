package semantic

import (
	"context"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Indexer consumes DocumentFinalized events off a run's event channel and
// embeds+upserts each finalized document's combined text into Qdrant. It is
// a downstream observer, not a pipeline.Stage: indexing failures never
// block or retry the run that produced the event.
type Indexer struct {
	st       store.Store
	embedder *EmbeddingClient
	sink     *qdrantSink
	log      *logging.Logger
}

// NewIndexer connects to Qdrant eagerly; callers should only construct one
// when config.SemanticIndexingEnabled() is true.
func NewIndexer(st store.Store, qdrantAddr, collection, voyageAPIKey string, log *logging.Logger) (*Indexer, error) {
	if log == nil {
		log = logging.NewNop()
	}
	sink, err := newQdrantSink(qdrantAddr, collection)
	if err != nil {
		return nil, err
	}
	return &Indexer{
		st:       st,
		embedder: NewEmbeddingClient(voyageAPIKey),
		sink:     sink,
		log:      log,
	}, nil
}

func (idx *Indexer) Close() error { return idx.sink.Close() }

// Watch blocks consuming events until ctx is cancelled or events closes,
// indexing on every KindDocumentFinalized event and ignoring the rest.
func (idx *Indexer) Watch(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Kind != pipeline.KindDocumentFinalized {
				continue
			}
			if err := idx.indexDocument(ctx, e.DocID, e.VersionID); err != nil {
				idx.log.Warn("semantic indexing failed", "document_id", e.DocID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (idx *Indexer) indexDocument(ctx context.Context, docID string, versionID int64) error {
	text, err := idx.st.GetCombinedPageText(ctx, docID, versionID)
	if err != nil {
		return err
	}
	if text == nil || *text == "" {
		return nil
	}

	vector, err := idx.embedder.Generate(ctx, *text)
	if err != nil {
		return err
	}

	doc, err := idx.st.GetDocument(ctx, docID)
	if err != nil {
		return err
	}

	return idx.sink.upsert(ctx, docID, vector, buildPayload(doc))
}

func buildPayload(doc *model.Document) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		"document_id": stringValue(doc.ID),
		"title":       stringValue(doc.Title),
		"source_url":  stringValue(doc.SourceURL),
	}
	if doc.Synopsis != nil {
		payload["synopsis"] = stringValue(*doc.Synopsis)
	}
	return payload
}
