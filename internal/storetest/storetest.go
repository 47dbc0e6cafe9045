// Package storetest provides an in-memory store.Store fake for unit tests,
// sized to exercise the work-queue/claim, page-lifecycle and annotation
// completion semantics without a real Postgres instance.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

// Store is a goroutine-safe in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	documents   map[string]*model.Document
	versions    map[int64]*model.Version
	pages       map[int64]*model.Page
	ocrResults  []*model.PageOcrResult
	completions []*model.AnalysisCompletion
	entities    map[string][]model.DocumentEntity
	claims      map[string]*store.ClaimHandle

	nextVersionID int64
	nextPageID    int64
	nextOcrID     int64
}

func New() *Store {
	return &Store{
		documents:     map[string]*model.Document{},
		versions:      map[int64]*model.Version{},
		pages:         map[int64]*model.Page{},
		entities:      map[string][]model.DocumentEntity{},
		claims:        map[string]*store.ClaimHandle{},
		nextVersionID: 1,
		nextPageID:    1,
		nextOcrID:     1,
	}
}

var _ store.Store = (*Store)(nil)

// PutDocument seeds a document+current version for a test, returning the
// version ID assigned.
func (s *Store) PutDocument(doc model.Document, version model.Version) (string, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	vid := s.nextVersionID
	s.nextVersionID++
	version.ID = vid
	version.DocumentID = doc.ID
	doc.CurrentVersionID = vid

	s.documents[doc.ID] = &doc
	s.versions[vid] = &version
	return doc.ID, vid
}

func (s *Store) CountNeedingAnalysis(ctx context.Context, filter model.WorkFilter) (uint64, error) {
	docs, err := s.GetNeedingAnalysis(ctx, filter, 1<<30, "")
	if err != nil {
		return 0, err
	}
	return uint64(len(docs)), nil
}

func (s *Store) GetNeedingAnalysis(ctx context.Context, filter model.WorkFilter, limit int, cursor string) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.documents))
	for id := range s.documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []model.Document
	for _, id := range ids {
		if id <= cursor {
			continue
		}
		doc := s.documents[id]
		if filter.WorkType == "text_extraction" && doc.Status != model.DocumentDownloaded {
			continue
		}
		out = append(out, *doc)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Claim(ctx context.Context, docID string, filter model.WorkFilter) (*store.ClaimHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := docID + ":" + filter.WorkType
	if _, held := s.claims[key]; held {
		return nil, errdefs.ErrAlreadyClaimed
	}
	handle := &store.ClaimHandle{DocumentID: docID, WorkType: filter.WorkType, Token: uuid.NewString()}
	s.claims[key] = handle
	return handle, nil
}

func (s *Store) Complete(ctx context.Context, handle *store.ClaimHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, handle.DocumentID+":"+handle.WorkType)
	return nil
}

func (s *Store) ReleaseClaim(ctx context.Context, handle *store.ClaimHandle) error {
	return s.Complete(ctx, handle)
}

func (s *Store) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *Store) GetCurrentVersion(ctx context.Context, docID string) (*model.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return nil, store.ErrNotFound
	}
	version, ok := s.versions[doc.CurrentVersionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *version
	return &cp, nil
}

func (s *Store) UpdateVersionMimeType(ctx context.Context, versionID int64, mime string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return store.ErrNotFound
	}
	v.MimeType = mime
	return nil
}

func (s *Store) SetVersionPageCount(ctx context.Context, versionID int64, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[versionID]
	if !ok {
		return store.ErrNotFound
	}
	v.PageCount = &n
	return nil
}

func (s *Store) SavePage(ctx context.Context, page *model.Page) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pages {
		if p.DocumentID == page.DocumentID && p.VersionID == page.VersionID && p.PageNumber == page.PageNumber {
			page.ID = p.ID
			*p = *page
			return p.ID, nil
		}
	}
	id := s.nextPageID
	s.nextPageID++
	page.ID = id
	cp := *page
	s.pages[id] = &cp
	return id, nil
}

func (s *Store) DeletePages(ctx context.Context, docID string, versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.pages {
		if p.DocumentID == docID && p.VersionID == versionID {
			delete(s.pages, id)
		}
	}
	return nil
}

func (s *Store) CountPages(ctx context.Context, docID string, versionID int64) (int, error) {
	pages, err := s.GetPagesForVersion(ctx, docID, versionID)
	return len(pages), err
}

func (s *Store) GetPage(ctx context.Context, pageID int64) (*model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[pageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetPagesForVersion(ctx context.Context, docID string, versionID int64) ([]model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Page
	for _, p := range s.pages {
		if p.DocumentID == docID && p.VersionID == versionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (s *Store) GetPagesNeedingOCR(ctx context.Context, limit int, retryIntervalHours int) ([]model.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Page
	for _, p := range s.pages {
		if p.OcrStatus == model.PageTextExtracted {
			out = append(out, *p)
			if len(out) >= limit {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AreAllPagesComplete(ctx context.Context, docID string, versionID int64) (bool, error) {
	pages, err := s.GetPagesForVersion(ctx, docID, versionID)
	if err != nil {
		return false, err
	}
	if len(pages) == 0 {
		return false, nil
	}
	for _, p := range pages {
		if p.OcrStatus != model.PageOcrComplete && p.OcrStatus != model.PageFailed {
			return false, nil
		}
	}
	return true, nil
}

func (s *Store) StorePageOcrResult(ctx context.Context, r *model.PageOcrResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextOcrID
	s.nextOcrID++
	cp := *r
	cp.ID = id
	s.ocrResults = append(s.ocrResults, &cp)
	return nil
}

func (s *Store) FindOcrResultByImageHash(ctx context.Context, imageHash string, backends []string) (*model.PageOcrResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allowed := map[string]bool{}
	for _, b := range backends {
		allowed[b] = true
	}
	for _, r := range s.ocrResults {
		if r.ImageHash != nil && *r.ImageHash == imageHash && allowed[r.Backend] {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) FinalizeDocument(ctx context.Context, docID string, versionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = model.DocumentOcrComplete
	return nil
}

func (s *Store) GetCombinedPageText(ctx context.Context, docID string, versionID int64) (*string, error) {
	pages, err := s.GetPagesForVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}
	var parts []string
	for _, p := range pages {
		if p.FinalText == nil {
			return nil, nil
		}
		parts = append(parts, *p.FinalText)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	combined := ""
	for i, part := range parts {
		if i > 0 {
			combined += "\n\n"
		}
		combined += part
	}
	return &combined, nil
}

func (s *Store) StoreAnalysisResultForDocument(ctx context.Context, docID string, versionID int64, annotationType, subtype string, data *string, onFailure bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completions = append(s.completions, &model.AnalysisCompletion{
		DocumentID:     docID,
		VersionID:      versionID,
		AnnotationType: annotationType,
		Subtype:        subtype,
		Data:           data,
		OnFailure:      onFailure,
	})
	return nil
}

func (s *Store) HasCompletion(ctx context.Context, docID string, versionID int64, annotationType string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.completions {
		if c.DocumentID == docID && c.VersionID == versionID && c.AnnotationType == annotationType {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) GetDocumentsNeedingAnnotation(ctx context.Context, annotationType string, annotatorVersion int, retryIntervalHours int, limit int) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Document
	for _, doc := range s.documents {
		if doc.Status != model.DocumentOcrComplete && doc.Status != model.DocumentIndexed {
			continue
		}
		done := false
		for _, c := range s.completions {
			if c.DocumentID == doc.ID && c.VersionID == doc.CurrentVersionID && c.AnnotationType == annotationType && !c.OnFailure {
				done = true
				break
			}
		}
		if done {
			continue
		}
		out = append(out, *doc)
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateDocumentSynopsis(ctx context.Context, docID string, synopsis string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return store.ErrNotFound
	}
	doc.Synopsis = &synopsis
	return nil
}

func (s *Store) UpdateDocumentEstimatedDate(ctx context.Context, docID string, date time.Time, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return store.ErrNotFound
	}
	doc.EstimatedDate = &date
	doc.EstimatedDateSrc = &source
	return nil
}

func (s *Store) ReplaceDocumentEntities(ctx context.Context, docID string, entities []model.DocumentEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[docID] = entities
	return nil
}

func (s *Store) UpdateDocumentMetadataURLs(ctx context.Context, docID string, urls []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[docID]
	if !ok {
		return store.ErrNotFound
	}
	if doc.Metadata == nil {
		doc.Metadata = map[string]interface{}{}
	}
	doc.Metadata["urls"] = urls
	return nil
}

func (s *Store) CountLegacyFilePaths(ctx context.Context) (uint64, error) { return 0, nil }

func (s *Store) GetLegacyFilePathVersions(ctx context.Context, limit int, cursor int64) ([]model.Version, error) {
	return nil, nil
}

func (s *Store) ClearVersionFilePathsBatch(ctx context.Context, versionIDs []int64) (int, error) {
	return 0, nil
}

func (s *Store) BackfillAnalysisCompletions(ctx context.Context, annotationType string) (int, error) {
	return 0, nil
}

func (s *Store) FinalizePendingDocuments(ctx context.Context) (int, error) { return 0, nil }

func (s *Store) Close() error { return nil }

// Entities exposes a test's view of the rows a PostRecord call would have
// written, since the fake doesn't have a real document_entities table to
// query.
func (s *Store) Entities(docID string) []model.DocumentEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.DocumentEntity(nil), s.entities[docID]...)
}
