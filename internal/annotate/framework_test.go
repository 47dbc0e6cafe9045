package annotate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/annotate"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/storetest"
)

// fakeAnnotator is a minimal in-test Annotator whose behavior is driven by
// closures, so the framework's control flow can be exercised without
// depending on any of the built-in annotators' own logic.
type fakeAnnotator struct {
	annotationType string
	version        int
	deferred       bool
	available      bool
	annotate       func(ctx context.Context, doc annotate.Document) (annotate.Output, error)
	postRecord     func(ctx context.Context, doc annotate.Document, out annotate.Output) error
}

func (f *fakeAnnotator) AnnotationType() string               { return f.annotationType }
func (f *fakeAnnotator) DisplayName() string                  { return f.annotationType }
func (f *fakeAnnotator) Version() int                         { return f.version }
func (f *fakeAnnotator) IsDeferred() bool                     { return f.deferred }
func (f *fakeAnnotator) IsAvailable(ctx context.Context) bool { return f.available }
func (f *fakeAnnotator) AvailabilityHint() string             { return "unavailable" }

func (f *fakeAnnotator) Annotate(ctx context.Context, doc annotate.Document) (annotate.Output, error) {
	return f.annotate(ctx, doc)
}

func (f *fakeAnnotator) PostRecord(ctx context.Context, doc annotate.Document, out annotate.Output) error {
	if f.postRecord == nil {
		return nil
	}
	return f.postRecord(ctx, doc, out)
}

func TestStageRunChunkSkipsDocumentsWithoutFinalText(t *testing.T) {
	st := storetest.New()
	docID, versionID := st.PutDocument(model.Document{Title: "untouched", Status: model.DocumentOcrComplete}, model.Version{MimeType: "application/pdf"})
	_, err := st.SavePage(context.Background(), &model.Page{DocumentID: docID, VersionID: versionID, PageNumber: 1, OcrStatus: model.PagePending})
	require.NoError(t, err)

	var annotateCalls int
	fa := &fakeAnnotator{
		annotationType: "probe",
		version:        1,
		available:      true,
		annotate: func(ctx context.Context, doc annotate.Document) (annotate.Output, error) {
			annotateCalls++
			return annotate.DataOutput("x"), nil
		},
	}

	stage := annotate.NewStage(st, fa, 12, 4, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), result.Skipped)
	assert.Equal(t, uint64(0), result.Succeeded)
	assert.Zero(t, annotateCalls)
}

func TestStageRunChunkRecordsCompletionAndPostRecord(t *testing.T) {
	st := storetest.New()
	docID, versionID := st.PutDocument(model.Document{Title: "doc", Status: model.DocumentOcrComplete}, model.Version{MimeType: "application/pdf"})
	text := "hello world"
	_, err := st.SavePage(context.Background(), &model.Page{DocumentID: docID, VersionID: versionID, PageNumber: 1, FinalText: &text, OcrStatus: model.PageOcrComplete})
	require.NoError(t, err)

	var postRecordCalled bool
	fa := &fakeAnnotator{
		annotationType: "probe",
		version:        1,
		available:      true,
		annotate: func(ctx context.Context, doc annotate.Document) (annotate.Output, error) {
			assert.Equal(t, "hello world", doc.Text)
			return annotate.DataOutput("summary"), nil
		},
		postRecord: func(ctx context.Context, doc annotate.Document, out annotate.Output) error {
			postRecordCalled = true
			assert.True(t, out.IsData())
			assert.Equal(t, "summary", out.Data())
			return nil
		},
	}

	stage := annotate.NewStage(st, fa, 12, 4, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), result.Succeeded)
	assert.True(t, postRecordCalled)

	has, err := st.HasCompletion(context.Background(), docID, versionID, "probe")
	require.NoError(t, err)
	assert.True(t, has)

	// A second chunk sees no remaining work: the completion row makes the
	// document no longer "needing annotation".
	result, err = stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), result.Succeeded+result.Failed+result.Skipped)
}

func TestStageRunChunkSkipsWhenAnnotatorUnavailable(t *testing.T) {
	st := storetest.New()
	docID, versionID := st.PutDocument(model.Document{Title: "doc", Status: model.DocumentOcrComplete}, model.Version{MimeType: "application/pdf"})
	text := "hello"
	_, err := st.SavePage(context.Background(), &model.Page{DocumentID: docID, VersionID: versionID, PageNumber: 1, FinalText: &text, OcrStatus: model.PageOcrComplete})
	require.NoError(t, err)

	fa := &fakeAnnotator{annotationType: "probe", version: 1, available: false}
	stage := annotate.NewStage(st, fa, 12, 4, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.False(t, result.HasMore)
	assert.Equal(t, uint64(0), result.Succeeded)
}
