package annotate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/annotate"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/storetest"
)

func TestDateDetectionPrefersTitleOverSourceURL(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "Report dated 2019-03-14"}, model.Version{})

	a := annotate.NewDateDetectionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{ID: docID, Title: "Report dated 2019-03-14", SourceURL: "https://example.com/2021-01-01/file.pdf"})
	require.NoError(t, err)
	require.True(t, out.IsData())

	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID}, out))
	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, doc.EstimatedDate)
	assert.Equal(t, 2019, doc.EstimatedDate.Year())
	assert.Equal(t, time.March, doc.EstimatedDate.Month())
	require.NotNil(t, doc.EstimatedDateSrc)
	assert.Equal(t, "title", *doc.EstimatedDateSrc)
}

func TestDateDetectionFallsBackToSourceURL(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "no date here"}, model.Version{})

	a := annotate.NewDateDetectionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{ID: docID, Title: "no date here", SourceURL: "https://example.com/archive/2021-01-01/file.pdf"})
	require.NoError(t, err)
	require.True(t, out.IsData())
	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID}, out))

	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, doc.EstimatedDateSrc)
	assert.Equal(t, "source_url", *doc.EstimatedDateSrc)
}

func TestDateDetectionNoResultWhenNothingMatches(t *testing.T) {
	a := annotate.NewDateDetectionAnnotator(storetest.New())
	out, err := a.Annotate(context.Background(), annotate.Document{Title: "untitled", SourceURL: "https://example.com/file"})
	require.NoError(t, err)
	assert.True(t, out.IsNoResult())
}

func TestDateDetectionFallsBackToAcquiredAtWhenTitleURLAndServerDateMiss(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "untitled scan"}, model.Version{})
	acquiredAt := time.Date(2022, time.June, 5, 0, 0, 0, 0, time.UTC)

	a := annotate.NewDateDetectionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{
		ID: docID, Title: "untitled scan", SourceURL: "https://example.com/file", AcquiredAt: acquiredAt,
	})
	require.NoError(t, err)
	require.True(t, out.IsData())
	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID}, out))

	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, doc.EstimatedDate)
	assert.True(t, acquiredAt.Equal(*doc.EstimatedDate))
	require.NotNil(t, doc.EstimatedDateSrc)
	assert.Equal(t, "acquired_at", *doc.EstimatedDateSrc)
}

func TestDateDetectionPrefersServerDateOverAcquiredAt(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "untitled scan"}, model.Version{})
	serverDate := time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	acquiredAt := time.Date(2022, time.June, 5, 0, 0, 0, 0, time.UTC)

	a := annotate.NewDateDetectionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{
		ID: docID, Title: "untitled scan", ServerDate: &serverDate, AcquiredAt: acquiredAt,
	})
	require.NoError(t, err)
	require.True(t, out.IsData())
	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID}, out))

	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, doc.EstimatedDateSrc)
	assert.Equal(t, "server_date", *doc.EstimatedDateSrc)
}
