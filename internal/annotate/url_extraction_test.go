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

func TestUrlExtractionDedupsAndStripsTrailingPunctuation(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "memo"}, model.Version{})

	text := "See https://example.com/a for details. Also https://example.com/a and https://example.com/b."
	a := annotate.NewUrlExtractionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{ID: docID, Text: text})
	require.NoError(t, err)
	require.True(t, out.IsData())

	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID, Text: text}, out))
	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)

	urls, ok := doc.Metadata["urls"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"https://example.com/a", "https://example.com/b"}, urls)
}

func TestUrlExtractionNoResultWithoutURLs(t *testing.T) {
	a := annotate.NewUrlExtractionAnnotator(storetest.New())
	out, err := a.Annotate(context.Background(), annotate.Document{Text: "no links in this text"})
	require.NoError(t, err)
	assert.True(t, out.IsNoResult())
}
