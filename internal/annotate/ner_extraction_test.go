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

func TestNerExtractionFindsOrganizationsAndCaseNumbers(t *testing.T) {
	st := storetest.New()
	docID, _ := st.PutDocument(model.Document{Title: "memo"}, model.Version{})

	text := "The Federal Bureau of Investigation opened case No. 2021-FB-004821 after a referral from Acme Corp."
	a := annotate.NewNerExtractionAnnotator(st)
	out, err := a.Annotate(context.Background(), annotate.Document{ID: docID, Text: text})
	require.NoError(t, err)
	require.True(t, out.IsData())

	require.NoError(t, a.PostRecord(context.Background(), annotate.Document{ID: docID, Text: text}, out))
	entities := st.Entities(docID)
	require.NotEmpty(t, entities)

	var kinds []string
	for _, e := range entities {
		kinds = append(kinds, e.EntityType)
	}
	assert.Contains(t, kinds, "organization")
	assert.Contains(t, kinds, "case_number")
}

func TestNerExtractionNoResultOnPlainText(t *testing.T) {
	a := annotate.NewNerExtractionAnnotator(storetest.New())
	out, err := a.Annotate(context.Background(), annotate.Document{Text: "just some lowercase words with nothing capitalized really"})
	require.NoError(t, err)
	assert.True(t, out.IsNoResult())
}
