package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adverant/nexus/docpipeline/internal/model"
)

func TestItemIDForPageFormatsDocAndPageNumber(t *testing.T) {
	assert.Equal(t, "doc-1:p3", model.ItemIDForPage("doc-1", 3))
}

func TestPageItemIDMatchesItemIDForPage(t *testing.T) {
	p := model.Page{DocumentID: "doc-2", PageNumber: 7}
	assert.Equal(t, model.ItemIDForPage("doc-2", 7), p.ItemID())
}
