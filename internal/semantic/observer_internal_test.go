package semantic

import (
	"testing"

	"github.com/adverant/nexus/docpipeline/internal/model"
)

func TestBuildPayloadOmitsSynopsisWhenAbsent(t *testing.T) {
	doc := &model.Document{ID: "doc-1", Title: "memo", SourceURL: "https://example.com/memo.pdf"}
	payload := buildPayload(doc)

	if payload["document_id"].GetStringValue() != "doc-1" {
		t.Errorf("document_id = %q, want doc-1", payload["document_id"].GetStringValue())
	}
	if _, ok := payload["synopsis"]; ok {
		t.Error("expected no synopsis field when doc.Synopsis is nil")
	}
}

func TestBuildPayloadIncludesSynopsisWhenPresent(t *testing.T) {
	synopsis := "a short summary"
	doc := &model.Document{ID: "doc-2", Title: "memo", Synopsis: &synopsis}
	payload := buildPayload(doc)

	got, ok := payload["synopsis"]
	if !ok {
		t.Fatal("expected synopsis field to be present")
	}
	if got.GetStringValue() != synopsis {
		t.Errorf("synopsis = %q, want %q", got.GetStringValue(), synopsis)
	}
}
