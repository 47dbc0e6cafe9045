package archive_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/archive"
	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/storetest"
)

func TestClientUploadReturnsArtifactID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "docpipeline", r.FormValue("source_service"))
		assert.Equal(t, "doc-1", r.FormValue("source_id"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		body, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "file bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"artifact":{"id":"artifact-123","download_url":"https://example.com/artifact-123"}}`))
	}))
	defer server.Close()

	client := archive.NewClient(server.URL)
	id, err := client.Upload(context.Background(), []byte("file bytes"), "memo.txt", "text/plain", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "artifact-123", id)
}

func TestClientUploadRejectsEmptyBuffer(t *testing.T) {
	client := archive.NewClient("http://unused")
	_, err := client.Upload(context.Background(), nil, "memo.txt", "text/plain", "doc-1")
	require.Error(t, err)
}

func TestClientUploadPropagatesServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := archive.NewClient(server.URL)
	_, err := client.Upload(context.Background(), []byte("bytes"), "memo.txt", "text/plain", "doc-1")
	require.Error(t, err)
}

func TestArchiverArchivesFinalizedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(path, []byte("archived contents"), 0o644))

	var uploadedSourceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		uploadedSourceID = r.FormValue("source_id")
		_, _ = w.Write([]byte(`{"success":true,"artifact":{"id":"artifact-9"}}`))
	}))
	defer server.Close()

	st := storetest.New()
	storedPath := path
	docID, _ := st.PutDocument(
		model.Document{Title: "memo", SourceURL: "https://example.com/memo.txt"},
		model.Version{MimeType: "text/plain", StoredPath: &storedPath},
	)

	client := archive.NewClient(server.URL)
	archiver := archive.NewArchiver(st, client, dir, nil)

	events := make(chan pipeline.Event, 1)
	events <- pipeline.DocumentFinalized(docID, 0)
	close(events)

	archiver.Watch(context.Background(), events)
	assert.Equal(t, docID, uploadedSourceID)
}
