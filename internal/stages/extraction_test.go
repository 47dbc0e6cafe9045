package stages_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adverant/nexus/docpipeline/internal/model"
	"github.com/adverant/nexus/docpipeline/internal/stages"
	"github.com/adverant/nexus/docpipeline/internal/storetest"
)

// writeMockScript creates an executable shell script in dir with the given
// content (a "#!/bin/sh" header is prepended automatically). It returns the
// path, standing in for a real pdfinfo/pdftotext/pdftoppm binary.
func writeMockScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+content), 0o600)
	require.NoError(t, err, "writing mock script %s", name)
	require.NoError(t, os.Chmod(path, 0o755), "chmod mock script %s", name)
	return path
}

func TestTextExtractionStageExtractsSingleFileDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memo.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello from the archive"), 0o644))

	st := storetest.New()
	storedPath := path
	docID, _ := st.PutDocument(
		model.Document{Title: "memo", Status: model.DocumentDownloaded},
		model.Version{MimeType: "text/plain", StoredPath: &storedPath},
	)

	stage := stages.NewTextExtractionStage(st, dir, "", "", "", 2, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Succeeded)

	doc, err := st.GetDocument(context.Background(), docID)
	require.NoError(t, err)
	text, err := st.GetCombinedPageText(context.Background(), docID, doc.CurrentVersionID)
	require.NoError(t, err)
	require.NotNil(t, text)
	assert.Equal(t, "hello from the archive", *text)
}

func TestTextExtractionStageSkipsMissingFile(t *testing.T) {
	st := storetest.New()
	storedPath := "/nonexistent/path/does-not-exist.txt"
	st.PutDocument(
		model.Document{Title: "gone", Status: model.DocumentDownloaded},
		model.Version{MimeType: "text/plain", StoredPath: &storedPath},
	)

	stage := stages.NewTextExtractionStage(st, t.TempDir(), "", "", "", 2, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Skipped)
	assert.Equal(t, uint64(0), result.Succeeded)
}

func TestTextExtractionStageTreatsZeroCachedPageCountAsSinglePage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scan.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	pdftotext := writeMockScript(t, dir, "fake-pdftotext", "echo 'recovered page text'\n")

	st := storetest.New()
	storedPath := path
	zero := 0
	docID, versionID := st.PutDocument(
		model.Document{Title: "scan", Status: model.DocumentDownloaded},
		model.Version{MimeType: "application/pdf", StoredPath: &storedPath, PageCount: &zero},
	)

	stage := stages.NewTextExtractionStage(st, dir, "", pdftotext, "", 2, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Succeeded)

	version, err := st.GetCurrentVersion(context.Background(), docID)
	require.NoError(t, err)
	require.NotNil(t, version.PageCount)
	assert.Equal(t, 1, *version.PageCount, "a cached page_count of 0 must be treated as a single page")

	pages, err := st.GetPagesForVersion(context.Background(), docID, versionID)
	require.NoError(t, err)
	require.Len(t, pages, 1, "page_count=0 must still produce exactly one page")
	assert.Equal(t, 1, pages[0].PageNumber)
	require.NotNil(t, pages[0].ExtractedText)
	assert.Equal(t, "recovered page text\n", *pages[0].ExtractedText)
}

func TestTextExtractionStageSkipsAlreadyClaimedDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("body"), 0o644))

	st := storetest.New()
	storedPath := path
	docID, _ := st.PutDocument(
		model.Document{Title: "doc", Status: model.DocumentDownloaded},
		model.Version{MimeType: "text/plain", StoredPath: &storedPath},
	)

	_, err := st.Claim(context.Background(), docID, model.WorkFilter{WorkType: "text_extraction"})
	require.NoError(t, err)

	stage := stages.NewTextExtractionStage(st, dir, "", "", "", 2, nil)
	result, err := stage.RunChunk(context.Background(), 10, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.Skipped)
}
