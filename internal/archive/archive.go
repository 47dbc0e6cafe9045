// Package archive is the optional post-finalization observer that uploads a
// finalized document's stored file to permanent object storage via a
// multipart HTTP upload, mirroring the write side of the internal/semantic
// observer but for the original bytes rather than their embedding.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/logging"
	"github.com/adverant/nexus/docpipeline/internal/pipeline"
	"github.com/adverant/nexus/docpipeline/internal/store"
)

const uploadTimeout = 300 * time.Second

// Client uploads files to a permanent artifact store over HTTP multipart.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, httpClient: &http.Client{Timeout: uploadTimeout}}
}

type uploadResponse struct {
	Success  bool `json:"success"`
	Artifact struct {
		ID          string `json:"id"`
		DownloadURL string `json:"download_url"`
	} `json:"artifact"`
	Error string `json:"error"`
}

// Upload sends file to the artifact store's multipart upload endpoint and
// returns the artifact's permanent ID.
func (c *Client) Upload(ctx context.Context, data []byte, filename, mimeType, sourceID string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("archive: empty file buffer")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("archive: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("archive: write file data: %w", err)
	}
	if err := writer.WriteField("source_service", "docpipeline"); err != nil {
		return "", err
	}
	if err := writer.WriteField("source_id", sourceID); err != nil {
		return "", err
	}
	if err := writer.WriteField("ttl_days", "36500"); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("archive: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/files/upload", &body)
	if err != nil {
		return "", fmt.Errorf("archive: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("archive: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("archive: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("archive: upload failed with HTTP %d: %s", resp.StatusCode, respBody)
	}

	var parsed uploadResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("archive: parse response: %w", err)
	}
	if !parsed.Success || parsed.Artifact.ID == "" {
		return "", fmt.Errorf("archive: upload returned no artifact id: %s", parsed.Error)
	}
	return parsed.Artifact.ID, nil
}

// Archiver consumes DocumentFinalized events and uploads each finalized
// document's stored file once. Like internal/semantic's Indexer, failures
// here never affect the run that produced the event.
type Archiver struct {
	st           store.Store
	client       *Client
	documentsDir string
	log          *logging.Logger
}

func NewArchiver(st store.Store, client *Client, documentsDir string, log *logging.Logger) *Archiver {
	if log == nil {
		log = logging.NewNop()
	}
	return &Archiver{st: st, client: client, documentsDir: documentsDir, log: log}
}

func (a *Archiver) Watch(ctx context.Context, events <-chan pipeline.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			if e.Kind != pipeline.KindDocumentFinalized {
				continue
			}
			if err := a.archiveDocument(ctx, e.DocID); err != nil {
				a.log.Warn("artifact archiving failed", "document_id", e.DocID, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (a *Archiver) archiveDocument(ctx context.Context, docID string) error {
	doc, err := a.st.GetDocument(ctx, docID)
	if err != nil {
		return err
	}
	version, err := a.st.GetCurrentVersion(ctx, docID)
	if err != nil {
		return err
	}

	path := store.ResolvePath(a.documentsDir, derefOr(version.StoredPath), version.ContentHash, version.MimeType, doc.SourceURL, doc.Title)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", path, err)
	}

	filename := derefOr(version.OriginalFilename)
	if filename == "" {
		filename = doc.Title
	}

	_, err = a.client.Upload(ctx, data, filename, version.MimeType, docID)
	return err
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
