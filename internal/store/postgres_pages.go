package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/adverant/nexus/docpipeline/internal/model"
)

type pageRow struct {
	ID            int64          `db:"id"`
	DocumentID    string         `db:"document_id"`
	VersionID     int64          `db:"version_id"`
	PageNumber    int            `db:"page_number"`
	ExtractedText sql.NullString `db:"extracted_text"`
	OcrText       sql.NullString `db:"ocr_text"`
	FinalText     sql.NullString `db:"final_text"`
	OcrStatus     string         `db:"ocr_status"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r pageRow) toModel() model.Page {
	p := model.Page{
		ID:         r.ID,
		DocumentID: r.DocumentID,
		VersionID:  r.VersionID,
		PageNumber: r.PageNumber,
		OcrStatus:  model.PageStatus(r.OcrStatus),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ExtractedText.Valid {
		p.ExtractedText = &r.ExtractedText.String
	}
	if r.OcrText.Valid {
		p.OcrText = &r.OcrText.String
	}
	if r.FinalText.Valid {
		p.FinalText = &r.FinalText.String
	}
	return p
}

// SavePage upserts on (version_id, page_number), matching the invariant that
// pages are unique within a version.
func (s *PostgresStore) SavePage(ctx context.Context, page *model.Page) (int64, error) {
	query := s.db.Rebind(`
		INSERT INTO docpipeline.pages
			(document_id, version_id, page_number, extracted_text, ocr_text, final_text, ocr_status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, now())
		ON CONFLICT (version_id, page_number) DO UPDATE SET
			extracted_text = EXCLUDED.extracted_text,
			ocr_text = EXCLUDED.ocr_text,
			final_text = EXCLUDED.final_text,
			ocr_status = EXCLUDED.ocr_status,
			updated_at = now()
		RETURNING id`)
	var id int64
	err := s.db.GetContext(ctx, &id, query,
		page.DocumentID, page.VersionID, page.PageNumber,
		page.ExtractedText, page.OcrText, page.FinalText, string(page.OcrStatus))
	if err != nil {
		return 0, fmt.Errorf("save page %s p%d: %w", page.DocumentID, page.PageNumber, err)
	}
	return id, nil
}

func (s *PostgresStore) DeletePages(ctx context.Context, docID string, versionID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM docpipeline.pages WHERE document_id = ? AND version_id = ?`), docID, versionID)
	return err
}

func (s *PostgresStore) CountPages(ctx context.Context, docID string, versionID int64) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT count(*) FROM docpipeline.pages WHERE document_id = ? AND version_id = ?`), docID, versionID)
	return n, err
}

func (s *PostgresStore) GetPage(ctx context.Context, pageID int64) (*model.Page, error) {
	var row pageRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM docpipeline.pages WHERE id = ?`), pageID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p := row.toModel()
	return &p, nil
}

func (s *PostgresStore) GetPagesForVersion(ctx context.Context, docID string, versionID int64) ([]model.Page, error) {
	var rows []pageRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(
		`SELECT * FROM docpipeline.pages WHERE document_id = ? AND version_id = ? ORDER BY page_number ASC`),
		docID, versionID)
	if err != nil {
		return nil, err
	}
	pages := make([]model.Page, 0, len(rows))
	for _, r := range rows {
		pages = append(pages, r.toModel())
	}
	return pages, nil
}

// GetPagesNeedingOCR selects pages whose ocr_status is text_extracted, or
// failed with the retry cooldown elapsed, restricted to documents whose
// current version mime type indicates image-bearing content.
func (s *PostgresStore) GetPagesNeedingOCR(ctx context.Context, limit int, retryIntervalHours int) ([]model.Page, error) {
	query := s.db.Rebind(`
		SELECT p.* FROM docpipeline.pages p
		JOIN docpipeline.versions v ON v.id = p.version_id
		JOIN docpipeline.documents d ON d.id = p.document_id AND d.current_version_id = v.id
		WHERE (p.ocr_status = 'text_extracted'
		       OR (p.ocr_status = 'failed' AND p.updated_at < now() - (? || ' hours')::interval))
		  AND (v.mime_type = 'application/pdf' OR v.mime_type LIKE 'image/%')
		ORDER BY p.id ASC
		LIMIT ?`)
	var rows []pageRow
	if err := s.db.SelectContext(ctx, &rows, query, retryIntervalHours, limit); err != nil {
		return nil, fmt.Errorf("get pages needing ocr: %w", err)
	}
	pages := make([]model.Page, 0, len(rows))
	for _, r := range rows {
		pages = append(pages, r.toModel())
	}
	return pages, nil
}

func (s *PostgresStore) AreAllPagesComplete(ctx context.Context, docID string, versionID int64) (bool, error) {
	var incomplete int
	err := s.db.GetContext(ctx, &incomplete, s.db.Rebind(`
		SELECT count(*) FROM docpipeline.pages
		WHERE document_id = ? AND version_id = ?
		  AND (ocr_status NOT IN ('ocr_complete', 'failed') OR final_text IS NULL)`),
		docID, versionID)
	if err != nil {
		return false, err
	}
	return incomplete == 0, nil
}

// --- OCR result rows -----------------------------------------------------

func (s *PostgresStore) StorePageOcrResult(ctx context.Context, r *model.PageOcrResult) error {
	query := s.db.Rebind(`
		INSERT INTO docpipeline.page_ocr_results
			(page_id, backend, text, model, confidence, processing_ms, image_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (page_id, backend) DO UPDATE SET
			text = EXCLUDED.text,
			model = EXCLUDED.model,
			confidence = EXCLUDED.confidence,
			processing_ms = EXCLUDED.processing_ms,
			image_hash = EXCLUDED.image_hash`)

	var confidence *float64
	if r.Confidence != nil {
		c := sanitizeConfidence(*r.Confidence)
		confidence = &c
	}
	_, err := s.db.ExecContext(ctx, query, r.PageID, r.Backend, r.Text, r.Model, confidence, r.ProcessingMs, r.ImageHash)
	if err != nil {
		return fmt.Errorf("store ocr result page=%d backend=%s: %w", r.PageID, r.Backend, err)
	}
	return nil
}

// FindOcrResultByImageHash looks for an existing result matching the image
// hash under any of the given backend names, used to dedup OCR output
// across pages that render to byte-identical images.
func (s *PostgresStore) FindOcrResultByImageHash(ctx context.Context, imageHash string, backends []string) (*model.PageOcrResult, error) {
	if imageHash == "" || len(backends) == 0 {
		return nil, ErrNotFound
	}
	placeholders := make([]string, len(backends))
	args := make([]interface{}, 0, len(backends)+1)
	args = append(args, imageHash)
	for i, b := range backends {
		placeholders[i] = "?"
		args = append(args, b)
	}
	query := s.db.Rebind(fmt.Sprintf(`
		SELECT * FROM docpipeline.page_ocr_results
		WHERE image_hash = ? AND backend IN (%s)
		ORDER BY created_at DESC LIMIT 1`, strings.Join(placeholders, ",")))

	var row ocrResultRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m := row.toModel()
	return &m, nil
}

type ocrResultRow struct {
	ID           int64           `db:"id"`
	PageID       int64           `db:"page_id"`
	Backend      string          `db:"backend"`
	Text         string          `db:"text"`
	Model        sql.NullString  `db:"model"`
	Confidence   sql.NullFloat64 `db:"confidence"`
	ProcessingMs sql.NullInt64   `db:"processing_ms"`
	ImageHash    sql.NullString  `db:"image_hash"`
	CreatedAt    time.Time       `db:"created_at"`
}

func (r ocrResultRow) toModel() model.PageOcrResult {
	m := model.PageOcrResult{
		ID:        r.ID,
		PageID:    r.PageID,
		Backend:   r.Backend,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
	if r.Model.Valid {
		m.Model = &r.Model.String
	}
	if r.Confidence.Valid {
		m.Confidence = &r.Confidence.Float64
	}
	if r.ProcessingMs.Valid {
		m.ProcessingMs = &r.ProcessingMs.Int64
	}
	if r.ImageHash.Valid {
		m.ImageHash = &r.ImageHash.String
	}
	return m
}
