package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/adverant/nexus/docpipeline/internal/model"
)

// FinalizeDocument transitions the document to ocr_complete. It does not
// store a full-document text; GetCombinedPageText builds that from the page
// final_texts when it is read. Idempotent: re-finalizing sets the same
// status again.
func (s *PostgresStore) FinalizeDocument(ctx context.Context, docID string, versionID int64) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE docpipeline.documents
		SET status = 'ocr_complete', updated_at = now()
		WHERE id = ? AND current_version_id = ?`), docID, versionID)
	if err != nil {
		return fmt.Errorf("finalize %s: %w", docID, err)
	}
	return nil
}

// GetCombinedPageText concatenates final_texts for a version's pages, in
// page order, with blank-line separators. Returns nil if any page still
// lacks a final_text (the caller should not have reached this point in that
// case, but callers outside the finalize path — e.g. annotators — may call
// this defensively).
func (s *PostgresStore) GetCombinedPageText(ctx context.Context, docID string, versionID int64) (*string, error) {
	pages, err := s.GetPagesForVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.FinalText == nil {
			return nil, nil
		}
		parts = append(parts, *p.FinalText)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	combined := strings.Join(parts, "\n\n")
	return &combined, nil
}

func (s *PostgresStore) StoreAnalysisResultForDocument(ctx context.Context, docID string, versionID int64, annotationType, subtype string, data *string, onFailure bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO docpipeline.analysis_completions (document_id, version_id, annotation_type, subtype, data, on_failure)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id, version_id, annotation_type, on_failure) DO UPDATE SET
			subtype = EXCLUDED.subtype, data = EXCLUDED.data, created_at = now()`),
		docID, versionID, annotationType, subtype, data, onFailure)
	if err != nil {
		return fmt.Errorf("store analysis result %s/%s: %w", docID, annotationType, err)
	}
	return nil
}

func (s *PostgresStore) HasCompletion(ctx context.Context, docID string, versionID int64, annotationType string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`
		SELECT count(*) FROM docpipeline.analysis_completions
		WHERE document_id = ? AND version_id = ? AND annotation_type = ? AND on_failure = false`),
		docID, versionID, annotationType)
	return n > 0, err
}

// --- Annotator framework support -----------------------------------------

// GetDocumentsNeedingAnnotation returns documents finalized (ocr_complete or
// later) whose current version lacks a completion row for
// (annotationType, annotatorVersion), and whose last failure (if any) is
// older than the retry cooldown.
func (s *PostgresStore) GetDocumentsNeedingAnnotation(ctx context.Context, annotationType string, annotatorVersion int, retryIntervalHours int, limit int) ([]model.Document, error) {
	subtype := fmt.Sprintf("v%d", annotatorVersion)
	query := s.db.Rebind(`
		SELECT d.* FROM docpipeline.documents d
		WHERE d.status IN ('ocr_complete', 'indexed')
		  AND NOT EXISTS (
		      SELECT 1 FROM docpipeline.analysis_completions ac
		      WHERE ac.document_id = d.id AND ac.version_id = d.current_version_id
		        AND ac.annotation_type = ? AND ac.subtype = ? AND ac.on_failure = false
		  )
		  AND NOT EXISTS (
		      SELECT 1 FROM docpipeline.analysis_completions ac
		      WHERE ac.document_id = d.id AND ac.version_id = d.current_version_id
		        AND ac.annotation_type = ? AND ac.on_failure = true
		        AND ac.created_at > now() - (? || ' hours')::interval
		  )
		ORDER BY d.id ASC
		LIMIT ?`)
	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, query, annotationType, subtype, annotationType, retryIntervalHours, limit)
	if err != nil {
		return nil, fmt.Errorf("get documents needing annotation %s: %w", annotationType, err)
	}
	docs := make([]model.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.toModel())
	}
	return docs, nil
}

func (s *PostgresStore) UpdateDocumentSynopsis(ctx context.Context, docID string, synopsis string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE docpipeline.documents SET synopsis = ?, updated_at = now() WHERE id = ?`), synopsis, docID)
	return err
}

func (s *PostgresStore) UpdateDocumentEstimatedDate(ctx context.Context, docID string, date time.Time, source string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE docpipeline.documents SET estimated_date = ?, estimated_date_source = ?, updated_at = now() WHERE id = ?`),
		date, source, docID)
	return err
}

func (s *PostgresStore) ReplaceDocumentEntities(ctx context.Context, docID string, entities []model.DocumentEntity) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(
		`DELETE FROM docpipeline.document_entities WHERE document_id = ?`), docID); err != nil {
		return err
	}
	for _, e := range entities {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO docpipeline.document_entities (document_id, text, normalized_text, entity_type)
			VALUES (?, ?, ?, ?)`), docID, e.Text, e.NormalizedText, e.EntityType); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateDocumentMetadataURLs(ctx context.Context, docID string, urls []string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE docpipeline.documents
		SET metadata = jsonb_set(coalesce(metadata, '{}'::jsonb), '{urls}', to_jsonb(?::text[]), true), updated_at = now()
		WHERE id = ?`), pq.Array(urls), docID)
	return err
}

// --- Path migration (legacy stored_path backfill to the deterministic layout) ---

func (s *PostgresStore) CountLegacyFilePaths(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM docpipeline.versions WHERE stored_path IS NOT NULL`)
	return n, err
}

func (s *PostgresStore) GetLegacyFilePathVersions(ctx context.Context, limit int, cursor int64) ([]model.Version, error) {
	query := s.db.Rebind(`
		SELECT * FROM docpipeline.versions
		WHERE stored_path IS NOT NULL AND id > ?
		ORDER BY id ASC LIMIT ?`)
	var rows []versionRow
	if err := s.db.SelectContext(ctx, &rows, query, cursor, limit); err != nil {
		return nil, err
	}
	versions := make([]model.Version, 0, len(rows))
	for _, r := range rows {
		versions = append(versions, r.toModel())
	}
	return versions, nil
}

// ClearVersionFilePathsBatch clears stored_path for versions whose stored
// path equals their deterministically computed path, leaving mismatched
// rows untouched per the "do not infer intent" design note.
func (s *PostgresStore) ClearVersionFilePathsBatch(ctx context.Context, versionIDs []int64) (int, error) {
	cleared := 0
	for _, id := range versionIDs {
		var v versionRow
		err := s.db.GetContext(ctx, &v, s.db.Rebind(`SELECT * FROM docpipeline.versions WHERE id = ?`), id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return cleared, err
		}
		if !v.StoredPath.Valid {
			continue
		}
		var title, sourceURL string
		_ = s.db.GetContext(ctx, &title, s.db.Rebind(`SELECT title FROM docpipeline.documents WHERE id = ?`), v.DocumentID)
		_ = s.db.GetContext(ctx, &sourceURL, s.db.Rebind(`SELECT source_url FROM docpipeline.documents WHERE id = ?`), v.DocumentID)
		computed := ComputeStoragePath("", v.ContentHash, v.MimeType, sourceURL, title)
		_, computedRel := splitDocumentsDir(computed)
		_, storedRel := splitDocumentsDir(v.StoredPath.String)
		if computedRel != storedRel {
			continue
		}
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(
			`UPDATE docpipeline.versions SET stored_path = NULL WHERE id = ?`), id); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// splitDocumentsDir strips a leading documents-dir-shaped prefix so two
// paths computed against different documents_dir roots can still be
// compared by their shard/filename suffix.
func splitDocumentsDir(path string) (dir, rest string) {
	idx := strings.LastIndex(path, string('/'))
	if idx < 0 {
		return "", path
	}
	idx2 := strings.LastIndex(path[:idx], string('/'))
	if idx2 < 0 {
		return "", path
	}
	return path[:idx2], path[idx2+1:]
}

func (s *PostgresStore) BackfillAnalysisCompletions(ctx context.Context, annotationType string) (int, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO docpipeline.analysis_completions (document_id, version_id, annotation_type, subtype, on_failure)
		SELECT d.id, d.current_version_id, ?, 'backfill', false
		FROM docpipeline.documents d
		WHERE d.status = 'ocr_complete'
		ON CONFLICT (document_id, version_id, annotation_type, on_failure) DO NOTHING`), annotationType)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) FinalizePendingDocuments(ctx context.Context) (int, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT d.id FROM docpipeline.documents d
		WHERE d.status = 'text_extracted'
		  AND NOT EXISTS (
		      SELECT 1 FROM docpipeline.pages p
		      WHERE p.document_id = d.id AND p.version_id = d.current_version_id
		        AND (p.ocr_status NOT IN ('ocr_complete', 'failed') OR p.final_text IS NULL)
		  )`)
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, id := range ids {
		doc, err := s.GetDocument(ctx, id)
		if err != nil {
			continue
		}
		if err := s.FinalizeDocument(ctx, id, doc.CurrentVersionID); err == nil {
			finalized++
		}
	}
	return finalized, nil
}
