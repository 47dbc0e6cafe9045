package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/lib/pq"

	"github.com/adverant/nexus/docpipeline/internal/errdefs"
	"github.com/adverant/nexus/docpipeline/internal/model"
)

// claimStaleAfter bounds how long an unreleased claim blocks other workers,
// so a crashed worker can't wedge a document forever.
const claimStaleAfter = time.Hour

// PostgresStore implements Store against PostgreSQL via sqlx + lib/pq.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore opens a pooled connection and verifies connectivity.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// sanitizeConfidence rounds to 4 decimal places and clamps to [0,1] to avoid
// PostgreSQL NUMERIC precision errors on values like 0.9632000000000001.
func sanitizeConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return float64(int(c*10000+0.5)) / 10000
}

// --- Work queue support -----------------------------------------------

func (s *PostgresStore) CountNeedingAnalysis(ctx context.Context, filter model.WorkFilter) (uint64, error) {
	query, args := buildAnalysisFilterQuery("SELECT count(*) FROM docpipeline.documents d", filter)
	var n uint64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count needing analysis: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) GetNeedingAnalysis(ctx context.Context, filter model.WorkFilter, limit int, cursor string) ([]model.Document, error) {
	query, args := buildAnalysisFilterQuery("SELECT d.* FROM docpipeline.documents d", filter)
	if cursor != "" {
		query += " AND d.id > ?"
		args = append(args, cursor)
	}
	query += " ORDER BY d.id ASC LIMIT ?"
	args = append(args, limit)

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("get needing analysis: %w", err)
	}
	docs := make([]model.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.toModel())
	}
	return docs, nil
}

func buildAnalysisFilterQuery(base string, filter model.WorkFilter) (string, []interface{}) {
	query := base + `
		JOIN docpipeline.versions v ON v.id = d.current_version_id
		WHERE NOT EXISTS (
			SELECT 1 FROM docpipeline.analysis_completions ac
			WHERE ac.document_id = d.id AND ac.version_id = d.current_version_id
			  AND ac.annotation_type = ? AND ac.on_failure = false
		)
		AND NOT EXISTS (
			SELECT 1 FROM docpipeline.analysis_completions ac
			WHERE ac.document_id = d.id AND ac.version_id = d.current_version_id
			  AND ac.annotation_type = ? AND ac.on_failure = true
			  AND ac.created_at > now() - (? || ' hours')::interval
		)`
	args := []interface{}{filter.WorkType, filter.WorkType, filter.RetryIntervalHours}

	if filter.SourceID != nil {
		query += " AND d.source_id = ?"
		args = append(args, *filter.SourceID)
	}
	if filter.MimeType != nil {
		query += " AND v.mime_type = ?"
		args = append(args, *filter.MimeType)
	}
	return query, args
}

func (s *PostgresStore) Claim(ctx context.Context, docID string, filter model.WorkFilter) (*ClaimHandle, error) {
	token := uuid.New().String()
	query := s.db.Rebind(`
		INSERT INTO docpipeline.claims (document_id, work_type, token, claimed_at)
		VALUES (?, ?, ?, now())
		ON CONFLICT (document_id, work_type) DO UPDATE
			SET token = EXCLUDED.token, claimed_at = EXCLUDED.claimed_at
			WHERE docpipeline.claims.claimed_at < now() - ?::interval
		RETURNING token`)
	var won string
	err := s.db.GetContext(ctx, &won, query, docID, filter.WorkType, token, claimStaleAfter.String())
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", docID, errdefs.ErrAlreadyClaimed)
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", docID, err)
	}
	return &ClaimHandle{DocumentID: docID, WorkType: filter.WorkType, Token: won}, nil
}

func (s *PostgresStore) Complete(ctx context.Context, handle *ClaimHandle) error {
	return s.releaseClaimRow(ctx, handle)
}

func (s *PostgresStore) ReleaseClaim(ctx context.Context, handle *ClaimHandle) error {
	return s.releaseClaimRow(ctx, handle)
}

func (s *PostgresStore) releaseClaimRow(ctx context.Context, handle *ClaimHandle) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`DELETE FROM docpipeline.claims WHERE document_id = ? AND work_type = ? AND token = ?`),
		handle.DocumentID, handle.WorkType, handle.Token)
	return err
}

// --- Document / version access -----------------------------------------

type documentRow struct {
	ID                   string          `db:"id"`
	SourceID             string          `db:"source_id"`
	Title                string          `db:"title"`
	SourceURL            string          `db:"source_url"`
	Status               string          `db:"status"`
	Metadata             json.RawMessage `db:"metadata"`
	Tags                 pq.StringArray  `db:"tags"`
	Synopsis             sql.NullString  `db:"synopsis"`
	EstimatedDate        sql.NullTime    `db:"estimated_date"`
	EstimatedDateSource  sql.NullString  `db:"estimated_date_source"`
	DateConfidence       sql.NullFloat64 `db:"date_confidence"`
	CurrentVersionID     sql.NullInt64   `db:"current_version_id"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func (r documentRow) toModel() model.Document {
	d := model.Document{
		ID:        r.ID,
		SourceID:  r.SourceID,
		Title:     r.Title,
		SourceURL: r.SourceURL,
		Status:    model.DocumentStatus(r.Status),
		Tags:      []string(r.Tags),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	_ = json.Unmarshal(r.Metadata, &d.Metadata)
	if r.Synopsis.Valid {
		d.Synopsis = &r.Synopsis.String
	}
	if r.EstimatedDate.Valid {
		d.EstimatedDate = &r.EstimatedDate.Time
	}
	if r.EstimatedDateSource.Valid {
		d.EstimatedDateSrc = &r.EstimatedDateSource.String
	}
	if r.DateConfidence.Valid {
		d.DateConfidence = &r.DateConfidence.Float64
	}
	if r.CurrentVersionID.Valid {
		d.CurrentVersionID = r.CurrentVersionID.Int64
	}
	return d
}

func (s *PostgresStore) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT * FROM docpipeline.documents WHERE id = ?`), docID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	d := row.toModel()
	return &d, nil
}

type versionRow struct {
	ID               int64          `db:"id"`
	DocumentID       string         `db:"document_id"`
	ContentHash      string         `db:"content_hash"`
	SecondaryHash    sql.NullString `db:"secondary_hash"`
	MimeType         string         `db:"mime_type"`
	ByteSize         int64          `db:"byte_size"`
	StoredPath       sql.NullString `db:"stored_path"`
	AcquiredAt       time.Time      `db:"acquired_at"`
	OriginalFilename sql.NullString `db:"original_filename"`
	ServerDate       sql.NullTime   `db:"server_date"`
	PageCount        sql.NullInt64  `db:"page_count"`
}

func (r versionRow) toModel() model.Version {
	v := model.Version{
		ID:          r.ID,
		DocumentID:  r.DocumentID,
		ContentHash: r.ContentHash,
		MimeType:    r.MimeType,
		ByteSize:    r.ByteSize,
		AcquiredAt:  r.AcquiredAt,
	}
	if r.SecondaryHash.Valid {
		v.SecondaryHash = &r.SecondaryHash.String
	}
	if r.StoredPath.Valid {
		v.StoredPath = &r.StoredPath.String
	}
	if r.OriginalFilename.Valid {
		v.OriginalFilename = &r.OriginalFilename.String
	}
	if r.ServerDate.Valid {
		v.ServerDate = &r.ServerDate.Time
	}
	if r.PageCount.Valid {
		n := int(r.PageCount.Int64)
		v.PageCount = &n
	}
	return v
}

func (s *PostgresStore) GetCurrentVersion(ctx context.Context, docID string) (*model.Version, error) {
	var row versionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT v.* FROM docpipeline.versions v
		JOIN docpipeline.documents d ON d.current_version_id = v.id
		WHERE d.id = ?`), docID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current version for %s: %w", docID, err)
	}
	v := row.toModel()
	return &v, nil
}

func (s *PostgresStore) UpdateVersionMimeType(ctx context.Context, versionID int64, mime string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE docpipeline.versions SET mime_type = ? WHERE id = ?`), mime, versionID)
	return err
}

func (s *PostgresStore) SetVersionPageCount(ctx context.Context, versionID int64, n int) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE docpipeline.versions SET page_count = ? WHERE id = ?`), n, versionID)
	return err
}

