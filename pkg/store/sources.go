package store

import (
	"context"
	"fmt"
	"time"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// ImportSource is a row from the import_sources table: one registered
// ingestor with its current URL and last availability check.
type ImportSource struct {
	IngestorID  string
	Src         therapy.SourceName
	Description string
	SourceURL   string
	License     string
	LastCheck   *int64
	LastStatus  *int
	LastError   *string
	UpdatedAt   int64
}

// SourceInfo summarizes one ingested source for listing endpoints.
type SourceInfo struct {
	Src         therapy.SourceName `json:"source"`
	Version     string             `json:"version"`
	RecordCount int                `json:"record_count"`
	IngestedAt  int64              `json:"ingested_at,omitempty"`
}

// Seedable is the subset of the ingestor contract the store needs for
// seeding import_sources rows.
type Seedable interface {
	ID() string
	Source() therapy.SourceName
	Description() string
	DefaultURL() string
	License() string
}

// SeedImportSources inserts default rows for each ingestor. Existing rows
// are left untouched so manual URL overrides survive restarts.
func (s *Store) SeedImportSources(ctx context.Context, ingestors []Seedable) error {
	const q = `INSERT OR IGNORE INTO import_sources
		(ingestor_id, src_name, description, source_url, license, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now().Unix()
	for _, ing := range ingestors {
		if _, err := s.db.ExecContext(ctx, q, ing.ID(), string(ing.Source()), ing.Description(), ing.DefaultURL(), ing.License(), now); err != nil {
			return fmt.Errorf("seed %s: %w", ing.ID(), err)
		}
	}
	return nil
}

// GetSourceURL returns the current source URL for an ingestor.
func (s *Store) GetSourceURL(ctx context.Context, ingestorID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `SELECT source_url FROM import_sources WHERE ingestor_id = ?`, ingestorID).Scan(&url)
	if err != nil {
		return "", fmt.Errorf("get url for %s: %w", ingestorID, err)
	}
	return url, nil
}

// SetSourceURL overrides the source URL for an ingestor.
func (s *Store) SetSourceURL(ctx context.Context, ingestorID, url string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE import_sources SET source_url = ?, updated_at = ? WHERE ingestor_id = ?`,
		url, time.Now().Unix(), ingestorID,
	)
	if err != nil {
		return fmt.Errorf("set url for %s: %w", ingestorID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingestor %s not found in import_sources", ingestorID)
	}
	return nil
}

// UpdateCheck persists the result of an availability probe.
func (s *Store) UpdateCheck(ctx context.Context, ingestorID string, status int, checkErr string) error {
	var errPtr *string
	if checkErr != "" {
		errPtr = &checkErr
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE import_sources SET last_check = ?, last_status = ?, last_error = ? WHERE ingestor_id = ?`,
		time.Now().Unix(), status, errPtr, ingestorID,
	)
	if err != nil {
		return fmt.Errorf("update check for %s: %w", ingestorID, err)
	}
	return nil
}

// ListImportSources returns all rows ordered by ingestor ID.
func (s *Store) ListImportSources(ctx context.Context) ([]ImportSource, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ingestor_id, src_name, description, source_url, license,
		last_check, last_status, last_error, updated_at
		FROM import_sources ORDER BY ingestor_id`)
	if err != nil {
		return nil, fmt.Errorf("list import sources: %w", err)
	}
	defer rows.Close()

	var sources []ImportSource
	for rows.Next() {
		var src ImportSource
		var name string
		if err := rows.Scan(&src.IngestorID, &name, &src.Description, &src.SourceURL,
			&src.License, &src.LastCheck, &src.LastStatus, &src.LastError, &src.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan import source: %w", err)
		}
		src.Src = therapy.SourceName(name)
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// ListSources returns ingestion metadata for every source with records.
func (s *Store) ListSources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT src_name, version, record_count, COALESCE(ingested_at, 0) FROM source_meta ORDER BY src_name`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var infos []SourceInfo
	for rows.Next() {
		var info SourceInfo
		var name string
		if err := rows.Scan(&name, &info.Version, &info.RecordCount, &info.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan source meta: %w", err)
		}
		info.Src = therapy.SourceName(name)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
