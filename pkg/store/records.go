package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theranorm/theranorm/pkg/index"
	"github.com/theranorm/theranorm/pkg/therapy"
)

// ReplaceSourceRecords swaps in a source's full record set in one
// transaction. Every record is validated first; a malformed record rejects
// the whole batch so the ingestion collaborator hears about it.
func (s *Store) ReplaceSourceRecords(ctx context.Context, src therapy.SourceName, version string, records []*therapy.ConceptRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.Src != src {
			return fmt.Errorf("record %s tagged %s in batch for %s", r.ConceptID, r.Src, src)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM concept_records WHERE src_name = ?`, string(src)); err != nil {
		return fmt.Errorf("clear %s records: %w", src, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO concept_records (concept_id, src_name, record) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range records {
		blob, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", r.ConceptID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.ConceptID, string(r.Src), string(blob)); err != nil {
			return fmt.Errorf("insert %s: %w", r.ConceptID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO source_meta (src_name, version, record_count, ingested_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(src_name) DO UPDATE SET version = excluded.version,
		 record_count = excluded.record_count, ingested_at = excluded.ingested_at`,
		string(src), version, len(records), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("update source meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s records: %w", src, err)
	}
	s.logger.Info("source records replaced", "source", src, "count", len(records), "version", version)
	return nil
}

// ReplaceMerged atomically swaps the merged-record set, all merge refs, and
// the lookup index in one transaction. If anything fails the previous
// published set stays authoritative.
func (s *Store) ReplaceMerged(ctx context.Context, merged []*therapy.MergedRecord, mergeRefs map[string]string, rows []index.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM merged_records`); err != nil {
		return fmt.Errorf("clear merged records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lookup_refs`); err != nil {
		return fmt.Errorf("clear lookup refs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE concept_records SET merge_ref = ''`); err != nil {
		return fmt.Errorf("clear merge refs: %w", err)
	}

	insMerged, err := tx.PrepareContext(ctx, `INSERT INTO merged_records (concept_id, record) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare merged insert: %w", err)
	}
	defer insMerged.Close()
	for _, m := range merged {
		blob, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal merged %s: %w", m.ConceptID, err)
		}
		if _, err := insMerged.ExecContext(ctx, m.ConceptID, string(blob)); err != nil {
			return fmt.Errorf("insert merged %s: %w", m.ConceptID, err)
		}
	}

	setRef, err := tx.PrepareContext(ctx, `UPDATE concept_records SET merge_ref = ? WHERE concept_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare merge ref update: %w", err)
	}
	defer setRef.Close()
	for conceptID, groupID := range mergeRefs {
		if _, err := setRef.ExecContext(ctx, groupID, conceptID); err != nil {
			return fmt.Errorf("set merge ref %s: %w", conceptID, err)
		}
	}

	insRef, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO lookup_refs (term, ref_type, concept_id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ref insert: %w", err)
	}
	defer insRef.Close()
	for _, row := range rows {
		if _, err := insRef.ExecContext(ctx, row.Term, string(row.Type), row.ConceptID); err != nil {
			return fmt.Errorf("insert ref %q: %w", row.Term, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merged set: %w", err)
	}
	s.logger.Info("merged set replaced", "groups", len(merged), "refs", len(rows))
	return nil
}

// LoadRecords reads all concept records with their merge refs applied.
func (s *Store) LoadRecords(ctx context.Context) ([]*therapy.ConceptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record, merge_ref FROM concept_records ORDER BY concept_id`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var records []*therapy.ConceptRecord
	for rows.Next() {
		var blob, mergeRef string
		if err := rows.Scan(&blob, &mergeRef); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var r therapy.ConceptRecord
		if err := json.Unmarshal([]byte(blob), &r); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		r.MergeRef = mergeRef
		records = append(records, &r)
	}
	return records, rows.Err()
}

// LoadMerged reads all merged records.
func (s *Store) LoadMerged(ctx context.Context) ([]*therapy.MergedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM merged_records ORDER BY concept_id`)
	if err != nil {
		return nil, fmt.Errorf("load merged records: %w", err)
	}
	defer rows.Close()

	var merged []*therapy.MergedRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, fmt.Errorf("scan merged record: %w", err)
		}
		var m therapy.MergedRecord
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			return nil, fmt.Errorf("unmarshal merged record: %w", err)
		}
		merged = append(merged, &m)
	}
	return merged, rows.Err()
}

// GetRecord fetches one concept record by ID, case-insensitively.
func (s *Store) GetRecord(ctx context.Context, conceptID string) (*therapy.ConceptRecord, error) {
	var blob, mergeRef string
	err := s.db.QueryRowContext(ctx,
		`SELECT record, merge_ref FROM concept_records WHERE concept_id = ? COLLATE NOCASE`,
		conceptID,
	).Scan(&blob, &mergeRef)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", conceptID, err)
	}
	var r therapy.ConceptRecord
	if err := json.Unmarshal([]byte(blob), &r); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", conceptID, err)
	}
	r.MergeRef = mergeRef
	return &r, nil
}

// LookupTerm returns the concept IDs exposing a folded term at one category,
// served from the persisted index.
func (s *Store) LookupTerm(ctx context.Context, rt therapy.RefType, folded string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT concept_id FROM lookup_refs WHERE term = ? AND ref_type = ? ORDER BY concept_id`,
		folded, string(rt),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", folded, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ref: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
