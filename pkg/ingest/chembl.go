package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// chemblIngestor reads the ChEMBL SQLite dump. The dump ships as a single
// database file; point the source URL at the extracted .db.
type chemblIngestor struct{}

func init() { Register(&chemblIngestor{}) }

func (c *chemblIngestor) ID() string                 { return "chembl-sqlite" }
func (c *chemblIngestor) Source() therapy.SourceName { return therapy.SourceChEMBL }
func (c *chemblIngestor) Description() string        { return "ChEMBL molecule dictionary (SQLite dump)" }
func (c *chemblIngestor) License() string            { return "CC BY-SA 3.0" }

func (c *chemblIngestor) DefaultURL() string {
	return "https://ftp.ebi.ac.uk/pub/databases/chembl/ChEMBLdb/latest/chembl_sqlite.tar.gz"
}

func (c *chemblIngestor) Ingest(ctx context.Context, sourceURL string) (*Batch, error) {
	dir, err := os.MkdirTemp("", "ingest-chembl-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path, err := fetchLocal(ctx, sourceURL, dir, "chembl.db")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open chembl dump: %w", err)
	}
	defer db.Close()

	version := "unknown"
	if err := db.QueryRowContext(ctx, `SELECT name FROM version LIMIT 1`).Scan(&version); err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("read chembl version: %w", err)
	}

	byID := make(map[string]*therapy.ConceptRecord)
	var order []string

	rows, err := db.QueryContext(ctx, `
		SELECT md.chembl_id, COALESCE(md.pref_name, ''), COALESCE(md.max_phase, -1)
		FROM molecule_dictionary md`)
	if err != nil {
		return nil, fmt.Errorf("query molecule_dictionary: %w", err)
	}
	for rows.Next() {
		var chemblID, prefName string
		var maxPhase float64
		if err := rows.Scan(&chemblID, &prefName, &maxPhase); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan molecule: %w", err)
		}
		rec := &therapy.ConceptRecord{
			ConceptID: therapy.NamespaceChEMBL + ":" + chemblID,
			Src:       therapy.SourceChEMBL,
			Label:     prefName,
		}
		if maxPhase >= 0 {
			rec.ApprovalRatings = []string{fmt.Sprintf("chembl_phase_%g", maxPhase)}
		}
		byID[chemblID] = rec
		order = append(order, chemblID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	synRows, err := db.QueryContext(ctx, `
		SELECT md.chembl_id, ms.synonyms, COALESCE(ms.syn_type, '')
		FROM molecule_synonyms ms
		JOIN molecule_dictionary md ON md.molregno = ms.molregno
		WHERE ms.synonyms IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query molecule_synonyms: %w", err)
	}
	for synRows.Next() {
		var chemblID, synonym, synType string
		if err := synRows.Scan(&chemblID, &synonym, &synType); err != nil {
			synRows.Close()
			return nil, fmt.Errorf("scan synonym: %w", err)
		}
		rec, ok := byID[chemblID]
		if !ok {
			continue
		}
		synonym = strings.TrimSpace(synonym)
		if synonym == "" || therapy.Fold(synonym) == therapy.Fold(rec.Label) {
			continue
		}
		if strings.EqualFold(synType, "TRADE_NAME") {
			rec.TradeNames = append(rec.TradeNames, synonym)
		} else {
			rec.Aliases = append(rec.Aliases, synonym)
		}
	}
	if err := synRows.Close(); err != nil {
		return nil, err
	}

	sort.Strings(order)
	records := make([]*therapy.ConceptRecord, 0, len(order))
	for _, id := range order {
		rec := byID[id]
		rec.Aliases = dedupeFolded(rec.Aliases)
		rec.TradeNames = dedupeFolded(rec.TradeNames)
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return &Batch{Version: version, Records: records}, nil
}

// dedupeFolded removes case and accent duplicates, keeping first spellings.
func dedupeFolded(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		key := therapy.Fold(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
