package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// FlatFileIngestor reads a delimited concept export (TSV/CSV) into concept
// records. Column indices are configured per source; -1 marks an absent
// column. Multi-value columns are split on MultiSep.
type FlatFileIngestor struct {
	IngestorID  string
	Src         therapy.SourceName
	Desc        string
	URL         string
	Lic         string
	Namespace   string
	Delimiter   rune
	Encoding    string // non-UTF-8 source encoding, per x/text htmlindex
	HasHeader   bool
	MultiSep    string
	IDCol       int
	LabelCol    int
	AliasesCol  int
	TradeCol    int
	XrefsCol    int
	AssocCol    int
	VersionHint string
}

func (f *FlatFileIngestor) ID() string                 { return f.IngestorID }
func (f *FlatFileIngestor) Source() therapy.SourceName { return f.Src }
func (f *FlatFileIngestor) Description() string        { return f.Desc }
func (f *FlatFileIngestor) DefaultURL() string         { return f.URL }
func (f *FlatFileIngestor) License() string            { return f.Lic }

func (f *FlatFileIngestor) Ingest(ctx context.Context, sourceURL string) (*Batch, error) {
	dir, err := os.MkdirTemp("", "ingest-"+f.IngestorID+"-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	path, err := fetchLocal(ctx, sourceURL, dir, "export.dat")
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if f.Encoding != "" && !strings.EqualFold(f.Encoding, "utf-8") {
		e, err := htmlindex.Get(f.Encoding)
		if err != nil {
			return nil, fmt.Errorf("unsupported encoding %q: %w", f.Encoding, err)
		}
		reader = transform.NewReader(file, e.NewDecoder())
	}

	r := csv.NewReader(reader)
	r.Comma = f.Delimiter
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	if f.HasHeader {
		if _, err := r.Read(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	var records []*therapy.ConceptRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := f.rowToRecord(row)
		if rec == nil {
			continue
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	version := f.VersionHint
	if version == "" {
		version = "unversioned"
	}
	return &Batch{Version: version, Records: records}, nil
}

func (f *FlatFileIngestor) rowToRecord(row []string) *therapy.ConceptRecord {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	multi := func(i int) []string {
		raw := cell(i)
		if raw == "" {
			return nil
		}
		var out []string
		for _, v := range strings.Split(raw, f.MultiSep) {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}

	localID := cell(f.IDCol)
	if localID == "" {
		return nil
	}
	rec := &therapy.ConceptRecord{
		ConceptID:      f.Namespace + ":" + localID,
		Src:            f.Src,
		Label:          cell(f.LabelCol),
		Aliases:        multi(f.AliasesCol),
		TradeNames:     multi(f.TradeCol),
		Xrefs:          multi(f.XrefsCol),
		AssociatedWith: multi(f.AssocCol),
	}
	// The label often repeats in the synonym column; drop the duplicate.
	if rec.Label != "" {
		kept := rec.Aliases[:0]
		for _, a := range rec.Aliases {
			if therapy.Fold(a) != therapy.Fold(rec.Label) {
				kept = append(kept, a)
			}
		}
		rec.Aliases = kept
	}
	return rec
}

func init() {
	Register(&FlatFileIngestor{
		IngestorID: "ncit-flat",
		Src:        therapy.SourceNCIt,
		Desc:       "NCI Thesaurus flat-file export",
		URL:        "https://evs.nci.nih.gov/ftp1/NCI_Thesaurus/Thesaurus.FLAT.zip",
		Lic:        "CC BY 4.0",
		Namespace:  therapy.NamespaceNCIt,
		Delimiter:  '\t',
		MultiSep:   "|",
		IDCol:      0,
		LabelCol:   5,
		AliasesCol: 3,
		TradeCol:   -1,
		XrefsCol:   -1,
		AssocCol:   -1,
	})
}
