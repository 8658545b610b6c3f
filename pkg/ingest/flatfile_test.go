package ingest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/theranorm/theranorm/pkg/therapy"
)

func writeExport(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.tsv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}
	return path
}

func testFlatIngestor() *FlatFileIngestor {
	return &FlatFileIngestor{
		IngestorID:  "test-flat",
		Src:         therapy.SourceNCIt,
		Namespace:   therapy.NamespaceNCIt,
		Delimiter:   '\t',
		MultiSep:    "|",
		HasHeader:   true,
		IDCol:       0,
		LabelCol:    1,
		AliasesCol:  2,
		TradeCol:    -1,
		XrefsCol:    -1,
		AssocCol:    -1,
		VersionHint: "test",
	}
}

func TestFlatFileIngest(t *testing.T) {
	path := writeExport(t, "code\tname\tsynonyms\n"+
		"C376\tCisplatin\tCDDP|cis-DDP|Cisplatin\n"+
		"C1647\tTrastuzumab\t\n"+
		"\tskipped no id\t\n")

	batch, err := testFlatIngestor().Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if batch.Version != "test" {
		t.Errorf("version = %q", batch.Version)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(batch.Records))
	}

	first := batch.Records[0]
	if first.ConceptID != "ncit:C376" || first.Src != therapy.SourceNCIt {
		t.Errorf("record = %+v", first)
	}
	if first.Label != "Cisplatin" {
		t.Errorf("label = %q", first.Label)
	}
	// The label itself is dropped from the synonym column.
	if !reflect.DeepEqual(first.Aliases, []string{"CDDP", "cis-DDP"}) {
		t.Errorf("aliases = %v", first.Aliases)
	}

	second := batch.Records[1]
	if second.ConceptID != "ncit:C1647" || second.Aliases != nil {
		t.Errorf("record = %+v", second)
	}
}

func TestFlatFileIngestLatin1(t *testing.T) {
	// "Interféron" with é encoded as Latin-1 0xE9.
	raw := []byte("C899\tInterf\xe9ron\t\n")
	path := filepath.Join(t.TempDir(), "latin1.tsv")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write export: %v", err)
	}

	ing := testFlatIngestor()
	ing.HasHeader = false
	ing.Encoding = "iso-8859-1"

	batch, err := ing.Ingest(context.Background(), path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(batch.Records) != 1 || batch.Records[0].Label != "Interféron" {
		t.Fatalf("records = %+v", batch.Records)
	}
}

func TestFlatFileIngestRejectsMalformed(t *testing.T) {
	ing := testFlatIngestor()
	ing.HasHeader = false
	// Whitespace-only synonym entries are dropped before validation, so force
	// a malformed record through the xref column instead.
	ing.XrefsCol = 2

	path := writeExport(t, "C1\tDrug\tnot a concept id\n")
	if _, err := ing.Ingest(context.Background(), path); err == nil {
		t.Fatal("malformed xref must fail the ingest")
	}
}

func TestRegisteredIngestors(t *testing.T) {
	for _, id := range []string{"ncit-flat", "chembl-sqlite"} {
		ing, err := Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if ing.ID() != id {
			t.Errorf("ID() = %q, want %q", ing.ID(), id)
		}
		if ing.DefaultURL() == "" || ing.License() == "" {
			t.Errorf("%s missing seed metadata", id)
		}
	}
	if _, err := Get("nope"); err == nil {
		t.Error("unknown ingestor must error")
	}

	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1].ID() > all[i].ID() {
			t.Fatal("All() not sorted by ID")
		}
	}
}
