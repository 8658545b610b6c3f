package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/theranorm/theranorm/pkg/index"
	"github.com/theranorm/theranorm/pkg/therapy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestReplaceSourceRecordsRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	records := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:2555", Src: therapy.SourceRxNorm, Label: "cisplatin", Aliases: []string{"CDDP"}},
		{ConceptID: "rxcui:10582", Src: therapy.SourceRxNorm, Label: "levothyroxine"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "2025-08", records); err != nil {
		t.Fatalf("ReplaceSourceRecords: %v", err)
	}

	loaded, err := st.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d records, want 2", len(loaded))
	}
	if loaded[0].ConceptID != "rxcui:10582" {
		t.Errorf("records not ordered by concept ID: %v", loaded[0].ConceptID)
	}
	if !reflect.DeepEqual(loaded[1].Aliases, []string{"CDDP"}) {
		t.Errorf("aliases lost in round trip: %v", loaded[1].Aliases)
	}

	sources, err := st.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 1 || sources[0].Version != "2025-08" || sources[0].RecordCount != 2 {
		t.Errorf("source meta = %+v", sources)
	}
}

func TestReplaceSourceRecordsSwapsFully(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	first := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:1", Src: therapy.SourceRxNorm, Label: "old"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", first); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	second := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:2", Src: therapy.SourceRxNorm, Label: "new"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v2", second); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	loaded, err := st.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ConceptID != "rxcui:2" {
		t.Errorf("old records survived the swap: %v", loaded)
	}
}

func TestReplaceSourceRecordsRejectsMalformed(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	records := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:1", Src: therapy.SourceRxNorm, Label: "ok"},
		{ConceptID: "no-namespace", Src: therapy.SourceRxNorm},
	}
	err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", records)
	var malformed *therapy.MalformedRecordError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want MalformedRecordError", err)
	}

	// The whole batch is rejected, including the valid record.
	loaded, err := st.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("partial batch persisted: %v", loaded)
	}
}

func TestReplaceSourceRecordsRejectsWrongSource(t *testing.T) {
	st := openTestStore(t)
	records := []*therapy.ConceptRecord{
		{ConceptID: "ncit:C1", Src: therapy.SourceNCIt, Label: "x"},
	}
	if err := st.ReplaceSourceRecords(context.Background(), therapy.SourceRxNorm, "v1", records); err == nil {
		t.Fatal("mis-tagged batch must be rejected")
	}
}

func TestReplaceMergedRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	records := []*therapy.ConceptRecord{
		{ConceptID: "ncit:C1", Src: therapy.SourceNCIt, Label: "Drug A", Xrefs: []string{"chembl:CHEMBL1"}},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceNCIt, "v1", records); err != nil {
		t.Fatalf("ReplaceSourceRecords: %v", err)
	}

	merged := []*therapy.MergedRecord{
		{ConceptID: "chembl:CHEMBL1", Members: []string{"chembl:CHEMBL1", "ncit:C1"}, Label: "Drug A"},
	}
	refs := map[string]string{"ncit:C1": "chembl:CHEMBL1"}
	rows := []index.Row{
		{Term: "drug a", Type: therapy.RefLabel, ConceptID: "ncit:C1"},
	}
	if err := st.ReplaceMerged(ctx, merged, refs, rows); err != nil {
		t.Fatalf("ReplaceMerged: %v", err)
	}

	loadedMerged, err := st.LoadMerged(ctx)
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if len(loadedMerged) != 1 || loadedMerged[0].ConceptID != "chembl:CHEMBL1" {
		t.Fatalf("merged = %+v", loadedMerged)
	}

	rec, err := st.GetRecord(ctx, "ncit:C1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.MergeRef != "chembl:CHEMBL1" {
		t.Errorf("merge ref = %q", rec.MergeRef)
	}

	ids, err := st.LookupTerm(ctx, therapy.RefLabel, "drug a")
	if err != nil {
		t.Fatalf("LookupTerm: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"ncit:C1"}) {
		t.Errorf("lookup = %v", ids)
	}

	// A second replace clears everything from the first.
	if err := st.ReplaceMerged(ctx, nil, nil, nil); err != nil {
		t.Fatalf("empty ReplaceMerged: %v", err)
	}
	if ids, _ := st.LookupTerm(ctx, therapy.RefLabel, "drug a"); len(ids) != 0 {
		t.Errorf("stale lookup refs: %v", ids)
	}
	rec, _ = st.GetRecord(ctx, "ncit:C1")
	if rec.MergeRef != "" {
		t.Errorf("merge ref not cleared: %q", rec.MergeRef)
	}
}

func TestGetRecordCaseInsensitive(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	records := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:2555", Src: therapy.SourceRxNorm, Label: "cisplatin"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", records); err != nil {
		t.Fatalf("ReplaceSourceRecords: %v", err)
	}

	rec, err := st.GetRecord(ctx, "RXCUI:2555")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec == nil || rec.ConceptID != "rxcui:2555" {
		t.Errorf("record = %+v", rec)
	}

	missing, err := st.GetRecord(ctx, "rxcui:0")
	if err != nil {
		t.Fatalf("GetRecord missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown ID, got %+v", missing)
	}
}

type fakeSeedable struct {
	id  string
	src therapy.SourceName
}

func (f fakeSeedable) ID() string                 { return f.id }
func (f fakeSeedable) Source() therapy.SourceName { return f.src }
func (f fakeSeedable) Description() string        { return "test source" }
func (f fakeSeedable) DefaultURL() string         { return "https://example.org/data" }
func (f fakeSeedable) License() string            { return "CC0" }

func TestImportSourcesLifecycle(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	seed := []Seedable{fakeSeedable{id: "fake-a", src: therapy.SourceNCIt}}
	if err := st.SeedImportSources(ctx, seed); err != nil {
		t.Fatalf("SeedImportSources: %v", err)
	}

	url, err := st.GetSourceURL(ctx, "fake-a")
	if err != nil || url != "https://example.org/data" {
		t.Fatalf("GetSourceURL = %q, %v", url, err)
	}

	if err := st.SetSourceURL(ctx, "fake-a", "file:///tmp/local.dat"); err != nil {
		t.Fatalf("SetSourceURL: %v", err)
	}
	// Re-seeding must not clobber the override.
	if err := st.SeedImportSources(ctx, seed); err != nil {
		t.Fatalf("re-seed: %v", err)
	}
	url, _ = st.GetSourceURL(ctx, "fake-a")
	if url != "file:///tmp/local.dat" {
		t.Errorf("override lost after re-seed: %q", url)
	}

	if err := st.SetSourceURL(ctx, "unknown", "x"); err == nil {
		t.Error("SetSourceURL for unknown ingestor must fail")
	}

	if err := st.UpdateCheck(ctx, "fake-a", 200, ""); err != nil {
		t.Fatalf("UpdateCheck: %v", err)
	}
	rows, err := st.ListImportSources(ctx)
	if err != nil {
		t.Fatalf("ListImportSources: %v", err)
	}
	if len(rows) != 1 || rows[0].LastStatus == nil || *rows[0].LastStatus != 200 {
		t.Errorf("import sources = %+v", rows)
	}
	if rows[0].LastError != nil {
		t.Errorf("empty check error should store NULL, got %q", *rows[0].LastError)
	}
}
