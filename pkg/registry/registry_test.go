package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/theranorm/theranorm/pkg/ingest"
	"github.com/theranorm/theranorm/pkg/merge"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/store"
	"github.com/theranorm/theranorm/pkg/therapy"
)

func newTestRegistry(t *testing.T) (*Registry, *store.Store, *query.Engine) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	priorities := therapy.DefaultPriorities()
	engine := query.NewEngine(priorities, nil, nil)
	builder := merge.NewBuilder(priorities, nil)
	return New(st, engine, builder, nil), st, engine
}

func TestRebuildAndReload(t *testing.T) {
	reg, st, engine := newTestRegistry(t)
	ctx := context.Background()

	ncit := []*therapy.ConceptRecord{
		{ConceptID: "ncit:C376", Src: therapy.SourceNCIt, Label: "Cisplatin", Xrefs: []string{"rxcui:2555"}},
	}
	rxnorm := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:2555", Src: therapy.SourceRxNorm, Label: "cisplatin", Aliases: []string{"CDDP"}},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceNCIt, "v1", ncit); err != nil {
		t.Fatalf("store NCIt: %v", err)
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", rxnorm); err != nil {
		t.Fatalf("store RxNorm: %v", err)
	}

	if err := reg.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	res, err := engine.Normalize("cddp", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Outcome != query.Matched || res.Therapy.ConceptID != "ncit:C376" {
		t.Fatalf("result = %+v", res)
	}
	if len(res.Therapy.Members) != 2 {
		t.Errorf("members = %v", res.Therapy.Members)
	}

	// A fresh engine fed only from the persisted state answers identically.
	engine2 := query.NewEngine(therapy.DefaultPriorities(), nil, nil)
	reg2 := New(st, engine2, merge.NewBuilder(therapy.DefaultPriorities(), nil), nil)
	if err := reg2.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	res2, err := engine2.Normalize("cddp", nil)
	if err != nil {
		t.Fatalf("Normalize after reload: %v", err)
	}
	if res2.Outcome != query.Matched || res2.Therapy.ConceptID != "ncit:C376" {
		t.Fatalf("reloaded result = %+v", res2)
	}
}

func TestRebuildSelfMergeKeepsPreviousSnapshot(t *testing.T) {
	reg, st, engine := newTestRegistry(t)
	ctx := context.Background()

	good := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:1", Src: therapy.SourceRxNorm, Label: "drug one"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", good); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := reg.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// The new batch makes two RxNorm records collapse into one group.
	bad := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:1", Src: therapy.SourceRxNorm, Label: "drug one", Xrefs: []string{"rxcui:2"}},
		{ConceptID: "rxcui:2", Src: therapy.SourceRxNorm, Label: "drug one dup"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v2", bad); err != nil {
		t.Fatalf("store v2: %v", err)
	}

	err := reg.Rebuild(ctx)
	var selfMerge *merge.SelfMergeError
	if !errors.As(err, &selfMerge) {
		t.Fatalf("error = %v, want SelfMergeError", err)
	}

	// Queries still run against the last good snapshot.
	res, err := engine.Normalize("drug one", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Outcome != query.Matched {
		t.Errorf("previous snapshot lost: outcome = %s", res.Outcome)
	}
}

type stubIngestor struct {
	id      string
	src     therapy.SourceName
	records []*therapy.ConceptRecord
}

func (s *stubIngestor) ID() string                 { return s.id }
func (s *stubIngestor) Source() therapy.SourceName { return s.src }
func (s *stubIngestor) Description() string        { return "stub" }
func (s *stubIngestor) DefaultURL() string         { return "file:///dev/null" }
func (s *stubIngestor) License() string            { return "CC0" }

func (s *stubIngestor) Ingest(_ context.Context, _ string) (*ingest.Batch, error) {
	return &ingest.Batch{Version: "stub-v1", Records: s.records}, nil
}

func TestImport(t *testing.T) {
	reg, _, engine := newTestRegistry(t)
	ctx := context.Background()

	ingest.Register(&stubIngestor{
		id:  "stub-hemonc",
		src: therapy.SourceHemOnc,
		records: []*therapy.ConceptRecord{
			{ConceptID: "hemonc:105", Src: therapy.SourceHemOnc, Label: "Bendamustine"},
		},
	})

	reports, err := reg.Import(ctx, []string{"stub-hemonc"})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(reports) != 1 || reports[0].Records != 1 || reports[0].Version != "stub-v1" {
		t.Fatalf("reports = %+v", reports)
	}

	res, err := engine.Normalize("bendamustine", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.Outcome != query.Matched {
		t.Errorf("imported record not queryable: %s", res.Outcome)
	}

	if _, err := reg.Import(ctx, []string{"does-not-exist"}); err == nil {
		t.Error("unknown ingestor must fail the import")
	}
}

func TestStats(t *testing.T) {
	reg, st, _ := newTestRegistry(t)
	ctx := context.Background()

	records := []*therapy.ConceptRecord{
		{ConceptID: "rxcui:1", Src: therapy.SourceRxNorm, Label: "a"},
		{ConceptID: "rxcui:2", Src: therapy.SourceRxNorm, Label: "b"},
	}
	if err := st.ReplaceSourceRecords(ctx, therapy.SourceRxNorm, "v1", records); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := reg.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	stats, err := reg.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Records != 2 || stats.Groups != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(stats.Sources) != 1 || stats.Sources[0].Version != "v1" {
		t.Errorf("sources = %+v", stats.Sources)
	}
}
