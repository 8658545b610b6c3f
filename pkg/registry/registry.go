// Package registry orchestrates the lifecycle of the therapy data set:
// ingestion runs, merge rebuilds, and snapshot publication to the query
// engine.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/theranorm/theranorm/pkg/index"
	"github.com/theranorm/theranorm/pkg/ingest"
	"github.com/theranorm/theranorm/pkg/merge"
	"github.com/theranorm/theranorm/pkg/query"
	"github.com/theranorm/theranorm/pkg/store"
	"github.com/theranorm/theranorm/pkg/therapy"
)

// Registry ties the store, the merge builder, and the query engine together.
// All mutations of the published data set flow through it.
type Registry struct {
	store   *store.Store
	engine  *query.Engine
	builder *merge.Builder
	logger  *slog.Logger

	// rebuildMu serializes rebuilds. Queries are never blocked; they read
	// whatever snapshot is currently published.
	rebuildMu sync.Mutex
}

func New(st *store.Store, engine *query.Engine, builder *merge.Builder, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, engine: engine, builder: builder, logger: logger}
}

// Reload publishes a snapshot from the persisted state without recomputing
// merge groups. Used at startup and on SIGHUP.
func (r *Registry) Reload(ctx context.Context) error {
	records, err := r.store.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	merged, err := r.store.LoadMerged(ctx)
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	snap := query.NewSnapshot(records, merged)
	r.engine.Publish(snap)
	r.logger.Info("snapshot published",
		"records", snap.RecordCount(),
		"groups", snap.GroupCount(),
	)
	return nil
}

// Rebuild recomputes merge groups from the stored records, persists the new
// merged set atomically, and publishes a fresh snapshot. On any error,
// including a self-merge in the source data, the previously published state
// stays authoritative.
func (r *Registry) Rebuild(ctx context.Context) error {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	started := time.Now()
	records, err := r.store.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	result, err := r.builder.Build(records)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	for _, rec := range records {
		rec.MergeRef = result.MergeRefs[rec.ConceptID]
	}

	idx := index.Build(records)
	if err := r.store.ReplaceMerged(ctx, result.Merged, result.MergeRefs, idx.Rows()); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	snap := query.NewSnapshot(records, result.Merged)
	r.engine.Publish(snap)
	r.logger.Info("rebuild complete",
		"records", snap.RecordCount(),
		"groups", snap.GroupCount(),
		"elapsed", time.Since(started),
	)
	return nil
}

// ImportReport summarizes one ingestor run.
type ImportReport struct {
	IngestorID string             `json:"ingestor_id"`
	Src        therapy.SourceName `json:"source"`
	Version    string             `json:"version"`
	Records    int                `json:"records"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// Import runs the named ingestors (all registered ones when ids is empty),
// replaces each source's record set, and rebuilds the merged set once at the
// end. Downloads and parsing run concurrently; store writes are serialized.
func (r *Registry) Import(ctx context.Context, ids []string) ([]ImportReport, error) {
	var ings []ingest.Ingestor
	if len(ids) == 0 {
		ings = ingest.All()
	} else {
		for _, id := range ids {
			ing, err := ingest.Get(id)
			if err != nil {
				return nil, err
			}
			ings = append(ings, ing)
		}
	}
	if len(ings) == 0 {
		return nil, fmt.Errorf("no ingestors registered")
	}

	batches := make([]*ingest.Batch, len(ings))
	elapsed := make([]time.Duration, len(ings))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, ing := range ings {
		g.Go(func() error {
			url, err := r.store.GetSourceURL(gctx, ing.ID())
			if err != nil || url == "" {
				url = ing.DefaultURL()
			}

			started := time.Now()
			batch, err := ing.Ingest(gctx, url)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", ing.ID(), err)
			}
			batches[i] = batch
			elapsed[i] = time.Since(started)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	reports := make([]ImportReport, len(ings))
	for i, ing := range ings {
		batch := batches[i]
		if err := r.store.ReplaceSourceRecords(ctx, ing.Source(), batch.Version, batch.Records); err != nil {
			return nil, fmt.Errorf("store %s: %w", ing.ID(), err)
		}
		reports[i] = ImportReport{
			IngestorID: ing.ID(),
			Src:        ing.Source(),
			Version:    batch.Version,
			Records:    len(batch.Records),
			Elapsed:    elapsed[i],
		}
	}

	if err := r.Rebuild(ctx); err != nil {
		return reports, err
	}
	return reports, nil
}

// Stats reports the published snapshot's size and per-source metadata.
type Stats struct {
	Records int                `json:"records"`
	Groups  int                `json:"groups"`
	BuiltAt time.Time          `json:"built_at"`
	Sources []store.SourceInfo `json:"sources"`
}

func (r *Registry) Stats(ctx context.Context) (*Stats, error) {
	sources, err := r.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	st := &Stats{Sources: sources}
	if snap := r.engine.Current(); snap != nil {
		st.Records = snap.RecordCount()
		st.Groups = snap.GroupCount()
		st.BuiltAt = snap.BuiltAt
	}
	return st, nil
}
