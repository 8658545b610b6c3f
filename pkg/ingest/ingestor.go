// Package ingest defines the contract source-ETL collaborators satisfy to
// hand concept records to the core, plus a registry of the bundled ingestors.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// Batch is one ingestor run's output: the source's full record set plus the
// version string of the upstream release it was read from.
type Batch struct {
	Version string
	Records []*therapy.ConceptRecord
}

// Ingestor downloads and transforms one reference source into validated
// concept records. Acquisition and format parsing live entirely behind this
// interface; the core consumes the records without interpreting them.
type Ingestor interface {
	// ID returns the unique identifier of this ingestor (e.g. "ncit-flat").
	ID() string
	// Source returns the source the records will be tagged with.
	Source() therapy.SourceName
	// Description returns a human-readable description.
	Description() string
	// DefaultURL returns the default source URL used for seeding the database.
	DefaultURL() string
	// License returns the license identifier for this source.
	License() string
	// Ingest reads the source at sourceURL and returns the full record set.
	Ingest(ctx context.Context, sourceURL string) (*Batch, error)
}

var (
	registryMu sync.RWMutex
	ingestors  = make(map[string]Ingestor)
)

// Register adds an ingestor to the global registry.
func Register(ing Ingestor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	ingestors[ing.ID()] = ing
}

// Get returns a registered ingestor by ID.
func Get(id string) (Ingestor, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	ing, ok := ingestors[id]
	if !ok {
		return nil, fmt.Errorf("unknown ingestor: %q", id)
	}
	return ing, nil
}

// All returns all registered ingestors sorted by ID.
func All() []Ingestor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make([]Ingestor, 0, len(ingestors))
	for _, ing := range ingestors {
		result = append(result, ing)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID() < result[j].ID() })
	return result
}
