// Package query resolves free-text queries against the published snapshot of
// concept records, merge groups, and the lookup index.
package query

import (
	"time"

	"github.com/theranorm/theranorm/pkg/index"
	"github.com/theranorm/theranorm/pkg/therapy"
)

// Snapshot is one immutable generation of the published data set. Rebuilds
// publish a fresh Snapshot; in-flight queries keep reading the one they
// started with, so a half-rebuilt index is never observable.
type Snapshot struct {
	// Records by exact concept ID, with MergeRef already assigned.
	Records map[string]*therapy.ConceptRecord
	// Merged records by group ID. Only multi-member groups are present;
	// singletons are canonicalized on demand.
	Merged map[string]*therapy.MergedRecord
	Index   *index.Index
	BuiltAt time.Time
}

// NewSnapshot assembles a snapshot, building the index from the records.
func NewSnapshot(records []*therapy.ConceptRecord, merged []*therapy.MergedRecord) *Snapshot {
	s := &Snapshot{
		Records: make(map[string]*therapy.ConceptRecord, len(records)),
		Merged:  make(map[string]*therapy.MergedRecord, len(merged)),
		Index:   index.Build(records),
		BuiltAt: time.Now().UTC(),
	}
	for _, r := range records {
		s.Records[r.ConceptID] = r
	}
	for _, m := range merged {
		s.Merged[m.ConceptID] = m
	}
	return s
}

// groupOf resolves a member concept ID to its group ID. A record without a
// merge ref is the sole member of its own group.
func (s *Snapshot) groupOf(conceptID string) string {
	r, ok := s.Records[conceptID]
	if !ok {
		return conceptID
	}
	if r.MergeRef != "" {
		return r.MergeRef
	}
	return r.ConceptID
}

// allowedMembers returns the group's member records that pass the source
// filter, in no particular order.
func (s *Snapshot) allowedMembers(groupID string, allowed func(therapy.SourceName) bool) []*therapy.ConceptRecord {
	if m, ok := s.Merged[groupID]; ok {
		var out []*therapy.ConceptRecord
		for _, id := range m.Members {
			if r, ok := s.Records[id]; ok && allowed(r.Src) {
				out = append(out, r)
			}
		}
		return out
	}
	if r, ok := s.Records[groupID]; ok && allowed(r.Src) {
		return []*therapy.ConceptRecord{r}
	}
	return nil
}

// RecordCount reports the number of member records in the snapshot.
func (s *Snapshot) RecordCount() int { return len(s.Records) }

// GroupCount reports the number of multi-member merge groups.
func (s *Snapshot) GroupCount() int { return len(s.Merged) }
