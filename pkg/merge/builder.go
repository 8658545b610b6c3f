package merge

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// SelfMergeError signals that two records from the same source collapsed into
// one group. That is a self-referential xref in the source data, not a
// legitimate cross-source match, so the whole rebuild aborts.
type SelfMergeError struct {
	Source     therapy.SourceName
	ConceptIDs []string
}

func (e *SelfMergeError) Error() string {
	return fmt.Sprintf("records %v from source %s merged into one group", e.ConceptIDs, e.Source)
}

// Builder clusters concept records into merge groups and generates the
// canonical merged record for each group.
type Builder struct {
	priorities therapy.PriorityTable
	logger     *slog.Logger
}

func NewBuilder(priorities therapy.PriorityTable, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{priorities: priorities, logger: logger}
}

// Result is the complete output of one build cycle. It replaces, never
// patches, the previous merged set.
type Result struct {
	// Merged holds one canonical record per multi-member group, sorted by
	// group ID. Singleton groups produce no stored merged record; the member
	// record is its own canonical form.
	Merged []*therapy.MergedRecord
	// MergeRefs maps every concept ID to its group ID. Singletons map to
	// themselves.
	MergeRefs map[string]string
}

// Build partitions records into groups via union-find over xrefs and computes
// merged records. The input is not mutated; callers apply MergeRefs to their
// own copies after a successful build.
func (b *Builder) Build(records []*therapy.ConceptRecord) (*Result, error) {
	byID := make(map[string]*therapy.ConceptRecord, len(records))
	for _, r := range records {
		if _, dup := byID[r.ConceptID]; dup {
			return nil, fmt.Errorf("duplicate concept ID %q in input", r.ConceptID)
		}
		byID[r.ConceptID] = r
	}

	// Edges connect a record to everything it cites. Unknown xref targets
	// still become nodes: two records citing the same external identifier
	// end up in one component through it.
	uf := newUnionFind()
	for _, r := range records {
		uf.add(r.ConceptID)
		for _, xref := range r.Xrefs {
			uf.union(r.ConceptID, xref)
		}
	}

	result := &Result{MergeRefs: make(map[string]string, len(records))}
	for _, component := range uf.components() {
		members := make([]*therapy.ConceptRecord, 0, len(component))
		for _, id := range component {
			if r, ok := byID[id]; ok {
				members = append(members, r)
			}
		}
		if len(members) == 0 {
			continue // component of purely external identifiers
		}

		if err := checkSelfMerge(members); err != nil {
			return nil, err
		}

		if len(members) == 1 {
			result.MergeRefs[members[0].ConceptID] = members[0].ConceptID
			continue
		}

		merged, err := MergeRecords(members, b.priorities)
		if err != nil {
			return nil, err
		}
		result.Merged = append(result.Merged, merged)
		for _, m := range members {
			result.MergeRefs[m.ConceptID] = merged.ConceptID
		}
	}

	sort.Slice(result.Merged, func(i, j int) bool {
		return result.Merged[i].ConceptID < result.Merged[j].ConceptID
	})
	b.logger.Debug("merge build complete",
		"records", len(records),
		"groups", len(result.Merged),
	)
	return result, nil
}

func checkSelfMerge(members []*therapy.ConceptRecord) error {
	if len(members) < 2 {
		return nil
	}
	bySource := make(map[therapy.SourceName][]string)
	for _, m := range members {
		bySource[m.Src] = append(bySource[m.Src], m.ConceptID)
	}
	for src, ids := range bySource {
		if len(ids) > 1 {
			sort.Strings(ids)
			return &SelfMergeError{Source: src, ConceptIDs: ids}
		}
	}
	return nil
}

// MergeRecords computes the canonical record for one group.
//
// Scalar fields take the value from the highest-priority member that has one,
// ties broken by smallest concept ID. Set fields are unioned: names
// case-insensitively deduplicated (the highest-priority spelling survives),
// identifier fields case-sensitively. Labels that lose the election are kept
// as aliases. The group ID is the lexicographically smallest member ID, which
// makes repeated builds over identical input produce identical groups.
func MergeRecords(members []*therapy.ConceptRecord, priorities therapy.PriorityTable) (*therapy.MergedRecord, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("empty member set")
	}

	ranked := make([]*therapy.ConceptRecord, len(members))
	copy(ranked, members)
	var rankErr error
	sort.Slice(ranked, func(i, j int) bool {
		ri, err := priorities.Rank(ranked[i].Src)
		if err != nil && rankErr == nil {
			rankErr = err
		}
		rj, err := priorities.Rank(ranked[j].Src)
		if err != nil && rankErr == nil {
			rankErr = err
		}
		if ri != rj {
			return ri < rj
		}
		return ranked[i].ConceptID < ranked[j].ConceptID
	})
	if rankErr != nil {
		return nil, rankErr
	}

	merged := &therapy.MergedRecord{}
	memberIDs := make([]string, len(ranked))
	for i, m := range ranked {
		memberIDs[i] = m.ConceptID
	}
	sort.Strings(memberIDs)
	merged.ConceptID = memberIDs[0]
	merged.Members = memberIDs

	for _, m := range ranked {
		if m.Label != "" {
			merged.Label = m.Label
			break
		}
	}

	aliases := newFoldSet()
	trades := newFoldSet()
	for _, m := range ranked {
		aliases.addAll(m.Aliases)
		trades.addAll(m.TradeNames)
		if m.Label != "" && m.Label != merged.Label {
			aliases.add(m.Label)
		}
	}
	aliases.remove(merged.Label)
	merged.Aliases = aliases.sorted()
	merged.TradeNames = trades.sorted()

	merged.Xrefs = unionSorted(ranked, func(r *therapy.ConceptRecord) []string { return r.Xrefs })
	merged.AssociatedWith = unionSorted(ranked, func(r *therapy.ConceptRecord) []string { return r.AssociatedWith })
	merged.ApprovalRatings = unionSorted(ranked, func(r *therapy.ConceptRecord) []string { return r.ApprovalRatings })

	seen := make(map[therapy.Indication]bool)
	for _, m := range ranked {
		for _, ind := range m.HasIndication {
			if !seen[ind] {
				seen[ind] = true
				merged.HasIndication = append(merged.HasIndication, ind)
			}
		}
	}
	return merged, nil
}

// foldSet deduplicates strings case-insensitively, keeping the first spelling
// added for each folded key.
type foldSet struct {
	keys   map[string]bool
	values []string
}

func newFoldSet() *foldSet {
	return &foldSet{keys: make(map[string]bool)}
}

func (s *foldSet) add(v string) {
	k := therapy.Fold(v)
	if !s.keys[k] {
		s.keys[k] = true
		s.values = append(s.values, v)
	}
}

func (s *foldSet) addAll(vs []string) {
	for _, v := range vs {
		s.add(v)
	}
}

func (s *foldSet) remove(v string) {
	if v == "" {
		return
	}
	k := therapy.Fold(v)
	if !s.keys[k] {
		return
	}
	delete(s.keys, k)
	for i, existing := range s.values {
		if therapy.Fold(existing) == k {
			s.values = append(s.values[:i], s.values[i+1:]...)
			break
		}
	}
}

func (s *foldSet) sorted() []string {
	if len(s.values) == 0 {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	sort.Strings(out)
	return out
}

func unionSorted(records []*therapy.ConceptRecord, get func(*therapy.ConceptRecord) []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		for _, v := range get(r) {
			if !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}
