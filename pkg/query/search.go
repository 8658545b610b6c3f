package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// SourceMatches is one source's best matches for a search query.
type SourceMatches struct {
	Source    therapy.SourceName       `json:"source"`
	MatchType therapy.MatchType        `json:"match_type"`
	Records   []*therapy.ConceptRecord `json:"records,omitempty"`
}

// SearchResult reports, per source, the records matching a query at that
// source's own best tier, without group merging.
type SearchResult struct {
	Query    string          `json:"query"`
	Sources  []SourceMatches `json:"source_matches"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Search runs the tier scan independently for every allowed source and
// returns each source's own records. Sources with no hit at any tier are
// reported as NO_MATCH rather than omitted.
func (e *Engine) Search(query string, opts *Options) (*SearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, &InvalidQueryError{Query: query}
	}
	snap := e.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("no snapshot published")
	}

	allowed := sourceFilter(opts)
	q := therapy.Fold(trimmed)

	type hit struct {
		matchType therapy.MatchType
		records   []*therapy.ConceptRecord
	}
	hits := make(map[therapy.SourceName]*hit)
	record := func(r *therapy.ConceptRecord, mt therapy.MatchType) {
		h, ok := hits[r.Src]
		if !ok {
			hits[r.Src] = &hit{matchType: mt, records: []*therapy.ConceptRecord{r}}
			return
		}
		if h.matchType != mt {
			return // source already matched at a higher tier
		}
		for _, existing := range h.records {
			if existing.ConceptID == r.ConceptID {
				return
			}
		}
		h.records = append(h.records, r)
	}

	ids := filterIDs(snap, snap.Index.ConceptIDs[q], allowed)
	if len(ids) == 0 && (opts == nil || !opts.NoInfer) {
		for _, candidate := range therapy.InferNamespaces(trimmed) {
			ids = append(ids, filterIDs(snap, snap.Index.ConceptIDs[therapy.Fold(candidate)], allowed)...)
		}
	}
	for _, id := range ids {
		record(snap.Records[id], therapy.MatchConceptID)
	}

	// Each term category is scanned in tier order; once a source has matched,
	// lower categories cannot add to it.
	for _, tier := range e.tiers {
		for _, rt := range tier {
			var fresh []*therapy.ConceptRecord
			for _, id := range filterIDs(snap, snap.Index.Lookup(rt, q), allowed) {
				r := snap.Records[id]
				if _, done := hits[r.Src]; !done {
					fresh = append(fresh, r)
				}
			}
			for _, r := range fresh {
				record(r, therapy.MatchTypeFor(rt))
			}
		}
	}

	res := &SearchResult{Query: query}
	for _, src := range e.priorities.Sources() {
		if !allowed(src) {
			continue
		}
		if h, ok := hits[src]; ok {
			sort.Slice(h.records, func(i, j int) bool { return h.records[i].ConceptID < h.records[j].ConceptID })
			res.Sources = append(res.Sources, SourceMatches{Source: src, MatchType: h.matchType, Records: h.records})
		} else {
			res.Sources = append(res.Sources, SourceMatches{Source: src, MatchType: therapy.MatchNone})
		}
	}
	return res, nil
}
