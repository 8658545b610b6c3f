// Package index derives the lookup index from concept records. The index is
// a pure function of the current record set: it holds no independent state
// and is thrown away and rebuilt whenever the records change.
package index

import (
	"sort"

	"github.com/theranorm/theranorm/pkg/therapy"
)

// Row is one persisted index entry: a folded term exposing a concept at one
// term category.
type Row struct {
	Term      string
	Type      therapy.RefType
	ConceptID string
}

// Index maps folded search terms to the member concept IDs that expose them.
// Entries are member-level; the query engine resolves members to merge groups
// through their merge refs.
type Index struct {
	// ConceptIDs maps the folded form of each concept ID to the IDs that
	// fold to it (distinct IDs folding together is legal across namespaces).
	ConceptIDs map[string][]string
	// Refs maps term category -> folded term -> concept IDs.
	Refs map[therapy.RefType]map[string][]string
}

// Build scans records and produces the full index. Whitespace-only terms are
// skipped; everything else is folded exactly as queries are.
func Build(records []*therapy.ConceptRecord) *Index {
	ix := &Index{
		ConceptIDs: make(map[string][]string),
		Refs: map[therapy.RefType]map[string][]string{
			therapy.RefLabel:          {},
			therapy.RefAlias:          {},
			therapy.RefTradeName:      {},
			therapy.RefXref:           {},
			therapy.RefAssociatedWith: {},
		},
	}

	for _, r := range records {
		ix.ConceptIDs[therapy.Fold(r.ConceptID)] = append(ix.ConceptIDs[therapy.Fold(r.ConceptID)], r.ConceptID)
		ix.addTerm(therapy.RefLabel, r.Label, r.ConceptID)
		for _, a := range r.Aliases {
			ix.addTerm(therapy.RefAlias, a, r.ConceptID)
		}
		for _, t := range r.TradeNames {
			ix.addTerm(therapy.RefTradeName, t, r.ConceptID)
		}
		for _, x := range r.Xrefs {
			ix.addTerm(therapy.RefXref, x, r.ConceptID)
		}
		for _, a := range r.AssociatedWith {
			ix.addTerm(therapy.RefAssociatedWith, a, r.ConceptID)
		}
	}

	for _, ids := range ix.ConceptIDs {
		sort.Strings(ids)
	}
	for _, terms := range ix.Refs {
		for term, ids := range terms {
			sort.Strings(ids)
			terms[term] = dedupeSorted(ids)
		}
	}
	return ix
}

func (ix *Index) addTerm(rt therapy.RefType, term, conceptID string) {
	folded := therapy.Fold(term)
	if folded == "" {
		return
	}
	ix.Refs[rt][folded] = append(ix.Refs[rt][folded], conceptID)
}

// Lookup returns the concept IDs exposing a folded term at one category.
func (ix *Index) Lookup(rt therapy.RefType, folded string) []string {
	return ix.Refs[rt][folded]
}

// Rows flattens the index for bulk persistence, sorted for determinism.
func (ix *Index) Rows() []Row {
	var rows []Row
	for rt, terms := range ix.Refs {
		for term, ids := range terms {
			for _, id := range ids {
				rows = append(rows, Row{Term: term, Type: rt, ConceptID: id})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.Term != b.Term {
			return a.Term < b.Term
		}
		return a.ConceptID < b.ConceptID
	})
	return rows
}

func dedupeSorted(ids []string) []string {
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || ids[i-1] != id {
			out = append(out, id)
		}
	}
	return out
}
