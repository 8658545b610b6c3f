package therapy

import (
	"fmt"
	"sort"
	"strings"
)

// SourceName identifies a reference source. Values use the source's own
// capitalization; comparisons elsewhere go through ParseSource.
type SourceName string

const (
	SourceRxNorm              SourceName = "RxNorm"
	SourceNCIt                SourceName = "NCIt"
	SourceHemOnc              SourceName = "HemOnc"
	SourceDrugBank            SourceName = "DrugBank"
	SourceDrugsAtFDA          SourceName = "DrugsAtFDA"
	SourceGuideToPharmacology SourceName = "GuideToPHARMACOLOGY"
	SourceChEMBL              SourceName = "ChEMBL"
	SourceChemIDplus          SourceName = "ChemIDplus"
	SourceWikidata            SourceName = "Wikidata"
)

// PriorityTable ranks sources for conflict resolution. Lower rank wins.
// The table is injected into the merge builder and query engine rather than
// read from package state, so tests can vary it freely.
type PriorityTable map[SourceName]int

// DefaultPriorities returns the stock ranking. Callers may override per
// deployment via config.
func DefaultPriorities() PriorityTable {
	return PriorityTable{
		SourceRxNorm:              1,
		SourceNCIt:                2,
		SourceHemOnc:              3,
		SourceDrugBank:            4,
		SourceDrugsAtFDA:          5,
		SourceGuideToPharmacology: 6,
		SourceChEMBL:              7,
		SourceChemIDplus:          8,
		SourceWikidata:            9,
	}
}

// Rank returns the priority rank for a source. Unknown sources are an error:
// a record from an unranked source means the ingestion configuration and the
// priority table disagree, which must not be papered over with a default.
func (p PriorityTable) Rank(src SourceName) (int, error) {
	if rank, ok := p[src]; ok {
		return rank, nil
	}
	return 0, fmt.Errorf("source %q has no priority rank", src)
}

// Sources returns the ranked sources in priority order.
func (p PriorityTable) Sources() []SourceName {
	out := make([]SourceName, 0, len(p))
	for src := range p {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool {
		if p[out[i]] != p[out[j]] {
			return p[out[i]] < p[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// ParseSource resolves a case-insensitive source name against known sources.
func ParseSource(name string) (SourceName, bool) {
	for _, src := range []SourceName{
		SourceRxNorm, SourceNCIt, SourceHemOnc, SourceDrugBank, SourceDrugsAtFDA,
		SourceGuideToPharmacology, SourceChEMBL, SourceChemIDplus, SourceWikidata,
	} {
		if strings.EqualFold(name, string(src)) {
			return src, true
		}
	}
	return "", false
}
