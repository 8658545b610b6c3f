package therapy

// RefType names one searchable term category in the lookup index.
type RefType string

const (
	RefLabel          RefType = "label"
	RefAlias          RefType = "alias"
	RefTradeName      RefType = "trade_name"
	RefXref           RefType = "xref"
	RefAssociatedWith RefType = "associated_with"
)

func (rt RefType) String() string { return string(rt) }

// ParseRefType resolves a configured term-category name.
func ParseRefType(name string) (RefType, bool) {
	switch RefType(name) {
	case RefLabel, RefAlias, RefTradeName, RefXref, RefAssociatedWith:
		return RefType(name), true
	}
	return "", false
}

// MatchType tags the tier at which a query resolved.
type MatchType string

const (
	MatchConceptID      MatchType = "CONCEPT_ID"
	MatchLabel          MatchType = "LABEL"
	MatchAlias          MatchType = "ALIAS"
	MatchTradeName      MatchType = "TRADE_NAME"
	MatchXref           MatchType = "XREF"
	MatchAssociatedWith MatchType = "ASSOCIATED_WITH"
	MatchNone           MatchType = "NO_MATCH"
)

// matchRanks orders match types so a higher value is always a more trusted
// match. Alias and trade name deliberately share a rank.
var matchRanks = map[MatchType]int{
	MatchConceptID:      100,
	MatchLabel:          80,
	MatchAlias:          60,
	MatchTradeName:      60,
	MatchXref:           40,
	MatchAssociatedWith: 20,
	MatchNone:           0,
}

// Rank returns the numeric trust rank of a match type.
func (m MatchType) Rank() int { return matchRanks[m] }

// MatchTypeFor returns the match type a RefType hit resolves at.
func MatchTypeFor(rt RefType) MatchType {
	switch rt {
	case RefLabel:
		return MatchLabel
	case RefAlias:
		return MatchAlias
	case RefTradeName:
		return MatchTradeName
	case RefXref:
		return MatchXref
	case RefAssociatedWith:
		return MatchAssociatedWith
	default:
		return MatchNone
	}
}
