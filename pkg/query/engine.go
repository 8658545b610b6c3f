package query

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/theranorm/theranorm/pkg/merge"
	"github.com/theranorm/theranorm/pkg/therapy"
)

// InvalidQueryError rejects empty or whitespace-only queries. It is never
// conflated with "no match".
type InvalidQueryError struct {
	Query string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query %q: empty or whitespace-only", e.Query)
}

// Outcome is the tagged result variant of a normalization query. Callers must
// handle all three cases; there is no sentinel nil.
type Outcome int

const (
	NoMatch Outcome = iota
	Matched
	Ambiguous
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Result is the answer to one normalization query.
type Result struct {
	Query      string                  `json:"query"`
	Outcome    Outcome                 `json:"-"`
	MatchType  therapy.MatchType       `json:"match_type"`
	Therapy    *therapy.MergedRecord   `json:"therapy,omitempty"`    // set when Matched
	Candidates []*therapy.MergedRecord `json:"candidates,omitempty"` // set when Ambiguous, sorted by group ID
	Warnings   []string                `json:"warnings,omitempty"`
}

// Options restricts a single query.
type Options struct {
	// Sources limits matching to records from these sources. The restriction
	// is applied before tier evaluation, so cross-source ambiguity cannot
	// leak into a restricted query.
	Sources []therapy.SourceName
	// NoInfer disables namespace inference for bare local identifiers.
	NoInfer bool
}

// DefaultTierOrder is the tier hierarchy below CONCEPT_ID. Alias and trade
// name share a tier; the order below LABEL is policy and may be overridden.
func DefaultTierOrder() [][]therapy.RefType {
	return [][]therapy.RefType{
		{therapy.RefLabel},
		{therapy.RefAlias, therapy.RefTradeName},
		{therapy.RefXref},
		{therapy.RefAssociatedWith},
	}
}

// Engine is the stateless read path. Queries run concurrently against the
// snapshot current at their start; Publish swaps snapshots atomically.
type Engine struct {
	snap       atomic.Pointer[Snapshot]
	priorities therapy.PriorityTable
	tiers      [][]therapy.RefType
	logger     *slog.Logger
}

func NewEngine(priorities therapy.PriorityTable, tiers [][]therapy.RefType, logger *slog.Logger) *Engine {
	if tiers == nil {
		tiers = DefaultTierOrder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{priorities: priorities, tiers: tiers, logger: logger}
}

// Publish makes s the current snapshot for all subsequent queries.
func (e *Engine) Publish(s *Snapshot) {
	e.snap.Store(s)
}

// Current returns the published snapshot, or nil before the first publish.
func (e *Engine) Current() *Snapshot {
	return e.snap.Load()
}

// Normalize resolves a query to its merge group through the tier hierarchy:
// CONCEPT_ID, then LABEL, then ALIAS/TRADE_NAME, then XREF, then
// ASSOCIATED_WITH. Scanning stops at the first tier with any hit; a single
// surviving group is Matched, several are Ambiguous, none at any tier is
// NoMatch.
func (e *Engine) Normalize(query string, opts *Options) (*Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, &InvalidQueryError{Query: query}
	}
	snap := e.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("no snapshot published")
	}

	res := &Result{Query: query, Outcome: NoMatch, MatchType: therapy.MatchNone}
	if strings.ContainsRune(query, 0x00a0) || strings.Contains(query, "&nbsp;") {
		res.Warnings = append(res.Warnings, "query contains non-breaking space characters")
	}

	q := therapy.Fold(trimmed)
	allowed := sourceFilter(opts)

	// Tier 1: concept ID, literal first.
	ids := filterIDs(snap, snap.Index.ConceptIDs[q], allowed)
	if len(ids) == 0 && (opts == nil || !opts.NoInfer) {
		ids = e.inferConceptIDs(snap, trimmed, allowed, res)
	}
	if len(ids) > 0 {
		return e.conclude(snap, res, groupsOf(snap, ids), therapy.MatchConceptID, allowed)
	}

	// Lower tiers, in strict priority order. A hit at any tier invalidates
	// everything below it.
	for _, tier := range e.tiers {
		groups, matchType := e.scanTier(snap, tier, q, allowed)
		if len(groups) > 0 {
			return e.conclude(snap, res, groups, matchType, allowed)
		}
	}
	return res, nil
}

// inferConceptIDs retries the raw query as a namespaced concept ID when its
// shape matches a known local-identifier pattern. Several namespaces can
// match; the highest-priority resolvable record wins and the alternates are
// reported as warnings rather than ambiguity, since inference is a
// convenience, not an identity claim.
func (e *Engine) inferConceptIDs(snap *Snapshot, raw string, allowed func(therapy.SourceName) bool, res *Result) []string {
	var found []string
	for _, candidate := range therapy.InferNamespaces(raw) {
		found = append(found, filterIDs(snap, snap.Index.ConceptIDs[therapy.Fold(candidate)], allowed)...)
	}
	if len(found) < 2 {
		if len(found) == 1 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("namespace inferred: query adjusted to %q", found[0]))
		}
		return found
	}
	sort.Slice(found, func(i, j int) bool {
		ri, _ := e.priorities.Rank(snap.Records[found[i]].Src)
		rj, _ := e.priorities.Rank(snap.Records[found[j]].Src)
		if ri != rj {
			return ri < rj
		}
		return found[i] < found[j]
	})
	res.Warnings = append(res.Warnings, fmt.Sprintf("namespace inferred: query adjusted to %q (alternates: %s)",
		found[0], strings.Join(found[1:], ", ")))
	return found[:1]
}

// scanTier collects the groups hit by q at one tier. A LABEL hit only counts
// if the hit label wins the group's label election under the current source
// restriction; a losing label is an alias of the group and surfaces at the
// ALIAS tier instead.
func (e *Engine) scanTier(snap *Snapshot, tier []therapy.RefType, q string, allowed func(therapy.SourceName) bool) (map[string]bool, therapy.MatchType) {
	groups := make(map[string]bool)
	matchType := therapy.MatchNone
	for _, rt := range tier {
		candidates := groupsOf(snap, filterIDs(snap, snap.Index.Lookup(rt, q), allowed))
		if rt == therapy.RefLabel {
			for g := range candidates {
				if !e.labelWins(snap, g, q, allowed) {
					delete(candidates, g)
				}
			}
		}
		if rt == therapy.RefAlias {
			// Labels demoted by the election are alias matches.
			for g := range groupsOf(snap, filterIDs(snap, snap.Index.Lookup(therapy.RefLabel, q), allowed)) {
				if !e.labelWins(snap, g, q, allowed) {
					candidates[g] = true
				}
			}
		}
		if len(candidates) > 0 && matchType == therapy.MatchNone {
			matchType = therapy.MatchTypeFor(rt)
		}
		for g := range candidates {
			groups[g] = true
		}
	}
	return groups, matchType
}

// labelWins reports whether q is the elected canonical label of the group
// when only allowed members are considered.
func (e *Engine) labelWins(snap *Snapshot, groupID, q string, allowed func(therapy.SourceName) bool) bool {
	canonical, err := e.canonicalRecord(snap, groupID, allowed)
	if err != nil || canonical == nil {
		return false
	}
	return therapy.Fold(canonical.Label) == q
}

// conclude turns the set of groups hit at the winning tier into a result:
// one group is Matched, several distinct groups are Ambiguous with the full
// candidate set, since silently picking one wrong identity is worse than
// surfacing the tie.
func (e *Engine) conclude(snap *Snapshot, res *Result, groups map[string]bool, matchType therapy.MatchType, allowed func(therapy.SourceName) bool) (*Result, error) {
	ids := make([]string, 0, len(groups))
	for g := range groups {
		ids = append(ids, g)
	}
	sort.Strings(ids)

	records := make([]*therapy.MergedRecord, 0, len(ids))
	for _, g := range ids {
		rec, err := e.canonicalRecord(snap, g, allowed)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	switch len(records) {
	case 0:
		return res, nil
	case 1:
		res.Outcome = Matched
		res.MatchType = matchType
		res.Therapy = records[0]
	default:
		res.Outcome = Ambiguous
		res.MatchType = matchType
		res.Candidates = records
	}
	return res, nil
}

// canonicalRecord produces the group's merged record under the current
// source restriction. Unrestricted multi-member groups come straight from
// the snapshot; restricted views are recomputed from the allowed members so
// field elections reflect only the sources the caller trusts.
func (e *Engine) canonicalRecord(snap *Snapshot, groupID string, allowed func(therapy.SourceName) bool) (*therapy.MergedRecord, error) {
	members := snap.allowedMembers(groupID, allowed)
	switch len(members) {
	case 0:
		return nil, nil
	case 1:
		if m, ok := snap.Merged[groupID]; ok && len(m.Members) == 1 {
			return m, nil
		}
		return recordAsMerged(members[0]), nil
	}
	if m, ok := snap.Merged[groupID]; ok && len(m.Members) == len(members) {
		return m, nil
	}
	return merge.MergeRecords(members, e.priorities)
}

// recordAsMerged canonicalizes a singleton group from its only member.
func recordAsMerged(r *therapy.ConceptRecord) *therapy.MergedRecord {
	return &therapy.MergedRecord{
		ConceptID:       r.ConceptID,
		Members:         []string{r.ConceptID},
		Label:           r.Label,
		Aliases:         r.Aliases,
		TradeNames:      r.TradeNames,
		Xrefs:           r.Xrefs,
		AssociatedWith:  r.AssociatedWith,
		ApprovalRatings: r.ApprovalRatings,
		HasIndication:   r.HasIndication,
	}
}

func sourceFilter(opts *Options) func(therapy.SourceName) bool {
	if opts == nil || len(opts.Sources) == 0 {
		return func(therapy.SourceName) bool { return true }
	}
	set := make(map[therapy.SourceName]bool, len(opts.Sources))
	for _, s := range opts.Sources {
		set[s] = true
	}
	return func(src therapy.SourceName) bool { return set[src] }
}

func filterIDs(snap *Snapshot, ids []string, allowed func(therapy.SourceName) bool) []string {
	var out []string
	for _, id := range ids {
		if r, ok := snap.Records[id]; ok && allowed(r.Src) {
			out = append(out, id)
		}
	}
	return out
}

func groupsOf(snap *Snapshot, ids []string) map[string]bool {
	groups := make(map[string]bool, len(ids))
	for _, id := range ids {
		groups[snap.groupOf(id)] = true
	}
	return groups
}
