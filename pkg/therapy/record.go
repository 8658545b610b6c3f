// Package therapy defines the concept record model shared by ingestion,
// merging, indexing, and query resolution.
//
// A ConceptRecord is one source's knowledge about one therapy. A MergedRecord
// is the canonical union of a group of ConceptRecords that denote the same
// real-world therapy, linked through explicit cross-references.
package therapy

import (
	"fmt"
	"regexp"
	"strings"
)

// conceptIDPattern enforces the <namespace>:<local> shape. Namespaces may be
// dotted (e.g. drugsatfda.nda); local IDs carry no whitespace.
var conceptIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*:[^\s]+$`)

// Indication is a disease a therapy is indicated for, as asserted by a source.
type Indication struct {
	DiseaseID           string `json:"disease_id"`
	DiseaseLabel        string `json:"disease_label,omitempty"`
	NormalizedDiseaseID string `json:"normalized_disease_id,omitempty"`
}

// ConceptRecord is a single source's record for one therapy concept.
// Records are read-only after ingestion except for MergeRef, which the merge
// builder assigns on every rebuild.
type ConceptRecord struct {
	ConceptID       string       `json:"concept_id"`
	Src             SourceName   `json:"src_name"`
	Label           string       `json:"label,omitempty"`
	Aliases         []string     `json:"aliases,omitempty"`
	TradeNames      []string     `json:"trade_names,omitempty"`
	Xrefs           []string     `json:"xrefs,omitempty"`
	AssociatedWith  []string     `json:"associated_with,omitempty"`
	ApprovalRatings []string     `json:"approval_ratings,omitempty"`
	HasIndication   []Indication `json:"has_indication,omitempty"`
	MergeRef        string       `json:"merge_ref,omitempty"`
}

// MergedRecord is the computed canonical record for one merge group.
// ConceptID is the group ID: the lexicographically smallest member ID.
type MergedRecord struct {
	ConceptID       string       `json:"concept_id"`
	Members         []string     `json:"members"`
	Label           string       `json:"label,omitempty"`
	Aliases         []string     `json:"aliases,omitempty"`
	TradeNames      []string     `json:"trade_names,omitempty"`
	Xrefs           []string     `json:"xrefs,omitempty"`
	AssociatedWith  []string     `json:"associated_with,omitempty"`
	ApprovalRatings []string     `json:"approval_ratings,omitempty"`
	HasIndication   []Indication `json:"has_indication,omitempty"`
}

// MalformedRecordError reports a record that fails shape validation at the
// ingestion boundary.
type MalformedRecordError struct {
	ConceptID string
	Field     string
	Reason    string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %q: field %s: %s", e.ConceptID, e.Field, e.Reason)
}

// Validate checks the record shape. It returns a *MalformedRecordError if the
// concept ID does not match <namespace>:<local>, any identifier-shaped field
// is malformed, or any string field is whitespace-only.
func (r *ConceptRecord) Validate() error {
	if !conceptIDPattern.MatchString(r.ConceptID) {
		return &MalformedRecordError{ConceptID: r.ConceptID, Field: "concept_id", Reason: "must match <namespace>:<local>"}
	}
	if r.Src == "" {
		return &MalformedRecordError{ConceptID: r.ConceptID, Field: "src_name", Reason: "missing source name"}
	}
	if r.Label != "" && strings.TrimSpace(r.Label) == "" {
		return &MalformedRecordError{ConceptID: r.ConceptID, Field: "label", Reason: "whitespace-only value"}
	}
	for field, values := range map[string][]string{
		"aliases":     r.Aliases,
		"trade_names": r.TradeNames,
	} {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				return &MalformedRecordError{ConceptID: r.ConceptID, Field: field, Reason: "whitespace-only value"}
			}
		}
	}
	for field, values := range map[string][]string{
		"xrefs":           r.Xrefs,
		"associated_with": r.AssociatedWith,
	} {
		for _, v := range values {
			if !conceptIDPattern.MatchString(v) {
				return &MalformedRecordError{ConceptID: r.ConceptID, Field: field, Reason: fmt.Sprintf("%q is not <namespace>:<local>", v)}
			}
		}
	}
	for _, v := range r.ApprovalRatings {
		if strings.TrimSpace(v) == "" {
			return &MalformedRecordError{ConceptID: r.ConceptID, Field: "approval_ratings", Reason: "whitespace-only value"}
		}
	}
	return nil
}

// Namespace returns the namespace prefix of a concept ID ("" if unshaped).
func Namespace(conceptID string) string {
	ns, _, ok := strings.Cut(conceptID, ":")
	if !ok {
		return ""
	}
	return ns
}
