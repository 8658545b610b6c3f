package therapy

import "regexp"

// NamespacePrefix values for concept IDs, both directly ingested sources and
// namespaces that appear only as weak associations.
const (
	NamespaceChEMBL      = "chembl"
	NamespaceChemIDplus  = "chemidplus"
	NamespaceDrugBank    = "drugbank"
	NamespaceDrugsAtFDA  = "drugsatfda.nda"
	NamespaceDrugsAtFDAA = "drugsatfda.anda"
	NamespaceHemOnc      = "hemonc"
	NamespaceIUPHAR      = "iuphar.ligand"
	NamespaceNCIt        = "ncit"
	NamespaceRxNorm      = "rxcui"
	NamespaceWikidata    = "wikidata"
	NamespaceUNII        = "unii"
)

// namespaceSources maps a concept-ID namespace prefix to its owning source.
var namespaceSources = map[string]SourceName{
	NamespaceChEMBL:      SourceChEMBL,
	NamespaceChemIDplus:  SourceChemIDplus,
	NamespaceDrugBank:    SourceDrugBank,
	NamespaceDrugsAtFDA:  SourceDrugsAtFDA,
	NamespaceDrugsAtFDAA: SourceDrugsAtFDA,
	NamespaceHemOnc:      SourceHemOnc,
	NamespaceIUPHAR:      SourceGuideToPharmacology,
	NamespaceNCIt:        SourceNCIt,
	NamespaceRxNorm:      SourceRxNorm,
	NamespaceWikidata:    SourceWikidata,
}

// SourceForNamespace returns the source that owns a namespace prefix.
func SourceForNamespace(ns string) (SourceName, bool) {
	src, ok := namespaceSources[ns]
	return src, ok
}

// luiPatterns match bare local identifiers whose shape betrays their
// namespace, so "CHEMBL25" can be retried as "chembl:CHEMBL25". Order matters
// only for readability; all matching namespaces are offered as candidates.
var luiPatterns = []struct {
	re *regexp.Regexp
	ns string
}{
	{regexp.MustCompile(`(?i)^CHEMBL\d+$`), NamespaceChEMBL},
	{regexp.MustCompile(`(?i)^\d+-\d+-\d+$`), NamespaceChemIDplus},
	{regexp.MustCompile(`(?i)^(?:Q|P)\d+$`), NamespaceWikidata},
	{regexp.MustCompile(`(?i)^C\d+$`), NamespaceNCIt},
	{regexp.MustCompile(`(?i)^DB\d{5}$`), NamespaceDrugBank},
	{regexp.MustCompile(`(?i)^NDA\d+$`), NamespaceDrugsAtFDA},
	{regexp.MustCompile(`(?i)^ANDA\d+$`), NamespaceDrugsAtFDAA},
}

// InferNamespaces returns candidate concept IDs for a bare local identifier.
// An empty result means the query shape matches no known namespace.
func InferNamespaces(query string) []string {
	var candidates []string
	for _, p := range luiPatterns {
		if p.re.MatchString(query) {
			candidates = append(candidates, p.ns+":"+query)
		}
	}
	return candidates
}
