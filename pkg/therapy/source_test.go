package therapy

import "testing"

func TestRank(t *testing.T) {
	p := DefaultPriorities()
	rx, err := p.Rank(SourceRxNorm)
	if err != nil {
		t.Fatalf("Rank(RxNorm): %v", err)
	}
	wd, err := p.Rank(SourceWikidata)
	if err != nil {
		t.Fatalf("Rank(Wikidata): %v", err)
	}
	if rx >= wd {
		t.Errorf("RxNorm rank %d should beat Wikidata rank %d", rx, wd)
	}
	if _, err := p.Rank("NotASource"); err == nil {
		t.Error("unknown source must not rank")
	}
}

func TestSourcesOrdered(t *testing.T) {
	p := DefaultPriorities()
	sources := p.Sources()
	if len(sources) != len(p) {
		t.Fatalf("Sources() returned %d entries, want %d", len(sources), len(p))
	}
	if sources[0] != SourceRxNorm {
		t.Errorf("highest priority source = %s, want RxNorm", sources[0])
	}
	for i := 1; i < len(sources); i++ {
		if p[sources[i-1]] > p[sources[i]] {
			t.Errorf("sources out of priority order at %d: %v", i, sources)
		}
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		input string
		want  SourceName
		ok    bool
	}{
		{"rxnorm", SourceRxNorm, true},
		{"RXNORM", SourceRxNorm, true},
		{"ChEMBL", SourceChEMBL, true},
		{"guidetopharmacology", SourceGuideToPharmacology, true},
		{"nope", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSource(tt.input)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseSource(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
