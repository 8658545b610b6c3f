package merge

import (
	"reflect"
	"sort"
	"testing"
)

func TestUnionFindComponents(t *testing.T) {
	uf := newUnionFind()
	uf.add("a")
	uf.add("b")
	uf.add("c")
	uf.add("d")
	uf.union("a", "b")
	uf.union("b", "c")

	components := uf.components()
	var sizes []int
	for _, members := range components {
		sizes = append(sizes, len(members))
	}
	sort.Ints(sizes)
	if !reflect.DeepEqual(sizes, []int{1, 3}) {
		t.Fatalf("component sizes = %v, want [1 3]", sizes)
	}
}

func TestUnionFindTransitive(t *testing.T) {
	uf := newUnionFind()
	// Two records citing the same external ID end up connected through it.
	uf.add("x")
	uf.add("y")
	uf.union("x", "shared")
	uf.union("y", "shared")
	if uf.find("x") != uf.find("y") {
		t.Error("x and y should share a component via the common citation")
	}
}

func TestUnionFindIdempotent(t *testing.T) {
	uf := newUnionFind()
	uf.add("a")
	uf.union("a", "b")
	uf.union("a", "b")
	uf.union("b", "a")
	if got := len(uf.components()); got != 1 {
		t.Errorf("components = %d, want 1", got)
	}
}
