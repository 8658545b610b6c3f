// Package merge partitions concept records into merge groups along explicit
// cross-references and computes one canonical merged record per group.
package merge

// unionFind is a disjoint-set forest over concept IDs with path compression
// and union by size. Same root <=> same merge group.
type unionFind struct {
	parent map[string]string
	size   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		size:   make(map[string]int),
	}
}

// add registers an ID as its own singleton set. No-op if already present.
func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.size[id] = 1
	}
}

// find returns the set root for id, compressing the path as it goes.
func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		id, u.parent[id] = u.parent[id], root
	}
	return root
}

// union joins the sets containing a and b, registering either if unknown.
func (u *unionFind) union(a, b string) {
	u.add(a)
	u.add(b)
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// components groups all registered IDs by their set root.
func (u *unionFind) components() map[string][]string {
	comps := make(map[string][]string)
	for id := range u.parent {
		root := u.find(id)
		comps[root] = append(comps[root], id)
	}
	return comps
}
