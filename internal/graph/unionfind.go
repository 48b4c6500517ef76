package graph

// disjointSet tracks connected components with path halving and union by size
type disjointSet struct {
	parent map[string]string
	size   map[string]int
}

func newDisjointSet(ids []string) *disjointSet {
	ds := &disjointSet{
		parent: make(map[string]string, len(ids)),
		size:   make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		ds.parent[id] = id
		ds.size[id] = 1
	}
	return ds
}

// find returns the representative of id's component
func (ds *disjointSet) find(id string) string {
	if _, ok := ds.parent[id]; !ok {
		return id
	}
	for ds.parent[id] != id {
		ds.parent[id] = ds.parent[ds.parent[id]]
		id = ds.parent[id]
	}
	return id
}

// union joins the components of a and b. Returns false if already joined.
func (ds *disjointSet) union(a, b string) bool {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return false
	}
	if ds.size[ra] < ds.size[rb] {
		ra, rb = rb, ra
	}
	ds.parent[rb] = ra
	ds.size[ra] += ds.size[rb]
	return true
}

// count returns the number of distinct components
func (ds *disjointSet) count() int {
	n := 0
	for id, p := range ds.parent {
		if id == p {
			n++
		}
	}
	return n
}
