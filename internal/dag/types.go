package dag

import "sync"

// Graph is a directed graph keyed by string ids. Iteration follows insertion
// order so that errors and walks are deterministic. All operations are
// concurrency-safe.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
	order []string
}

// node is un-exported so callers work with ids only.
type node struct {
	id    string
	index int
	// deps holds the predecessors, dependents the successors, both in edge
	// insertion order.
	deps       []*node
	dependents []*node
}
