package behavior

import (
	"bytes"
	"sort"
)

// Graph is a designer-authored node graph: the compiled program driving one
// character, system, or region area. Immutable during a tick.
type Graph struct {
	ID          GraphID
	Name        string
	Kind        Kind
	Nodes       map[NodeID]*Node
	Connections []Connection
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	if g == nil {
		return nil, false
	}
	n, ok := g.Nodes[id]
	return n, ok
}

// NextNode resolves the connection leaving (from, connector). Connections are
// scanned in authored order and the first match wins; fan-out beyond the first
// edge per connector is intentionally ignored.
func (g *Graph) NextNode(from NodeID, connector Connector) (NodeID, bool) {
	if g == nil {
		return NodeID{}, false
	}
	for _, c := range g.Connections {
		if c.From == from && c.FromConnector == connector {
			return c.To, true
		}
	}
	return NodeID{}, false
}

// TreeRoots returns the ids of BehaviorTree nodes that have at least one
// outgoing connection, sorted for deterministic execution order.
func (g *Graph) TreeRoots() []NodeID {
	if g == nil {
		return nil
	}
	var roots []NodeID
	for id, node := range g.Nodes {
		if node.Kind != NodeBehaviorTree {
			continue
		}
		for _, c := range g.Connections {
			if c.From == id {
				roots = append(roots, id)
				break
			}
		}
	}
	sortNodeIDs(roots)
	return roots
}

// TreeByName resolves a named BehaviorTree node by linear scan, the way
// call_behavior and lock_tree reference trees.
func (g *Graph) TreeByName(name string) (NodeID, bool) {
	if g == nil {
		return NodeID{}, false
	}
	var (
		found NodeID
		ok    bool
	)
	for id, node := range g.Nodes {
		if node.Kind != NodeBehaviorTree || node.Name != name {
			continue
		}
		// Deterministic pick if the author duplicated a tree name.
		if !ok || bytes.Compare(id[:], found[:]) < 0 {
			found = id
			ok = true
		}
	}
	return found, ok
}

// EntryNodes returns nodes with no incoming connection, sorted. Region area
// graphs start their walk from these trigger nodes.
func (g *Graph) EntryNodes() []NodeID {
	if g == nil {
		return nil
	}
	incoming := make(map[NodeID]bool, len(g.Connections))
	for _, c := range g.Connections {
		incoming[c.To] = true
	}
	var entries []NodeID
	for id := range g.Nodes {
		if !incoming[id] {
			entries = append(entries, id)
		}
	}
	sortNodeIDs(entries)
	return entries
}

func sortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}

// Library stores loaded graphs indexed by id and name. The loader that
// produces graphs from persisted form is a collaborator; the library only
// requires them fully built.
type Library struct {
	byID   map[GraphID]*Graph
	byName map[string]GraphID
	ids    []GraphID
}

// NewLibrary creates an empty graph library.
func NewLibrary() *Library {
	return &Library{
		byID:   make(map[GraphID]*Graph),
		byName: make(map[string]GraphID),
	}
}

// Add registers a graph, replacing any previous graph with the same id.
func (l *Library) Add(g *Graph) {
	if g == nil {
		return
	}
	if _, exists := l.byID[g.ID]; !exists {
		l.ids = append(l.ids, g.ID)
	}
	l.byID[g.ID] = g
	if g.Name != "" {
		l.byName[g.Name] = g.ID
	}
}

// ByID returns the graph with the given id.
func (l *Library) ByID(id GraphID) (*Graph, bool) {
	if l == nil {
		return nil, false
	}
	g, ok := l.byID[id]
	return g, ok
}

// ByName returns the graph registered under the given name.
func (l *Library) ByName(name string) (*Graph, bool) {
	if l == nil {
		return nil, false
	}
	id, ok := l.byName[name]
	if !ok {
		return nil, false
	}
	return l.ByID(id)
}

// IDs returns the registered graph ids in registration order.
func (l *Library) IDs() []GraphID {
	if l == nil {
		return nil
	}
	out := make([]GraphID, len(l.ids))
	copy(out, l.ids)
	return out
}
