package server

import (
	"testing"

	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

func newTestWorld(t *testing.T) *World {
	t.Helper()
	return NewWorld(Config{Seed: 7}, nil)
}

func newTestGraph(name string) *behavior.Graph {
	return &behavior.Graph{
		ID:    uuid.New(),
		Name:  name,
		Nodes: make(map[behavior.NodeID]*behavior.Node),
	}
}

func addNode(g *behavior.Graph, kind behavior.NodeKind, name string, values map[string]behavior.Value) behavior.NodeID {
	id := uuid.New()
	g.Nodes[id] = &behavior.Node{ID: id, Kind: kind, Name: name, Values: values}
	return id
}

func connect(g *behavior.Graph, from behavior.NodeID, c behavior.Connector, to behavior.NodeID) {
	g.Connections = append(g.Connections, behavior.Connection{From: from, FromConnector: c, To: to})
}

// spawnAt registers a minimal single-tree graph and instantiates it at the
// given position. The tree root chains Bottom into the provided node ids in
// order.
func spawnAt(t *testing.T, w *World, pos behavior.Position, build func(g *behavior.Graph) []behavior.NodeID) state.InstanceIndex {
	t.Helper()
	g := newTestGraph("test-npc")
	chain := build(g)
	root := addNode(g, behavior.NodeBehaviorTree, "main", nil)
	prev := root
	for _, id := range chain {
		connect(g, prev, behavior.ConnectorBottom, id)
		prev = id
	}
	w.AddBehavior(g)
	idx, err := w.Instantiate(g.ID, &pos)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return idx
}

func numberValues(pairs map[string]float64) map[string]behavior.Value {
	values := make(map[string]behavior.Value, len(pairs))
	for k, v := range pairs {
		values[k] = behavior.NumberValue(v)
	}
	return values
}
