package behavior

import (
	"testing"

	"github.com/google/uuid"
)

func graphWithNodes(kinds map[string]NodeKind) (*Graph, map[string]NodeID) {
	g := &Graph{ID: uuid.New(), Name: "test", Nodes: make(map[NodeID]*Node)}
	ids := make(map[string]NodeID, len(kinds))
	for name, kind := range kinds {
		id := uuid.New()
		g.Nodes[id] = &Node{ID: id, Kind: kind, Name: name}
		ids[name] = id
	}
	return g, ids
}

func TestNextNodeFirstMatchWins(t *testing.T) {
	g, ids := graphWithNodes(map[string]NodeKind{
		"a": NodeScript, "b": NodeScript, "c": NodeScript,
	})
	g.Connections = []Connection{
		{From: ids["a"], FromConnector: ConnectorSuccess, To: ids["b"]},
		{From: ids["a"], FromConnector: ConnectorSuccess, To: ids["c"]},
	}

	next, ok := g.NextNode(ids["a"], ConnectorSuccess)
	if !ok {
		t.Fatal("expected a match")
	}
	if next != ids["b"] {
		t.Fatalf("duplicate connection must resolve to the first listed, got %s", next)
	}
	if _, ok := g.NextNode(ids["a"], ConnectorFail); ok {
		t.Fatal("no fail connection exists")
	}
}

func TestTreeRootsRequireOutgoingConnections(t *testing.T) {
	g, ids := graphWithNodes(map[string]NodeKind{
		"wired":    NodeBehaviorTree,
		"orphan":   NodeBehaviorTree,
		"script":   NodeScript,
		"behavior": NodeBehaviorType,
	})
	g.Connections = []Connection{
		{From: ids["wired"], FromConnector: ConnectorBottom, To: ids["script"]},
	}

	roots := g.TreeRoots()
	if len(roots) != 1 || roots[0] != ids["wired"] {
		t.Fatalf("roots = %v, want just the wired tree", roots)
	}
}

func TestTreeByName(t *testing.T) {
	g, ids := graphWithNodes(map[string]NodeKind{
		"idle":   NodeBehaviorTree,
		"attack": NodeBehaviorTree,
	})

	id, ok := g.TreeByName("attack")
	if !ok || id != ids["attack"] {
		t.Fatalf("TreeByName(attack) = %s ok=%v", id, ok)
	}
	if _, ok := g.TreeByName("missing"); ok {
		t.Fatal("unknown tree name should not resolve")
	}
}

func TestEntryNodesHaveNoIncoming(t *testing.T) {
	g, ids := graphWithNodes(map[string]NodeKind{
		"entry": NodeEnterArea,
		"act":   NodeMessageArea,
	})
	g.Connections = []Connection{
		{From: ids["entry"], FromConnector: ConnectorSuccess, To: ids["act"]},
	}

	entries := g.EntryNodes()
	if len(entries) != 1 || entries[0] != ids["entry"] {
		t.Fatalf("entries = %v", entries)
	}
}

func TestLibraryLookup(t *testing.T) {
	lib := NewLibrary()
	g := &Graph{ID: uuid.New(), Name: "guard", Nodes: map[NodeID]*Node{}}
	lib.Add(g)

	if got, ok := lib.ByID(g.ID); !ok || got != g {
		t.Fatal("ByID lookup failed")
	}
	if got, ok := lib.ByName("guard"); !ok || got != g {
		t.Fatal("ByName lookup failed")
	}
	if _, ok := lib.ByName("nobody"); ok {
		t.Fatal("unknown name should not resolve")
	}
}

func TestDecodeGraph(t *testing.T) {
	doc := `
name: gatekeeper
nodes:
  - id: 11111111-1111-1111-1111-111111111111
    kind: BehaviorTree
    name: main
  - id: 22222222-2222-2222-2222-222222222222
    kind: Message
    name: greet
    values:
      text: "welcome, traveler"
      type: 1
      position: {region: 2, x: 4, y: 6}
connections:
  - from: 11111111-1111-1111-1111-111111111111
    connector: bottom
    to: 22222222-2222-2222-2222-222222222222
`
	g, err := DecodeGraph([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeGraph: %v", err)
	}
	if g.Name != "gatekeeper" || len(g.Nodes) != 2 || len(g.Connections) != 1 {
		t.Fatalf("decoded shape wrong: %+v", g)
	}

	greet, ok := g.Node(uuid.MustParse("22222222-2222-2222-2222-222222222222"))
	if !ok {
		t.Fatal("greet node missing")
	}
	if v, _ := greet.Value("text"); v.Kind != ValueText || v.Text != "welcome, traveler" {
		t.Fatalf("text slot: %+v", v)
	}
	if v, _ := greet.Value("type"); v.Kind != ValueNumber || v.Number != 1 {
		t.Fatalf("type slot: %+v", v)
	}
	if v, _ := greet.Value("position"); v.Kind != ValuePosition || v.Pos.X != 4 {
		t.Fatalf("position slot: %+v", v)
	}

	if g.Connections[0].FromConnector != ConnectorBottom {
		t.Fatalf("connector: %v", g.Connections[0].FromConnector)
	}
}

func TestDecodeGraphRejectsBadConnector(t *testing.T) {
	doc := `
name: broken
nodes:
  - id: 11111111-1111-1111-1111-111111111111
    kind: Script
    name: a
  - id: 22222222-2222-2222-2222-222222222222
    kind: Script
    name: b
connections:
  - from: 11111111-1111-1111-1111-111111111111
    connector: sideways
    to: 22222222-2222-2222-2222-222222222222
`
	if _, err := DecodeGraph([]byte(doc)); err == nil {
		t.Fatal("expected an error for an unknown connector")
	}
}
