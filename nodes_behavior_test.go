package server

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

func TestMessageSayFormatting(t *testing.T) {
	w := newTestWorld(t)

	idx := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeMessage, "greet", map[string]behavior.Value{
			"type": behavior.NumberValue(1),
			"text": behavior.TextValue("hello there"),
		})}
	})

	w.Tick(time.Unix(1, 0))

	want := `test-npc says "hello there".`
	if len(w.Say()) != 1 || w.Say()[0] != want {
		t.Fatalf("say formatting: got %q, want %q", w.Say(), want)
	}
	inst := w.Instance(idx)
	if len(inst.Messages) != 1 || inst.Messages[0].Type != state.MessageSay {
		t.Fatalf("speaker outbox wrong: %+v", inst.Messages)
	}
}

func TestMessageReachesTargetOutbox(t *testing.T) {
	w := newTestWorld(t)

	speaker := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeMessage, "warn", map[string]behavior.Value{
			"text": behavior.TextValue("halt"),
		})}
	})
	listener := spawnAt(t, w, behavior.Position{X: 1}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Instance(speaker).TargetIndex = listener

	w.Tick(time.Unix(1, 0))

	if got := w.Instance(listener).Messages; len(got) != 1 || got[0].Text != "halt" {
		t.Fatalf("target outbox: %+v", got)
	}
}

func TestPathfinderReachesDestination(t *testing.T) {
	w := newTestWorld(t)

	dest := behavior.Position{Region: 0, X: 3, Y: 0}
	idx := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodePathfinder, "walk", map[string]behavior.Value{
			"destination": behavior.PositionValue(dest),
			"speed":       behavior.TextValue("10"),
		})}
	})

	for i := 0; i < 12; i++ {
		w.Tick(time.Unix(int64(i), 0))
	}

	if pos := w.Instance(idx).Position; pos == nil || *pos != dest {
		t.Fatalf("pathfinder did not arrive: %+v", pos)
	}
}

func TestPathfinderAtDestinationSucceeds(t *testing.T) {
	w := newTestWorld(t)

	here := behavior.Position{Region: 0, X: 2, Y: 2}
	idx := spawnAt(t, w, here, func(g *behavior.Graph) []behavior.NodeID {
		walk := addNode(g, behavior.NodePathfinder, "walk", map[string]behavior.Value{
			"destination": behavior.PositionValue(here),
			"speed":       behavior.TextValue("10"),
		})
		arrived := addNode(g, behavior.NodeMessage, "arrived", map[string]behavior.Value{
			"text": behavior.TextValue("arrived"),
		})
		connect(g, walk, behavior.ConnectorSuccess, arrived)
		return []behavior.NodeID{walk}
	})

	w.Tick(time.Unix(1, 0))

	if len(w.Say()) != 1 || w.Say()[0] != "arrived" {
		t.Fatalf("distance zero should follow Success: %q", w.Say())
	}
	if w.Instance(idx).Position == nil || *w.Instance(idx).Position != here {
		t.Fatal("instance should not have moved")
	}
}

func TestLookoutRangeAndTargeting(t *testing.T) {
	w := newTestWorld(t)

	watcher := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeLookout, "scan", map[string]behavior.Value{
			"max_distance": behavior.TextValue("7"),
			"expression":   behavior.TextValue("true"),
		})}
	})
	near := spawnAt(t, w, behavior.Position{X: 5}, func(g *behavior.Graph) []behavior.NodeID { return nil })
	spawnAt(t, w, behavior.Position{X: 10}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Tick(time.Unix(1, 0))

	if got := w.Instance(watcher).TargetIndex; got != near {
		t.Fatalf("lookout targeted %d, want %d", got, near)
	}
}

func TestLookoutIgnoresOutOfRange(t *testing.T) {
	w := newTestWorld(t)

	watcher := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeLookout, "scan", map[string]behavior.Value{
			"max_distance": behavior.TextValue("7"),
			"expression":   behavior.TextValue("true"),
		})}
	})
	spawnAt(t, w, behavior.Position{X: 10}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Tick(time.Unix(1, 0))

	if got := w.Instance(watcher).TargetIndex; got != state.NoInstance {
		t.Fatalf("lookout should have cleared its target, got %d", got)
	}
}

func TestCloseInStopsAtDistance(t *testing.T) {
	w := newTestWorld(t)

	chaser := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeCloseIn, "chase", map[string]behavior.Value{
			"to_distance": behavior.TextValue("1"),
			"speed":       behavior.TextValue("10"),
		})}
	})
	prey := spawnAt(t, w, behavior.Position{X: 4}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Instance(chaser).TargetIndex = prey

	for i := 0; i < 10; i++ {
		w.Tick(time.Unix(int64(i), 0))
	}

	pos := w.Instance(chaser).Position
	if pos == nil {
		t.Fatal("chaser lost its position")
	}
	if d := computeDistance(*pos, *w.Instance(prey).Position); d > 1 {
		t.Fatalf("chaser stopped at distance %v", d)
	}
	if *pos == *w.Instance(prey).Position {
		t.Fatal("chaser should stop next to the prey, not on it")
	}
}

func TestHasTargetClearsStaleReference(t *testing.T) {
	w := newTestWorld(t)

	npc := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		check := addNode(g, behavior.NodeHasTarget, "check", nil)
		found := addNode(g, behavior.NodeMessage, "found", map[string]behavior.Value{
			"text": behavior.TextValue("target"),
		})
		connect(g, check, behavior.ConnectorSuccess, found)
		return []behavior.NodeID{check}
	})
	other := spawnAt(t, w, behavior.Position{X: 1}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Instance(npc).TargetIndex = other
	w.Instance(other).State = state.StateKilled

	w.Tick(time.Unix(1, 0))

	if len(w.Say()) != 0 {
		t.Fatal("killed target should not count as present")
	}
	if w.Instance(npc).TargetIndex != state.NoInstance {
		t.Fatal("stale target not cleared")
	}
}

func TestLockTreeOverridesRoots(t *testing.T) {
	w := newTestWorld(t)

	g := newTestGraph("guard")
	mainRoot := addNode(g, behavior.NodeBehaviorTree, "main", nil)
	lock := addNode(g, behavior.NodeLockTree, "lock", map[string]behavior.Value{
		"tree": behavior.TextValue("alert"),
		"for":  behavior.NumberValue(0),
	})
	connect(g, mainRoot, behavior.ConnectorBottom, lock)

	alertRoot := addNode(g, behavior.NodeBehaviorTree, "alert", nil)
	shout := addNode(g, behavior.NodeMessage, "shout", map[string]behavior.Value{
		"text": behavior.TextValue("alert!"),
	})
	connect(g, alertRoot, behavior.ConnectorBottom, shout)
	w.AddBehavior(g)

	idx, err := w.Instantiate(g.ID, &behavior.Position{})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	w.Tick(time.Unix(1, 0))
	if w.Instance(idx).LockedTree == nil {
		t.Fatal("lock_tree did not set the locked tree")
	}

	w.Tick(time.Unix(2, 0))
	if len(w.Say()) != 1 || w.Say()[0] != "alert!" {
		t.Fatalf("locked tree should replace the roots: %q", w.Say())
	}
}

func TestUnlockTreeRestoresRoots(t *testing.T) {
	w := newTestWorld(t)

	g := newTestGraph("guard")
	mainRoot := addNode(g, behavior.NodeBehaviorTree, "main", nil)
	calm := addNode(g, behavior.NodeMessage, "calm", map[string]behavior.Value{
		"text": behavior.TextValue("calm"),
	})
	connect(g, mainRoot, behavior.ConnectorBottom, calm)

	alertRoot := addNode(g, behavior.NodeBehaviorTree, "alert", nil)
	unlock := addNode(g, behavior.NodeUnlockTree, "unlock", map[string]behavior.Value{
		"for": behavior.NumberValue(0),
	})
	connect(g, alertRoot, behavior.ConnectorBottom, unlock)
	w.AddBehavior(g)

	idx, err := w.Instantiate(g.ID, &behavior.Position{})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	alertID, ok := g.TreeByName("alert")
	if !ok {
		t.Fatal("alert tree not found")
	}
	locked := alertID
	w.Instance(idx).LockedTree = &locked

	w.Tick(time.Unix(1, 0))
	if w.Instance(idx).LockedTree != nil {
		t.Fatal("unlock_tree did not clear the lock")
	}

	w.Tick(time.Unix(2, 0))
	if len(w.Say()) != 1 || w.Say()[0] != "calm" {
		t.Fatalf("roots should run again after unlock: %q", w.Say())
	}
}

func TestSetStateScrubsWatchers(t *testing.T) {
	w := newTestWorld(t)

	victim := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeSetState, "die", map[string]behavior.Value{
			"state": behavior.NumberValue(2),
			"for":   behavior.NumberValue(0),
		})}
	})
	watcher := spawnAt(t, w, behavior.Position{X: 1}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.Instance(watcher).TargetIndex = victim

	w.Tick(time.Unix(1, 0))

	if w.Instance(victim).State != state.StateKilled {
		t.Fatalf("state transition missing: %v", w.Instance(victim).State)
	}
	if w.Instance(watcher).TargetIndex != state.NoInstance {
		t.Fatal("watcher target not scrubbed on state transition")
	}
}

func TestCallTreeRunsNamedTree(t *testing.T) {
	w := newTestWorld(t)

	g := newTestGraph("caller")
	mainRoot := addNode(g, behavior.NodeBehaviorTree, "main", nil)
	call := addNode(g, behavior.NodeCallTree, "call", map[string]behavior.Value{
		"tree": behavior.TextValue("helper"),
	})
	connect(g, mainRoot, behavior.ConnectorBottom, call)

	helperRoot := addNode(g, behavior.NodeBehaviorTree, "helper", nil)
	speak := addNode(g, behavior.NodeMessage, "speak", map[string]behavior.Value{
		"text": behavior.TextValue("from helper"),
	})
	connect(g, helperRoot, behavior.ConnectorBottom, speak)
	w.AddBehavior(g)

	if _, err := w.Instantiate(g.ID, &behavior.Position{}); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}

	w.Tick(time.Unix(1, 0))

	joined := strings.Join(w.Say(), "|")
	if !strings.Contains(joined, "from helper") {
		t.Fatalf("call_behavior did not run the named tree: %q", joined)
	}
}

func TestCallSystemRunsSharedGraph(t *testing.T) {
	w := newTestWorld(t)

	system := newTestGraph("economy")
	sysRoot := addNode(system, behavior.NodeBehaviorTree, "restock", nil)
	bump := addNode(system, behavior.NodeScript, "bump", map[string]behavior.Value{
		"script": behavior.TextValue("stock = stock + 1"),
	})
	connect(system, sysRoot, behavior.ConnectorBottom, bump)
	w.AddSystem(system)

	idx := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID {
		return []behavior.NodeID{addNode(g, behavior.NodeCallSystem, "call", map[string]behavior.Value{
			"system": behavior.TextValue("economy"),
			"tree":   behavior.TextValue("restock"),
		})}
	})
	w.Scope(idx).Set("stock", float64(0))

	w.Tick(time.Unix(1, 0))

	if n, ok := w.Scope(idx).Number("stock"); !ok || n != 1 {
		t.Fatalf("system tree did not run against the caller scope: stock=%v ok=%v", n, ok)
	}
	if w.Instance(idx).SystemsID == uuid.Nil {
		t.Fatal("systems graph id not recorded on the instance")
	}
}

func TestSubstituteTokensExpandsBoth(t *testing.T) {
	w := newTestWorld(t)
	idx := spawnAt(t, w, behavior.Position{}, func(g *behavior.Graph) []behavior.NodeID { return nil })

	w.actionDirectionText = "north"
	w.actionSubjectText = "gate"

	got := w.substituteTokens(idx, "You push the ${SUBJECT} to the ${DIRECTION}.")
	if got != "You push the gate to the north." {
		t.Fatalf("substituted text: %q", got)
	}
}
