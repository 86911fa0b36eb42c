package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/script"
	"mistvale/server/internal/state"
	"mistvale/server/logging"
)

// maxWalkDepth is the default bound on one tree walk. An authored cycle
// would otherwise recurse forever; hitting the ceiling aborts the walk with
// an engine error and leaves every other instance's processing intact.
const maxWalkDepth = 64

// ErrUnknownGraph is returned when instantiating a graph id that was never
// registered.
var ErrUnknownGraph = errors.New("unknown behavior graph")

// nodeIdentity locates a node for dispatch and expression caching.
type nodeIdentity struct {
	Kind  behavior.Kind
	Graph behavior.GraphID
	Node  behavior.NodeID
}

// nodeFunc implements one behavior node. It returns the connector the engine
// follows to the next node.
type nodeFunc func(w *World, instIdx state.InstanceIndex, id nodeIdentity) behavior.Connector

// ExecutedConnection traces one connection the engine followed, for the
// editor collaborator's debugging overlay.
type ExecutedConnection struct {
	Node      behavior.NodeID
	Connector behavior.Connector
}

// ChangedVariable traces a scope variable mutated by a dynamic script.
type ChangedVariable struct {
	Instance state.InstanceIndex
	Name     string
	Value    float64
}

// World owns the authoritative behavior-engine state: graphs, instances,
// scopes, the scripting engine, and region area membership. All mutation
// happens on the tick goroutine.
type World struct {
	behaviors *behavior.Library
	systems   *behavior.Library
	regions   map[int]*Region
	regionIDs []int

	instances []*state.Instance
	scopes    []*script.Scope
	freeSlots []state.InstanceIndex

	instanceIdx map[uuid.UUID]state.InstanceIndex

	// Per-player scopes for game-logic scripts, keyed by instance id.
	playerScopes map[uuid.UUID]*script.Scope

	engine   *script.Engine
	programs map[nodeSlotKey]*script.Program

	scriptErrors []ScriptError

	nodes map[behavior.NodeKind]nodeFunc
	areas map[behavior.NodeKind]areaNodeFunc

	rng *rand.Rand
	cfg Config

	publisher logging.Publisher

	tick uint64
	now  time.Time

	// Per-tick feedback channels for the editor/server collaborators.
	say                 []string
	executedConnections []ExecutedConnection
	changedVariables    []ChangedVariable
	lights              []Light

	// Execution context for the walk in progress.
	currExecutingTree behavior.NodeID
	currLocalIndex    state.InstanceIndex
	walkDepth         int
	walkAborted       bool

	// areaFilter is the instance set flowing through an area graph walk:
	// trigger nodes narrow it, action nodes act on it.
	areaFilter []state.InstanceIndex

	// Token substitution context for message templates.
	actionDirectionText string
	actionSubjectText   string

	// pendingActions is the only World field touched off the tick
	// goroutine; the hub queues into it under pendingMu.
	pendingMu      sync.Mutex
	pendingActions []queuedAction
}

// Light is a point light emitted by a light_area node, rebuilt every tick.
type Light struct {
	Region int
	X      int
	Y      int
	Radius int
}

// NewWorld creates a world with the given config. A nil publisher falls back
// to the nop publisher.
func NewWorld(cfg Config, publisher logging.Publisher) *World {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	cfg.Normalize()
	w := &World{
		behaviors:      behavior.NewLibrary(),
		systems:        behavior.NewLibrary(),
		regions:        make(map[int]*Region),
		instanceIdx:    make(map[uuid.UUID]state.InstanceIndex),
		playerScopes:   make(map[uuid.UUID]*script.Scope),
		engine:         script.New(),
		programs:       make(map[nodeSlotKey]*script.Program),
		rng:            rand.New(rand.NewSource(cfg.Seed)),
		cfg:            cfg,
		publisher:      publisher,
		currLocalIndex: state.NoInstance,
	}
	w.nodes = newNodeTable()
	w.areas = newAreaNodeTable()
	return w
}

// Engine exposes the scripting engine, mainly for compile-count probes.
func (w *World) Engine() *script.Engine { return w.engine }

// AddBehavior registers a character behavior graph.
func (w *World) AddBehavior(g *behavior.Graph) {
	if g == nil {
		return
	}
	g.Kind = behavior.KindBehaviors
	w.behaviors.Add(g)
}

// AddSystem registers a system graph callable via call_system.
func (w *World) AddSystem(g *behavior.Graph) {
	if g == nil {
		return
	}
	g.Kind = behavior.KindSystems
	w.systems.Add(g)
}

// AddRegion registers a region and its areas.
func (w *World) AddRegion(r *Region) {
	if r == nil {
		return
	}
	if _, exists := w.regions[r.ID]; !exists {
		w.regionIDs = append(w.regionIDs, r.ID)
	}
	w.regions[r.ID] = r
}

// Instance returns the live instance at the given index.
func (w *World) Instance(idx state.InstanceIndex) *state.Instance {
	if idx < 0 || int(idx) >= len(w.instances) {
		return nil
	}
	return w.instances[idx]
}

// Scope returns the variable scope of the instance at the given index.
func (w *World) Scope(idx state.InstanceIndex) *script.Scope {
	if idx < 0 || int(idx) >= len(w.scopes) {
		return nil
	}
	return w.scopes[idx]
}

// InstanceByID resolves a public instance id to its table index.
func (w *World) InstanceByID(id uuid.UUID) (state.InstanceIndex, bool) {
	idx, ok := w.instanceIdx[id]
	return idx, ok
}

// Instantiate creates a live instance of the given behavior graph. The graph
// is scanned once for tree roots, the spawn position, and variable nodes that
// seed the instance scope.
func (w *World) Instantiate(graphID behavior.GraphID, pos *behavior.Position) (state.InstanceIndex, error) {
	g, ok := w.behaviors.ByID(graphID)
	if !ok {
		return state.NoInstance, fmt.Errorf("instantiate %s: %w", graphID, ErrUnknownGraph)
	}

	scope := script.NewScope()
	seedDice(scope)
	scope.Set("inventory", state.NewInventory())

	spawn := pos
	for _, id := range sortedNodeIDs(g.Nodes) {
		node := g.Nodes[id]
		switch node.Kind {
		case behavior.NodeBehaviorType:
			if spawn == nil {
				if p, ok := node.Value("position"); ok {
					if position, ok := p.AsPosition(); ok {
						copied := position
						spawn = &copied
					}
				}
			}
		case behavior.NodeVariable:
			if v, ok := node.Value("value"); ok {
				if n, ok := v.AsNumber(); ok {
					scope.Set(node.Name, n)
					continue
				}
			}
			scope.Set(node.Name, float64(0))
		}
	}

	inst := &state.Instance{
		ID:          uuid.New(),
		Name:        g.Name,
		GraphID:     g.ID,
		State:       state.StateNormal,
		Position:    spawn,
		TargetIndex: state.NoInstance,
		TreeRoots:   g.TreeRoots(),
	}

	idx := w.placeInstance(inst, scope)
	w.publish(logging.Event{
		Type:     logging.EventInstanceSpawned,
		Actor:    logging.EntityRef{ID: inst.ID.String(), Kind: logging.EntityKindNPC},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  g.Name,
	})
	return idx, nil
}

// SpawnAll instantiates every registered behavior graph once, in graph id
// order. Called at startup after content loading.
func (w *World) SpawnAll() error {
	for _, id := range w.behaviors.IDs() {
		if _, err := w.Instantiate(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// InstantiatePlayer creates a graph-less instance driven by queued actions
// instead of behavior trees. Its scope still carries dice and an inventory so
// NPC scripts and trades can reach them.
func (w *World) InstantiatePlayer(name string, pos behavior.Position) state.InstanceIndex {
	scope := script.NewScope()
	seedDice(scope)
	scope.Set("inventory", state.NewInventory())

	spawn := pos
	inst := &state.Instance{
		ID:          uuid.New(),
		Name:        name,
		State:       state.StateNormal,
		Position:    &spawn,
		TargetIndex: state.NoInstance,
	}
	idx := w.placeInstance(inst, scope)
	w.publish(logging.Event{
		Type:     logging.EventInstanceSpawned,
		Actor:    logging.EntityRef{ID: inst.ID.String(), Kind: logging.EntityKindPlayer},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
		Payload:  name,
	})
	return idx
}

func (w *World) placeInstance(inst *state.Instance, scope *script.Scope) state.InstanceIndex {
	var idx state.InstanceIndex
	if n := len(w.freeSlots); n > 0 {
		idx = w.freeSlots[n-1]
		w.freeSlots = w.freeSlots[:n-1]
		w.instances[idx] = inst
		w.scopes[idx] = scope
	} else {
		idx = state.InstanceIndex(len(w.instances))
		w.instances = append(w.instances, inst)
		w.scopes = append(w.scopes, scope)
	}
	w.instanceIdx[inst.ID] = idx
	return idx
}

// RemoveInstance destroys an instance (player disconnect, NPC despawn) and
// scrubs every index-based back-reference to it. The slot is recycled.
func (w *World) RemoveInstance(idx state.InstanceIndex) {
	inst := w.Instance(idx)
	if inst == nil {
		return
	}
	w.scrubReferences(idx)
	delete(w.instanceIdx, inst.ID)
	delete(w.playerScopes, inst.ID)
	w.instances[idx] = nil
	w.scopes[idx] = nil
	w.freeSlots = append(w.freeSlots, idx)
	for _, region := range w.regions {
		region.forget(idx)
	}
	w.publish(logging.Event{
		Type:     logging.EventInstanceRemoved,
		Actor:    logging.EntityRef{ID: inst.ID.String(), Kind: logging.EntityKindNPC},
		Severity: logging.SeverityInfo,
		Category: logging.CategorySystem,
	})
}

// scrubReferences clears every other instance's target and locked tree that
// points at idx. Centralized so removal and state transitions cannot leave a
// dangling index behind.
func (w *World) scrubReferences(idx state.InstanceIndex) {
	for i, other := range w.instances {
		if other == nil || state.InstanceIndex(i) == idx {
			continue
		}
		if other.TargetIndex == idx {
			other.TargetIndex = state.NoInstance
			other.LockedTree = nil
		}
		kept := other.Communication[:0]
		for _, c := range other.Communication {
			if c.PlayerIndex != idx && c.NPCIndex != idx {
				kept = append(kept, c)
			}
		}
		other.Communication = kept
	}
}

// Tick advances the simulation one step: expire stale communications, apply
// queued player actions, execute every live instance's trees in index order,
// run the region area graphs, then swap the area membership snapshots.
func (w *World) Tick(now time.Time) {
	w.tick++
	w.now = now
	w.say = nil
	w.executedConnections = nil
	w.changedVariables = nil
	w.lights = nil
	w.scriptErrors = nil

	// Outboxes hold one tick's worth of traffic. Anything a subscriber did
	// not drain after the previous tick is stale, and unwatched NPC outboxes
	// must not grow without bound.
	for _, inst := range w.instances {
		if inst == nil {
			continue
		}
		inst.Messages = nil
		inst.Audio = nil
	}

	w.expireCommunications(now)
	w.applyQueuedActions()

	for i := range w.instances {
		idx := state.InstanceIndex(i)
		inst := w.instances[i]
		if inst == nil || inst.State == state.StatePurged {
			continue
		}
		w.advanceTransition(inst)
		if inst.SleepCycles > 0 {
			inst.SleepCycles--
			continue
		}
		// Killed instances keep their state and position but stop acting.
		if inst.State == state.StateKilled {
			continue
		}
		w.currLocalIndex = idx
		w.rollDice(idx)
		if inst.LockedTree != nil {
			w.ExecuteTree(idx, *inst.LockedTree)
			continue
		}
		for _, root := range inst.TreeRoots {
			w.ExecuteTree(idx, root)
		}
	}
	w.currLocalIndex = state.NoInstance

	w.runAreaGraphs()
	w.finishTick()
}

// advanceTransition steps the movement animation counters; when a transition
// completes the old position is dropped.
func (w *World) advanceTransition(inst *state.Instance) {
	if inst.CurrTransitionTime == 0 {
		return
	}
	inst.CurrTransitionTime++
	if inst.CurrTransitionTime > inst.MaxTransitionTime {
		inst.CurrTransitionTime = 0
		inst.MaxTransitionTime = 0
		inst.OldPosition = nil
	}
}

// finishTick swaps area membership snapshots. This is the single point where
// "current tick" becomes "previous tick"; enter/leave edge detection depends
// on it happening exactly once, at the end of the tick.
func (w *World) finishTick() {
	for _, region := range w.regions {
		region.swapSnapshots()
	}
}

// ExecuteTree walks one tree for the given instance, starting at the tree's
// root node. Each walk gets a fresh depth budget.
func (w *World) ExecuteTree(idx state.InstanceIndex, root behavior.NodeID) {
	inst := w.Instance(idx)
	if inst == nil {
		return
	}
	g, ok := w.behaviors.ByID(inst.GraphID)
	if !ok {
		return
	}
	w.walkDepth = 0
	w.walkAborted = false
	w.executeNode(idx, g, root)
}

// executeSystemsTree walks a tree inside a system graph on behalf of the
// given instance (call_system).
func (w *World) executeSystemsTree(idx state.InstanceIndex, systemID behavior.GraphID, root behavior.NodeID) {
	g, ok := w.systems.ByID(systemID)
	if !ok {
		return
	}
	w.executeNode(idx, g, root)
}

// executeNode dispatches one node and recursively follows the connector it
// returns. A missing outgoing connection terminates the walk silently; a
// missing dispatch entry falls through the Bottom connector, which is how
// structural nodes like the BehaviorTree root chain into their children.
func (w *World) executeNode(idx state.InstanceIndex, g *behavior.Graph, nodeID behavior.NodeID) {
	if w.walkAborted {
		return
	}
	if w.walkDepth >= w.cfg.MaxWalkDepth {
		w.walkAborted = true
		w.publish(logging.Event{
			Type:     logging.EventEngineError,
			Actor:    logging.EntityRef{ID: g.ID.String(), Kind: logging.EntityKindWorld},
			Severity: logging.SeverityError,
			Category: logging.CategorySystem,
			Payload:  fmt.Sprintf("node walk exceeded depth %d at node %s; authored cycle?", w.cfg.MaxWalkDepth, nodeID),
		})
		return
	}
	w.walkDepth++
	defer func() { w.walkDepth-- }()

	node, ok := g.Node(nodeID)
	if !ok {
		return
	}
	if node.Kind == behavior.NodeBehaviorTree {
		w.currExecutingTree = nodeID
	}

	connector := behavior.ConnectorBottom
	if fn, ok := w.nodes[node.Kind]; ok {
		connector = fn(w, idx, nodeIdentity{Kind: g.Kind, Graph: g.ID, Node: nodeID})
	}

	next, ok := g.NextNode(nodeID, connector)
	if !ok {
		return
	}
	w.executedConnections = append(w.executedConnections, ExecutedConnection{Node: nodeID, Connector: connector})
	w.executeNode(idx, g, next)
}

// localInstanceIndex is the instance whose behavior graph is executing. When
// a player answer drives an NPC's locked tree, the instance index passed to
// node functions is the player while the local index is the NPC.
func (w *World) localInstanceIndex(idx state.InstanceIndex) state.InstanceIndex {
	if w.currLocalIndex != state.NoInstance {
		return w.currLocalIndex
	}
	return idx
}

// resolveForTarget applies the common "for" slot convention: 0 executes
// against the local instance, anything else against the current target.
func (w *World) resolveForTarget(idx state.InstanceIndex, id nodeIdentity) (state.InstanceIndex, bool) {
	v, ok := w.nodeValue(id, "for")
	if !ok {
		return w.localInstanceIndex(idx), false
	}
	sel, _ := v.AsInt()
	if sel == 0 {
		return w.localInstanceIndex(idx), false
	}
	inst := w.Instance(idx)
	if inst == nil || inst.TargetIndex == state.NoInstance {
		return state.NoInstance, true
	}
	return inst.TargetIndex, true
}

// graphFor resolves the graph a node identity lives in.
func (w *World) graphFor(id nodeIdentity) (*behavior.Graph, bool) {
	switch id.Kind {
	case behavior.KindSystems:
		return w.systems.ByID(id.Graph)
	case behavior.KindRegions:
		for _, region := range w.regions {
			for _, area := range region.Areas {
				if area.Graph != nil && area.Graph.ID == id.Graph {
					return area.Graph, true
				}
			}
		}
		return nil, false
	default:
		return w.behaviors.ByID(id.Graph)
	}
}

// nodeValue fetches a value slot from the identified node.
func (w *World) nodeValue(id nodeIdentity, slot string) (behavior.Value, bool) {
	g, ok := w.graphFor(id)
	if !ok {
		return behavior.Value{}, false
	}
	node, ok := g.Node(id.Node)
	if !ok {
		return behavior.Value{}, false
	}
	return node.Value(slot)
}

// DrainOutbox empties and returns the instance's pending messages and audio
// cues, along with the still-open multi-choice prompts (which persist until
// answered or expired).
func (w *World) DrainOutbox(idx state.InstanceIndex) ([]state.Message, []string, []state.MultiChoiceData) {
	inst := w.Instance(idx)
	if inst == nil {
		return nil, nil, nil
	}
	messages, audio := inst.ClearOutbox()
	return messages, audio, inst.MultiChoiceData
}

// Say returns the world-level say log accumulated this tick.
func (w *World) Say() []string { return w.say }

// ExecutedConnections returns this tick's connection trace.
func (w *World) ExecutedConnections() []ExecutedConnection { return w.executedConnections }

// ChangedVariables returns this tick's scope mutation trace.
func (w *World) ChangedVariables() []ChangedVariable { return w.changedVariables }

// Lights returns the point lights emitted this tick.
func (w *World) Lights() []Light { return w.lights }

// TickCount returns the number of completed ticks.
func (w *World) TickCount() uint64 { return w.tick }

// Now returns the current tick's timestamp.
func (w *World) Now() time.Time { return w.now }

func (w *World) publish(event logging.Event) {
	event.Tick = w.tick
	if event.Time.IsZero() {
		event.Time = w.now
	}
	w.publisher.Publish(context.Background(), event)
}

// seedDice pushes the d2..d20 and d100 roll variables authored scripts use.
func seedDice(scope *script.Scope) {
	for d := 2; d <= 20; d += 2 {
		scope.Set(fmt.Sprintf("d%d", d), float64(0))
	}
	scope.Set("d100", float64(0))
}

// rollDice re-rolls the dice variables in the instance scope. Every tree the
// instance runs this tick sees the same rolls.
func (w *World) rollDice(idx state.InstanceIndex) {
	scope := w.Scope(idx)
	if scope == nil {
		return
	}
	for d := 2; d <= 20; d += 2 {
		scope.Set(fmt.Sprintf("d%d", d), float64(w.rng.Intn(d)+1))
	}
	scope.Set("d100", float64(w.rng.Intn(100)+1))
}

func sortedNodeIDs(nodes map[behavior.NodeID]*behavior.Node) []behavior.NodeID {
	ids := make([]behavior.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sortUUIDs(ids)
	return ids
}
