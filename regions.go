package server

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

// Region is one map of the world. Its areas carry their own behavior graphs
// plus the membership tracking the trigger nodes diff against.
type Region struct {
	ID    int
	Name  string
	Areas []*Area
}

// Area is a named tile set inside a region with an attached trigger graph.
type Area struct {
	Name  string
	Tiles map[[2]int]struct{}
	Graph *behavior.Graph

	// occupants is rebuilt from scratch every tick before the trigger graph
	// runs; prev is last tick's snapshot, swapped in at the tick boundary.
	occupants []state.InstanceIndex
	prev      []state.InstanceIndex
}

// Contains reports whether the tile position lies in the area.
func (a *Area) Contains(x, y int) bool {
	if a == nil {
		return false
	}
	_, ok := a.Tiles[[2]int{x, y}]
	return ok
}

// track records an instance as inside the area this tick.
func (a *Area) track(idx state.InstanceIndex) {
	for _, existing := range a.occupants {
		if existing == idx {
			return
		}
	}
	a.occupants = append(a.occupants, idx)
}

// wasInside reports previous-tick membership for one instance.
func (a *Area) wasInside(idx state.InstanceIndex) bool {
	for _, existing := range a.prev {
		if existing == idx {
			return true
		}
	}
	return false
}

// Occupants returns the instances tracked inside the area this tick.
func (a *Area) Occupants() []state.InstanceIndex {
	out := make([]state.InstanceIndex, len(a.occupants))
	copy(out, a.occupants)
	return out
}

func (r *Region) swapSnapshots() {
	for _, area := range r.Areas {
		area.prev = area.occupants
		area.occupants = nil
	}
}

// forget drops a removed instance from both snapshots so a recycled slot
// cannot inherit stale membership.
func (r *Region) forget(idx state.InstanceIndex) {
	for _, area := range r.Areas {
		area.occupants = withoutIndex(area.occupants, idx)
		area.prev = withoutIndex(area.prev, idx)
	}
}

func withoutIndex(list []state.InstanceIndex, idx state.InstanceIndex) []state.InstanceIndex {
	kept := list[:0]
	for _, existing := range list {
		if existing != idx {
			kept = append(kept, existing)
		}
	}
	return kept
}

// instancesInRegion lists live instances positioned in the region, in index
// order.
func (w *World) instancesInRegion(regionID int) []state.InstanceIndex {
	var out []state.InstanceIndex
	for i, inst := range w.instances {
		if inst == nil || inst.State == state.StatePurged {
			continue
		}
		if pos := w.instancePosition(state.InstanceIndex(i)); pos != nil && pos.Region == regionID {
			out = append(out, state.InstanceIndex(i))
		}
	}
	return out
}

// runAreaGraphs rebuilds every area's membership from the current instance
// positions, then executes each area's trigger graph, regions in ascending id
// order, areas in authored order.
func (w *World) runAreaGraphs() {
	ids := make([]int, len(w.regionIDs))
	copy(ids, w.regionIDs)
	sort.Ints(ids)
	for _, regionID := range ids {
		region := w.regions[regionID]
		inhabitants := w.instancesInRegion(regionID)
		for _, area := range region.Areas {
			for _, idx := range inhabitants {
				inst := w.Instance(idx)
				if inst == nil || inst.State != state.StateNormal {
					continue
				}
				if pos := w.instancePosition(idx); pos != nil && area.Contains(pos.X, pos.Y) {
					area.track(idx)
				}
			}
		}
		for areaIdx, area := range region.Areas {
			if area.Graph == nil {
				continue
			}
			for _, entry := range area.Graph.EntryNodes() {
				w.executeAreaNode(region, areaIdx, entry)
			}
		}
	}
}

// areaNodeFunc implements one region trigger node.
type areaNodeFunc func(w *World, region *Region, areaIdx int, node *behavior.Node) behavior.Connector

// executeAreaNode dispatches an area node and follows its connector chain,
// mirroring the behavior-node walk but over the area dispatch table.
func (w *World) executeAreaNode(region *Region, areaIdx int, nodeID behavior.NodeID) {
	area := region.Areas[areaIdx]
	w.walkDepth = 0
	w.walkAborted = false
	w.areaFilter = nil
	w.walkAreaNode(region, areaIdx, area.Graph, nodeID)
}

func (w *World) walkAreaNode(region *Region, areaIdx int, g *behavior.Graph, nodeID behavior.NodeID) {
	if w.walkAborted || w.walkDepth >= w.cfg.MaxWalkDepth {
		w.walkAborted = true
		return
	}
	w.walkDepth++
	defer func() { w.walkDepth-- }()

	node, ok := g.Node(nodeID)
	if !ok {
		return
	}
	connector := behavior.ConnectorFail
	if fn, ok := w.areas[node.Kind]; ok {
		connector = fn(w, region, areaIdx, node)
	}
	next, ok := g.NextNode(nodeID, connector)
	if !ok {
		return
	}
	w.executedConnections = append(w.executedConnections, ExecutedConnection{Node: nodeID, Connector: connector})
	w.walkAreaNode(region, areaIdx, g, next)
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
