package server

import (
	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

// newAreaNodeTable builds the dispatch table for region trigger graphs. Area
// nodes run per area, not per instance: trigger nodes narrow the world's
// area filter and action nodes apply to whatever the filter holds.
func newAreaNodeTable() map[behavior.NodeKind]areaNodeFunc {
	return map[behavior.NodeKind]areaNodeFunc{
		behavior.NodeAlwaysArea:   areaAlways,
		behavior.NodeEnterArea:    areaEnter,
		behavior.NodeLeaveArea:    areaLeave,
		behavior.NodeInsideArea:   areaInside,
		behavior.NodeTeleportArea: areaTeleport,
		behavior.NodeMessageArea:  areaMessage,
		behavior.NodeAudioArea:    areaAudio,
		behavior.NodeLightArea:    areaLight,
	}
}

// areaAlways selects every current occupant and chains unconditionally.
func areaAlways(w *World, region *Region, areaIdx int, _ *behavior.Node) behavior.Connector {
	area := region.Areas[areaIdx]
	w.areaFilter = area.Occupants()
	return behavior.ConnectorRight
}

// areaEnter selects the occupants that were not inside last tick. The edge
// fires once per entering instance: an instance that stays put is inside
// both snapshots and never selected again. A truthy "character" slot
// narrows the trigger to entries into a previously empty area.
func areaEnter(w *World, region *Region, areaIdx int, node *behavior.Node) behavior.Connector {
	area := region.Areas[areaIdx]
	w.areaFilter = nil
	for _, idx := range area.occupants {
		if !area.wasInside(idx) {
			w.areaFilter = append(w.areaFilter, idx)
		}
	}
	if len(w.areaFilter) == 0 {
		return behavior.ConnectorFail
	}
	if firstEntrantOnly(node) && len(area.prev) > 0 {
		return behavior.ConnectorFail
	}
	return behavior.ConnectorRight
}

// areaLeave selects the instances that were inside last tick and are gone
// now, each leaver individually. With a truthy "character" slot it fires
// only when the last occupant has left and the area stands empty.
func areaLeave(w *World, region *Region, areaIdx int, node *behavior.Node) behavior.Connector {
	area := region.Areas[areaIdx]
	w.areaFilter = nil
	for _, idx := range area.prev {
		if !isOccupant(area, idx) {
			w.areaFilter = append(w.areaFilter, idx)
		}
	}
	if len(w.areaFilter) == 0 {
		return behavior.ConnectorFail
	}
	if firstEntrantOnly(node) && len(area.occupants) > 0 {
		return behavior.ConnectorFail
	}
	return behavior.ConnectorRight
}

// areaInside selects every current occupant, firing while the area is
// populated.
func areaInside(w *World, region *Region, areaIdx int, _ *behavior.Node) behavior.Connector {
	area := region.Areas[areaIdx]
	w.areaFilter = area.Occupants()
	if len(w.areaFilter) > 0 {
		return behavior.ConnectorRight
	}
	return behavior.ConnectorFail
}

// areaTeleport moves every filtered instance to the node's position,
// cancelling any movement transition in flight.
func areaTeleport(w *World, _ *Region, _ int, node *behavior.Node) behavior.Connector {
	v, ok := node.Value("position")
	if !ok {
		return behavior.ConnectorFail
	}
	dest, ok := v.AsPosition()
	if !ok {
		return behavior.ConnectorFail
	}
	for _, idx := range w.areaFilter {
		inst := w.Instance(idx)
		if inst == nil {
			continue
		}
		target := dest
		inst.Position = &target
		inst.OldPosition = nil
		inst.CurrTransitionTime = 0
		inst.MaxTransitionTime = 0
	}
	return behavior.ConnectorFail
}

// areaMessage pushes a status message to every filtered instance's outbox.
func areaMessage(w *World, region *Region, _ int, node *behavior.Node) behavior.Connector {
	text := ""
	if v, ok := node.Value("text"); ok {
		text, _ = v.AsText()
	}
	if text == "" {
		return behavior.ConnectorFail
	}
	message := state.Message{Type: state.MessageStatus, Text: text, From: region.Name}
	for _, idx := range w.areaFilter {
		if inst := w.Instance(idx); inst != nil {
			inst.Messages = append(inst.Messages, message)
		}
	}
	return behavior.ConnectorFail
}

// areaAudio queues an audio cue on every filtered instance's outbox.
func areaAudio(w *World, _ *Region, _ int, node *behavior.Node) behavior.Connector {
	name := ""
	if v, ok := node.Value("audio"); ok {
		name, _ = v.AsText()
	}
	if name == "" {
		return behavior.ConnectorFail
	}
	for _, idx := range w.areaFilter {
		if inst := w.Instance(idx); inst != nil {
			inst.Audio = append(inst.Audio, name)
		}
	}
	return behavior.ConnectorFail
}

// areaLight emits a point light for this tick. Lights are a render-feed
// trace, rebuilt every tick like the say log.
func areaLight(w *World, region *Region, _ int, node *behavior.Node) behavior.Connector {
	v, ok := node.Value("position")
	if !ok {
		return behavior.ConnectorFail
	}
	pos, ok := v.AsPosition()
	if !ok {
		return behavior.ConnectorFail
	}
	radius := 3
	if v, ok := node.Value("radius"); ok {
		if n, ok := v.AsInt(); ok {
			radius = n
		}
	}
	w.lights = append(w.lights, Light{Region: region.ID, X: pos.X, Y: pos.Y, Radius: radius})
	return behavior.ConnectorFail
}

// firstEntrantOnly reads the "character" slot that narrows an edge trigger
// to the transition between an empty and a populated area.
func firstEntrantOnly(node *behavior.Node) bool {
	v, ok := node.Value("character")
	if !ok {
		return false
	}
	n, ok := v.AsNumber()
	return ok && n == 1
}

func isOccupant(area *Area, idx state.InstanceIndex) bool {
	for _, existing := range area.occupants {
		if existing == idx {
			return true
		}
	}
	return false
}
