package server

import (
	"math"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

// computeDistance returns the Euclidean distance between two tile positions.
// Callers that threshold on it decide whether to round first: lookout
// compares the raw value, random_walk and pathfinder round.
func computeDistance(a, b behavior.Position) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// instancePosition returns where an instance currently is for membership and
// distance checks, preferring the pre-transition position while a movement
// animation is in flight.
func (w *World) instancePosition(idx state.InstanceIndex) *behavior.Position {
	inst := w.Instance(idx)
	if inst == nil {
		return nil
	}
	if inst.OldPosition != nil {
		return inst.OldPosition
	}
	return inst.Position
}

// tileOccupied reports whether a Normal-state instance other than exclude
// stands on the tile.
func (w *World) tileOccupied(pos behavior.Position, exclude state.InstanceIndex) bool {
	for i, inst := range w.instances {
		if inst == nil || state.InstanceIndex(i) == exclude {
			continue
		}
		if inst.State != state.StateNormal || inst.Position == nil {
			continue
		}
		if *inst.Position == pos {
			return true
		}
	}
	return false
}

// walkTowards advances the instance one greedy step toward the destination:
// the axis with the larger remaining delta moves first, falling back to the
// other axis when the preferred tile is occupied. Returns Right when a step
// began, Fail when blocked or when either position is missing.
func (w *World) walkTowards(idx state.InstanceIndex, from, to *behavior.Position) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil || from == nil || to == nil {
		return behavior.ConnectorFail
	}
	dx := to.X - from.X
	dy := to.Y - from.Y
	if dx == 0 && dy == 0 {
		return behavior.ConnectorFail
	}

	stepX := behavior.Position{Region: from.Region, X: from.X + sign(dx), Y: from.Y}
	stepY := behavior.Position{Region: from.Region, X: from.X, Y: from.Y + sign(dy)}

	var candidates []behavior.Position
	if abs(dx) >= abs(dy) {
		candidates = append(candidates, stepX)
		if dy != 0 {
			candidates = append(candidates, stepY)
		}
	} else {
		candidates = append(candidates, stepY)
		if dx != 0 {
			candidates = append(candidates, stepX)
		}
	}

	for _, next := range candidates {
		if w.tileOccupied(next, idx) {
			continue
		}
		old := *from
		inst.OldPosition = &old
		moved := next
		inst.Position = &moved
		return behavior.ConnectorRight
	}
	return behavior.ConnectorFail
}

// speedDelay maps the authored speed (0-10, clamped) onto the movement
// cadence countdown: faster speed, fewer skipped ticks.
func speedDelay(speed float64) int {
	return int(10 - clampFloat(speed, 0, 10))
}

// beginTransition arms the animation counters after a real step.
func beginTransition(inst *state.Instance, delay int) {
	inst.MaxTransitionTime = delay + 1
	inst.CurrTransitionTime = 1
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
