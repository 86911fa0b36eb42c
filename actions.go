package server

import (
	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
)

// ActionKind discriminates player intents queued between ticks.
type ActionKind string

const (
	ActionMove   ActionKind = "move"
	ActionAnswer ActionKind = "answer"
	ActionSay    ActionKind = "say"
)

// Action is one player intent. Which fields matter depends on Kind.
type Action struct {
	Kind      ActionKind
	Direction string    // move: up, down, left, right
	Answer    uuid.UUID // answer: the chosen multi-choice id
	Text      string    // say
}

type queuedAction struct {
	instanceID uuid.UUID
	action     Action
}

// QueueAction records a player intent for the next tick. Safe to call from
// any goroutine; everything else on World belongs to the tick goroutine.
func (w *World) QueueAction(instanceID uuid.UUID, action Action) {
	w.pendingMu.Lock()
	w.pendingActions = append(w.pendingActions, queuedAction{instanceID: instanceID, action: action})
	w.pendingMu.Unlock()
}

// applyQueuedActions drains the intent queue in arrival order.
func (w *World) applyQueuedActions() {
	w.pendingMu.Lock()
	pending := w.pendingActions
	w.pendingActions = nil
	w.pendingMu.Unlock()

	for _, q := range pending {
		idx, ok := w.InstanceByID(q.instanceID)
		if !ok {
			continue
		}
		switch q.action.Kind {
		case ActionMove:
			w.applyMove(idx, q.action.Direction)
		case ActionAnswer:
			w.answerCommunication(idx, q.action.Answer)
		case ActionSay:
			w.applySay(idx, q.action.Text)
		}
	}
	w.actionDirectionText = ""
	w.actionSubjectText = ""
}

// applyMove steps the instance one tile in the given direction. A blocked
// step is dropped; stepping into a tile held by another instance instead
// targets that instance, so a bump starts an interaction.
func (w *World) applyMove(idx state.InstanceIndex, direction string) {
	inst := w.Instance(idx)
	if inst == nil || inst.Position == nil || inst.State != state.StateNormal {
		return
	}
	if inst.CurrTransitionTime != 0 {
		return
	}

	dest := *inst.Position
	switch direction {
	case "up":
		dest.Y--
	case "down":
		dest.Y++
	case "left":
		dest.X--
	case "right":
		dest.X++
	default:
		return
	}

	w.actionDirectionText = direction
	w.actionSubjectText = inst.Name

	if bumped := w.instanceAt(dest, idx); bumped != state.NoInstance {
		inst.TargetIndex = bumped
		if other := w.Instance(bumped); other != nil {
			other.TargetIndex = idx
		}
		return
	}

	from := *inst.Position
	inst.OldPosition = &from
	inst.Position = &dest
	beginTransition(inst, speedDelay(8))
}

// applySay broadcasts player speech to the world say log and the speaker's
// current target.
func (w *World) applySay(idx state.InstanceIndex, text string) {
	inst := w.Instance(idx)
	if inst == nil || text == "" {
		return
	}
	line := inst.Name + " says " + `"` + text + `".`
	message := state.Message{Type: state.MessageSay, Text: line, From: inst.Name}
	inst.Messages = append(inst.Messages, message)
	if target := w.Instance(inst.TargetIndex); target != nil {
		target.Messages = append(target.Messages, message)
	}
	w.say = append(w.say, line)
}

// instanceAt finds the Normal-state instance occupying the tile, if any.
func (w *World) instanceAt(pos behavior.Position, exclude state.InstanceIndex) state.InstanceIndex {
	for i, other := range w.instances {
		if other == nil || state.InstanceIndex(i) == exclude {
			continue
		}
		if other.State != state.StateNormal {
			continue
		}
		p := w.instancePosition(state.InstanceIndex(i))
		if p != nil && *p == pos {
			return state.InstanceIndex(i)
		}
	}
	return state.NoInstance
}
