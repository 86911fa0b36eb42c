package server

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"mistvale/server/internal/behavior"
	"mistvale/server/internal/state"
	"mistvale/server/logging"
)

// newNodeTable builds the dispatch table mapping node kinds to their
// implementations. Structural kinds (BehaviorTree, BehaviorType, variables)
// are deliberately absent: they dispatch to nothing and fall through Bottom.
func newNodeTable() map[behavior.NodeKind]nodeFunc {
	return map[behavior.NodeKind]nodeFunc{
		behavior.NodeExpression:  nodeExpression,
		behavior.NodeScript:      nodeScript,
		behavior.NodeMessage:     nodeMessage,
		behavior.NodeAudio:       nodeAudio,
		behavior.NodeRandomWalk:  nodeRandomWalk,
		behavior.NodePathfinder:  nodePathfinder,
		behavior.NodeLookout:     nodeLookout,
		behavior.NodeCloseIn:     nodeCloseIn,
		behavior.NodeHasTarget:   nodeHasTarget,
		behavior.NodeMultiChoice: nodeMultiChoice,
		behavior.NodeSell:        nodeSell,
		behavior.NodeCallSystem:  nodeCallSystem,
		behavior.NodeCallTree:    nodeCallTree,
		behavior.NodeLockTree:    nodeLockTree,
		behavior.NodeUnlockTree:  nodeUnlockTree,
		behavior.NodeSetState:    nodeSetState,
	}
}

// nodeExpression gates a branch on a boolean script. Evaluation failure is
// condition-false, never an error.
func nodeExpression(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	if ok, valid := w.evalBool(idx, id, "expression"); valid && ok {
		return behavior.ConnectorSuccess
	}
	return behavior.ConnectorFail
}

// nodeScript runs a side-effecting script and always falls through.
func nodeScript(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	w.evalDynamic(idx, id, "script")
	return behavior.ConnectorBottom
}

// nodeMessage formats the node's text and pushes it to the instance's outbox,
// the target's outbox, and the world say log.
func nodeMessage(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil {
		return behavior.ConnectorBottom
	}

	messageType := w.messageTypeSlot(id)
	text := "Message"
	if v, ok := w.nodeValue(id, "text"); ok {
		if t, ok := v.AsText(); ok {
			text = t
		}
	}
	text = w.substituteTokens(idx, text)

	if messageType == state.MessageSay {
		text = fmt.Sprintf("%s says %q.", inst.Name, text)
	}

	message := state.Message{Type: messageType, Text: text, From: inst.Name}
	inst.Messages = append(inst.Messages, message)
	if target := w.Instance(inst.TargetIndex); target != nil {
		target.Messages = append(target.Messages, message)
	}
	w.say = append(w.say, text)
	return behavior.ConnectorBottom
}

// nodeAudio queues an audio cue on the instance outbox.
func nodeAudio(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil {
		return behavior.ConnectorBottom
	}
	if v, ok := w.nodeValue(id, "audio"); ok {
		if name, ok := v.AsText(); ok && name != "" {
			inst.Audio = append(inst.Audio, name)
		}
	}
	return behavior.ConnectorBottom
}

// nodeRandomWalk wanders around the node's anchor position: while within
// max_distance of the anchor, one of the four unit steps is chosen at random;
// once strayed beyond it, the instance walks back toward the anchor.
func nodeRandomWalk(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil || inst.Position == nil {
		return behavior.ConnectorFail
	}
	pos := *inst.Position

	maxDistance := float64(0)
	if n, ok := w.evalNumber(idx, id, "max_distance"); ok {
		maxDistance = n
	}

	var dest *behavior.Position
	if v, ok := w.nodeValue(id, "position"); ok {
		if anchor, ok := v.AsPosition(); ok {
			if distance := math.Round(computeDistance(pos, anchor)); distance <= maxDistance {
				step := pos
				switch w.rng.Intn(4) {
				case 0:
					step.Y--
				case 1:
					step.X++
				case 2:
					step.Y++
				case 3:
					step.X--
				}
				dest = &step
			} else {
				target := anchor
				dest = &target
			}
		}
	}

	speed := float64(8)
	if n, ok := w.evalNumber(idx, id, "speed"); ok {
		speed = n
	}
	delayBetween := float64(10)
	if n, ok := w.evalNumber(idx, id, "delay"); ok {
		delayBetween = n
	}

	delay := speedDelay(speed)
	inst.SleepCycles = delay + int(delayBetween)

	rc := w.walkTowards(idx, &pos, dest)
	if rc == behavior.ConnectorRight {
		beginTransition(inst, delay)
	}
	return rc
}

// nodePathfinder walks one greedy step per tick toward the destination slot,
// succeeding once the rounded distance reaches zero.
func nodePathfinder(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil || inst.Position == nil {
		return behavior.ConnectorFail
	}
	pos := *inst.Position

	var dest *behavior.Position
	distance := math.MaxFloat64
	if v, ok := w.nodeValue(id, "destination"); ok {
		if p, ok := v.AsPosition(); ok {
			target := p
			dest = &target
			distance = math.Round(computeDistance(pos, target))
		}
	}

	speed := float64(8)
	if n, ok := w.evalNumber(idx, id, "speed"); ok {
		speed = n
	}
	delay := speedDelay(speed)
	inst.SleepCycles = delay

	if distance == 0 {
		return behavior.ConnectorSuccess
	}

	rc := w.walkTowards(idx, &pos, dest)
	if rc == behavior.ConnectorRight {
		beginTransition(inst, delay)
	}
	return rc
}

// nodeLookout scans Normal-state instances in the same region within
// max_distance (unrounded Euclidean) and targets the first candidate whose
// filter expression evaluates true in the candidate's own scope.
func nodeLookout(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil || inst.Position == nil {
		return behavior.ConnectorFail
	}

	maxDistance := float64(7)
	if n, ok := w.evalNumber(idx, id, "max_distance"); ok {
		maxDistance = n
	}

	var candidates []state.InstanceIndex
	for i, other := range w.instances {
		if other == nil || state.InstanceIndex(i) == idx {
			continue
		}
		if other.State != state.StateNormal || other.Position == nil {
			continue
		}
		if other.Position.Region != inst.Position.Region {
			continue
		}
		if computeDistance(*inst.Position, *other.Position) <= maxDistance {
			candidates = append(candidates, state.InstanceIndex(i))
		}
	}

	for _, candidate := range candidates {
		if ok, valid := w.evalBool(candidate, id, "expression"); valid && ok {
			inst.TargetIndex = candidate
			return behavior.ConnectorSuccess
		}
	}

	inst.TargetIndex = state.NoInstance
	return behavior.ConnectorFail
}

// nodeCloseIn walks toward the current target, succeeding once within
// to_distance.
func nodeCloseIn(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil || inst.Position == nil {
		return behavior.ConnectorFail
	}
	pos := *inst.Position

	toDistance := float64(1)
	if n, ok := w.evalNumber(idx, id, "to_distance"); ok {
		toDistance = n
	}

	var dest *behavior.Position
	distance := math.MaxFloat64
	if target := w.Instance(inst.TargetIndex); target != nil && target.Position != nil {
		targetPos := *target.Position
		dest = &targetPos
		distance = math.Round(computeDistance(pos, targetPos))
	}

	speed := float64(8)
	if n, ok := w.evalNumber(idx, id, "speed"); ok {
		speed = n
	}
	delay := speedDelay(speed)
	inst.SleepCycles = delay

	if distance <= toDistance {
		return behavior.ConnectorSuccess
	}

	rc := w.walkTowards(idx, &pos, dest)
	if rc == behavior.ConnectorRight {
		beginTransition(inst, delay)
	}
	return rc
}

// nodeHasTarget reports whether the instance holds a live Normal-state
// target; a stale reference is cleared and treated as absent.
func nodeHasTarget(w *World, idx state.InstanceIndex, _ nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil {
		return behavior.ConnectorFail
	}
	target := w.Instance(inst.TargetIndex)
	if target != nil && target.State == state.StateNormal {
		return behavior.ConnectorSuccess
	}
	inst.TargetIndex = state.NoInstance
	return behavior.ConnectorFail
}

// promptedInstance resolves who a dialogue node is talking to. During a
// normal NPC tick the executing instance is the NPC and the prompt goes to
// its target; when a player answer re-runs the tree, the player is the
// executing instance.
func (w *World) promptedInstance(idx state.InstanceIndex) (state.InstanceIndex, state.InstanceIndex) {
	npcIdx := w.localInstanceIndex(idx)
	if idx != npcIdx {
		return idx, npcIdx
	}
	npc := w.Instance(npcIdx)
	if npc == nil {
		return state.NoInstance, npcIdx
	}
	return npc.TargetIndex, npcIdx
}

// nodeMultiChoice presents a dialogue option to the prompted instance. The
// option queues once per open prompt; when the answer names this node, the
// session is dropped and execution falls through Bottom to the reaction.
func nodeMultiChoice(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	promptedIdx, npcIdx := w.promptedInstance(idx)
	prompted := w.Instance(promptedIdx)
	if prompted == nil {
		return behavior.ConnectorRight
	}

	if prompted.MultiChoiceAnswer != nil {
		if *prompted.MultiChoiceAnswer == id.Node {
			w.dropCommunication(promptedIdx, npcIdx)
			return behavior.ConnectorBottom
		}
		return behavior.ConnectorRight
	}

	for _, existing := range prompted.MultiChoiceData {
		if existing.ID == id.Node {
			return behavior.ConnectorRight
		}
	}

	// No prompt while either side is already mid-conversation elsewhere.
	if !w.canCommunicate(promptedIdx, npcIdx) {
		return behavior.ConnectorRight
	}

	choice := state.MultiChoiceData{ID: id.Node}
	if v, ok := w.nodeValue(id, "header"); ok {
		choice.Header, _ = v.AsText()
	}
	if v, ok := w.nodeValue(id, "text"); ok {
		choice.Text, _ = v.AsText()
	}
	if v, ok := w.nodeValue(id, "answer"); ok {
		choice.Answer, _ = v.AsText()
	}

	prompted.MultiChoiceData = append(prompted.MultiChoiceData, choice)
	w.openCommunication(promptedIdx, npcIdx)
	return behavior.ConnectorRight
}

// nodeSell runs the trade flow over the NPC's inventory scope variable. The
// open prompt offers one choice per priced item; a matching answer moves the
// chosen item to the buyer, remove-before-add, with no partial state when
// the removal fails.
func nodeSell(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	promptedIdx, npcIdx := w.promptedInstance(idx)
	prompted := w.Instance(promptedIdx)
	if prompted == nil {
		return behavior.ConnectorRight
	}

	if prompted.MultiChoiceAnswer != nil {
		itemID := *prompted.MultiChoiceAnswer

		var traded *state.InventoryItem
		if npcInv := w.inventoryOf(npcIdx); npcInv != nil {
			if item, err := npcInv.RemoveItem(itemID, 1); err == nil {
				traded = &item
			}
		}
		if traded != nil {
			if buyerInv := w.inventoryOf(promptedIdx); buyerInv != nil {
				buyerInv.AddItem(*traded)
			}
			w.publish(logging.Event{
				Type:     logging.EventTradeCompleted,
				Actor:    logging.EntityRef{ID: prompted.ID.String(), Kind: logging.EntityKindPlayer},
				Severity: logging.SeverityInfo,
				Category: logging.CategoryGameplay,
				Payload:  traded.Name,
			})
		}

		w.dropCommunication(promptedIdx, npcIdx)
		return behavior.ConnectorBottom
	}

	if len(prompted.MultiChoiceData) > 0 {
		return behavior.ConnectorRight
	}
	if !w.canCommunicate(promptedIdx, npcIdx) {
		return behavior.ConnectorRight
	}

	header := ""
	if v, ok := w.nodeValue(id, "header"); ok {
		header, _ = v.AsText()
	}

	if npcInv := w.inventoryOf(npcIdx); npcInv != nil {
		index := 1
		for _, item := range npcInv.Items {
			if item.Price == 0 {
				continue
			}
			amount := 1
			price := item.Price
			itemID := item.ID
			choice := state.MultiChoiceData{
				ID:         item.ID,
				Text:       item.Name,
				Answer:     strconv.Itoa(index),
				ItemID:     &itemID,
				ItemPrice:  &price,
				ItemAmount: &amount,
			}
			if index == 1 {
				choice.Header = header
			}
			prompted.MultiChoiceData = append(prompted.MultiChoiceData, choice)
			index++
		}
	}

	if len(prompted.MultiChoiceData) > 0 {
		w.openCommunication(promptedIdx, npcIdx)
	}
	return behavior.ConnectorRight
}

// nodeCallSystem resolves a named tree in a named system graph and executes
// it synchronously for this instance.
func nodeCallSystem(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	inst := w.Instance(idx)
	if inst == nil {
		return behavior.ConnectorFail
	}

	var system *behavior.Graph
	if v, ok := w.nodeValue(id, "system"); ok {
		if name, ok := v.AsText(); ok {
			system, _ = w.systems.ByName(name)
		}
	}
	if system == nil {
		return behavior.ConnectorFail
	}

	if v, ok := w.nodeValue(id, "tree"); ok {
		if name, ok := v.AsText(); ok {
			if treeID, ok := system.TreeByName(name); ok {
				inst.SystemsID = system.ID
				w.executeSystemsTree(idx, system.ID, treeID)
				return behavior.ConnectorSuccess
			}
		}
	}
	return behavior.ConnectorFail
}

// nodeCallTree resolves a named tree in the local instance's own graph and
// executes it synchronously.
func nodeCallTree(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	localIdx := w.localInstanceIndex(idx)
	local := w.Instance(localIdx)
	if local == nil {
		return behavior.ConnectorFail
	}
	g, ok := w.behaviors.ByID(local.GraphID)
	if !ok {
		return behavior.ConnectorFail
	}

	if v, ok := w.nodeValue(id, "tree"); ok {
		if name, ok := v.AsText(); ok {
			if treeID, ok := g.TreeByName(name); ok {
				w.executeNode(localIdx, g, treeID)
				return behavior.ConnectorSuccess
			}
		}
	}
	return behavior.ConnectorFail
}

// nodeLockTree pins the resolved instance's next executions to a named tree.
// Locking the target also retargets the target back onto the locker so the
// ensuing dialogue is mutual.
func nodeLockTree(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	subject, isTarget := w.resolveForTarget(idx, id)
	subjectInst := w.Instance(subject)
	if subjectInst == nil {
		return behavior.ConnectorFail
	}
	g, ok := w.behaviors.ByID(subjectInst.GraphID)
	if !ok {
		return behavior.ConnectorFail
	}

	if v, ok := w.nodeValue(id, "tree"); ok {
		if name, ok := v.AsText(); ok {
			if treeID, ok := g.TreeByName(name); ok {
				locked := treeID
				subjectInst.LockedTree = &locked
				if isTarget {
					subjectInst.TargetIndex = idx
				}
				return behavior.ConnectorSuccess
			}
		}
	}
	return behavior.ConnectorFail
}

// nodeUnlockTree clears the resolved instance's lock and target.
func nodeUnlockTree(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	subject, _ := w.resolveForTarget(idx, id)
	if subjectInst := w.Instance(subject); subjectInst != nil {
		subjectInst.LockedTree = nil
		subjectInst.TargetIndex = state.NoInstance
	}
	return behavior.ConnectorBottom
}

// nodeSetState transitions the resolved instance's lifecycle state. Leaving
// Normal scrubs the instance from every other instance's target and lock so
// no dangling index survives the transition.
func nodeSetState(w *World, idx state.InstanceIndex, id nodeIdentity) behavior.Connector {
	subject, _ := w.resolveForTarget(idx, id)
	subjectInst := w.Instance(subject)
	if subjectInst == nil {
		return behavior.ConnectorBottom
	}

	if v, ok := w.nodeValue(id, "state"); ok {
		if n, ok := v.AsInt(); ok {
			switch n {
			case 1:
				subjectInst.State = state.StateHidden
			case 2:
				subjectInst.State = state.StateKilled
			case 3:
				subjectInst.State = state.StatePurged
			default:
				subjectInst.State = state.StateNormal
			}
		}
		if subjectInst.State != state.StateNormal {
			w.scrubReferences(subject)
		}
	}
	return behavior.ConnectorBottom
}

// messageTypeSlot reads the "type" slot into a message type, defaulting to
// Status.
func (w *World) messageTypeSlot(id nodeIdentity) state.MessageType {
	v, ok := w.nodeValue(id, "type")
	if !ok {
		return state.MessageStatus
	}
	n, _ := v.AsInt()
	switch n {
	case 1:
		return state.MessageSay
	case 2:
		return state.MessageYell
	case 3:
		return state.MessagePrivate
	case 4:
		return state.MessageDebug
	}
	return state.MessageStatus
}

// substituteTokens expands the immediate-context tokens and then, when the
// text still interpolates, evaluates it as a template against the instance
// scope with Self/Target pushed.
func (w *World) substituteTokens(idx state.InstanceIndex, text string) string {
	text = strings.ReplaceAll(text, "${DIRECTION}", w.actionDirectionText)
	text = strings.ReplaceAll(text, "${SUBJECT}", w.actionSubjectText)
	if !strings.Contains(text, "${") {
		return text
	}
	scope := w.Scope(idx)
	if scope == nil {
		return text
	}
	w.pushStandardBindings(idx)
	if expanded, err := w.engine.EvalTemplate(text, scope); err == nil {
		return expanded
	}
	return text
}

// inventoryOf fetches the instance's inventory scope variable.
func (w *World) inventoryOf(idx state.InstanceIndex) *state.Inventory {
	scope := w.Scope(idx)
	if scope == nil {
		return nil
	}
	v, ok := scope.Get("inventory")
	if !ok {
		return nil
	}
	inv, _ := v.(*state.Inventory)
	return inv
}
