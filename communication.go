package server

import (
	"time"

	"github.com/google/uuid"

	"mistvale/server/internal/state"
	"mistvale/server/logging"
)

// canCommunicate reports whether a session between the pair may open. Each
// participant holds at most one live session, so both must be free or
// already paired with each other.
func (w *World) canCommunicate(promptedIdx, npcIdx state.InstanceIndex) bool {
	return w.freeForPair(promptedIdx, promptedIdx, npcIdx) &&
		w.freeForPair(npcIdx, promptedIdx, npcIdx)
}

func (w *World) freeForPair(idx, playerIdx, npcIdx state.InstanceIndex) bool {
	inst := w.Instance(idx)
	if inst == nil {
		return false
	}
	for _, c := range inst.Communication {
		if c.Expired(w.now) {
			continue
		}
		if c.PlayerIndex != playerIdx || c.NPCIndex != npcIdx {
			return false
		}
	}
	return true
}

// openCommunication starts (or refreshes) a dialogue session between the
// instance being prompted and the NPC whose tree is executing. Both sides
// carry the session record so either side's removal scrubs it; a refresh
// must touch both copies or one side expires early and strands the other.
func (w *World) openCommunication(promptedIdx, npcIdx state.InstanceIndex) {
	prompted := w.Instance(promptedIdx)
	npc := w.Instance(npcIdx)
	if prompted == nil || npc == nil || promptedIdx == npcIdx {
		return
	}
	if !w.canCommunicate(promptedIdx, npcIdx) {
		return
	}

	session := state.PlayerCommunication{
		PlayerIndex: promptedIdx,
		NPCIndex:    npcIdx,
		NPCTree:     w.currExecutingTree,
		StartTime:   w.now,
		EndTime:     w.now.Add(w.cfg.CommunicationTimeout),
	}
	refreshed := refreshSession(prompted.Communication, promptedIdx, npcIdx, session.EndTime)
	if !refreshed {
		prompted.Communication = append(prompted.Communication, session)
	}
	if !refreshSession(npc.Communication, promptedIdx, npcIdx, session.EndTime) {
		npc.Communication = append(npc.Communication, session)
	}
	if refreshed {
		return
	}

	w.publish(logging.Event{
		Type:     logging.EventCommunicationOpened,
		Actor:    logging.EntityRef{ID: npc.ID.String(), Kind: logging.EntityKindNPC},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryGameplay,
		Payload:  prompted.Name,
	})
}

// dropCommunication ends the session between the pair on both sides and
// clears the prompted instance's pending choices.
func (w *World) dropCommunication(promptedIdx, npcIdx state.InstanceIndex) {
	if prompted := w.Instance(promptedIdx); prompted != nil {
		prompted.Communication = withoutSession(prompted.Communication, promptedIdx, npcIdx)
		prompted.MultiChoiceData = nil
		prompted.MultiChoiceAnswer = nil
	}
	if npc := w.Instance(npcIdx); npc != nil {
		npc.Communication = withoutSession(npc.Communication, promptedIdx, npcIdx)
	}
}

// expireCommunications drops every session past its deadline. The prompted
// side's choices are cleared so the NPC's next locked-tree run re-prompts
// from scratch.
func (w *World) expireCommunications(now time.Time) {
	for i, inst := range w.instances {
		if inst == nil {
			continue
		}
		kept := inst.Communication[:0]
		for _, c := range inst.Communication {
			if !c.Expired(now) {
				kept = append(kept, c)
				continue
			}
			if c.PlayerIndex == state.InstanceIndex(i) {
				inst.MultiChoiceData = nil
				inst.MultiChoiceAnswer = nil
				w.publish(logging.Event{
					Type:     logging.EventCommunicationExpired,
					Actor:    logging.EntityRef{ID: inst.ID.String(), Kind: logging.EntityKindPlayer},
					Severity: logging.SeverityInfo,
					Category: logging.CategoryGameplay,
				})
			}
		}
		inst.Communication = kept
	}
}

// answerCommunication applies a player's choice and re-runs the NPC tree
// that asked, with the player as the executing instance so the choice nodes
// read the player's answer and outbox.
func (w *World) answerCommunication(playerIdx state.InstanceIndex, answer uuid.UUID) {
	player := w.Instance(playerIdx)
	if player == nil {
		return
	}

	var session *state.PlayerCommunication
	for i := range player.Communication {
		if player.Communication[i].PlayerIndex == playerIdx && !player.Communication[i].Expired(w.now) {
			session = &player.Communication[i]
			break
		}
	}
	if session == nil {
		return
	}

	npc := w.Instance(session.NPCIndex)
	if npc == nil {
		return
	}
	g, ok := w.behaviors.ByID(npc.GraphID)
	if !ok {
		return
	}

	chosen := answer
	player.MultiChoiceAnswer = &chosen
	player.MultiChoiceData = nil

	prevLocal := w.currLocalIndex
	w.currLocalIndex = session.NPCIndex
	w.walkDepth = 0
	w.walkAborted = false
	w.executeNode(playerIdx, g, session.NPCTree)
	w.currLocalIndex = prevLocal

	player.MultiChoiceAnswer = nil
}

func refreshSession(list []state.PlayerCommunication, playerIdx, npcIdx state.InstanceIndex, deadline time.Time) bool {
	for i := range list {
		if list[i].PlayerIndex == playerIdx && list[i].NPCIndex == npcIdx {
			list[i].EndTime = deadline
			return true
		}
	}
	return false
}

func withoutSession(list []state.PlayerCommunication, playerIdx, npcIdx state.InstanceIndex) []state.PlayerCommunication {
	kept := list[:0]
	for _, c := range list {
		if c.PlayerIndex == playerIdx && c.NPCIndex == npcIdx {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
