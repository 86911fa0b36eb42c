// Package state holds the per-instance runtime data the behavior engine
// mutates each tick. It is pure data; the execution rules live in the server
// package.
package state

import (
	"time"

	"github.com/google/uuid"

	"mistvale/server/internal/behavior"
)

// InstanceIndex addresses a live instance by its slot in the world's instance
// table. Indices are the only stable cross-call handle; instance removal is
// responsible for scrubbing every index-based back-reference.
type InstanceIndex int

// NoInstance marks an absent target or owner reference.
const NoInstance InstanceIndex = -1

// InstanceState is the lifecycle state of a behavior instance.
type InstanceState uint8

const (
	StateNormal InstanceState = iota
	StateHidden
	StateKilled
	StatePurged
)

func (s InstanceState) String() string {
	switch s {
	case StateNormal:
		return "Normal"
	case StateHidden:
		return "Hidden"
	case StateKilled:
		return "Killed"
	case StatePurged:
		return "Purged"
	}
	return "Unknown"
}

// MessageType classifies an outbound text message.
type MessageType uint8

const (
	MessageStatus MessageType = iota
	MessageSay
	MessageYell
	MessagePrivate
	MessageDebug
)

// Message is one entry in an instance's per-tick outbox. The gateway drains
// and clears the outbox after delivery.
type Message struct {
	Type MessageType
	Text string
	From string
}

// MultiChoiceData is one pending dialogue or trade option offered to a player.
type MultiChoiceData struct {
	ID     uuid.UUID
	Header string
	Text   string
	Answer string

	ItemID     *uuid.UUID
	ItemPrice  *float64
	ItemAmount *int
}

// PlayerCommunication ties a player and an NPC into one time-bounded
// dialogue or trade session.
type PlayerCommunication struct {
	PlayerIndex InstanceIndex
	NPCIndex    InstanceIndex
	NPCTree     behavior.NodeID
	StartTime   time.Time
	EndTime     time.Time
}

// Expired reports whether the session's end time has passed. Nodes reading a
// session must treat an expired one as absent.
func (c PlayerCommunication) Expired(now time.Time) bool {
	return now.After(c.EndTime)
}

// Instance is one live, stateful occurrence of a behavior graph in the world.
type Instance struct {
	ID      uuid.UUID
	Name    string
	GraphID behavior.GraphID

	State InstanceState

	// Position and OldPosition; OldPosition is kept while a movement
	// transition animates and cleared when the transition completes.
	Position    *behavior.Position
	OldPosition *behavior.Position

	// TargetIndex is a weak reference into the instance table.
	TargetIndex InstanceIndex

	// TreeRoots are the BehaviorTree node ids discovered at instantiation.
	TreeRoots []behavior.NodeID

	// LockedTree overrides tree discovery for subsequent ticks until
	// explicitly unlocked.
	LockedTree *behavior.NodeID

	// SystemsID is the system graph selected by the last call_system.
	SystemsID behavior.GraphID

	// Movement cadence counters.
	SleepCycles        int
	MaxTransitionTime  int
	CurrTransitionTime int

	// Pending dialogue/trade choice state.
	MultiChoiceData   []MultiChoiceData
	MultiChoiceAnswer *uuid.UUID

	// At most one active communication session per participant.
	Communication []PlayerCommunication

	// Per-tick outboxes.
	Messages []Message
	Audio    []string
}

// HasCommunication reports whether a live (non-expired) session is queued.
func (i *Instance) HasCommunication(now time.Time) bool {
	if i == nil {
		return false
	}
	for _, c := range i.Communication {
		if !c.Expired(now) {
			return true
		}
	}
	return false
}

// ClearOutbox empties the message and audio outboxes, returning what was
// queued. The gateway calls this once per tick after delivery.
func (i *Instance) ClearOutbox() ([]Message, []string) {
	if i == nil {
		return nil, nil
	}
	messages, audio := i.Messages, i.Audio
	i.Messages = nil
	i.Audio = nil
	return messages, audio
}
