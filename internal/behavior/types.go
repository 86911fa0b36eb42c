package behavior

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// GraphID identifies an authored behavior graph.
type GraphID = uuid.UUID

// NodeID identifies a node within a graph.
type NodeID = uuid.UUID

// Kind distinguishes the graph families the engine executes. Expression
// caching is keyed by it so the same node id in a character graph and a
// system graph never collide.
type Kind uint8

const (
	KindBehaviors Kind = iota
	KindSystems
	KindRegions
	KindGameLogic
)

// Connector is the outcome tag a node returns. The engine follows the first
// authored connection matching (node, connector) to pick the next node.
type Connector uint8

const (
	ConnectorSuccess Connector = iota
	ConnectorFail
	ConnectorRight
	ConnectorLeft
	ConnectorBottom
	ConnectorTop
)

func (c Connector) String() string {
	switch c {
	case ConnectorSuccess:
		return "Success"
	case ConnectorFail:
		return "Fail"
	case ConnectorRight:
		return "Right"
	case ConnectorLeft:
		return "Left"
	case ConnectorBottom:
		return "Bottom"
	case ConnectorTop:
		return "Top"
	}
	return "Unknown"
}

// NodeKind tags a node with the function that executes it.
type NodeKind string

const (
	NodeBehaviorType NodeKind = "BehaviorType"
	NodeBehaviorTree NodeKind = "BehaviorTree"
	NodeVariable     NodeKind = "VariableNumber"

	NodeExpression  NodeKind = "Expression"
	NodeScript      NodeKind = "Script"
	NodeMessage     NodeKind = "Message"
	NodeAudio       NodeKind = "Audio"
	NodeRandomWalk  NodeKind = "RandomWalk"
	NodePathfinder  NodeKind = "Pathfinder"
	NodeLookout     NodeKind = "Lookout"
	NodeCloseIn     NodeKind = "CloseIn"
	NodeHasTarget   NodeKind = "HasTarget"
	NodeMultiChoice NodeKind = "MultiChoice"
	NodeSell        NodeKind = "Sell"
	NodeCallSystem  NodeKind = "CallSystem"
	NodeCallTree    NodeKind = "CallBehavior"
	NodeLockTree    NodeKind = "LockTree"
	NodeUnlockTree  NodeKind = "UnlockTree"
	NodeSetState    NodeKind = "SetState"

	NodeAlwaysArea   NodeKind = "Always"
	NodeEnterArea    NodeKind = "EnterArea"
	NodeLeaveArea    NodeKind = "LeaveArea"
	NodeInsideArea   NodeKind = "InsideArea"
	NodeTeleportArea NodeKind = "TeleportArea"
	NodeMessageArea  NodeKind = "MessageArea"
	NodeAudioArea    NodeKind = "AudioArea"
	NodeLightArea    NodeKind = "LightArea"
)

// Position is a tile coordinate inside a region.
type Position struct {
	Region int
	X      int
	Y      int
}

// ValueKind tags the payload stored in a node value slot.
type ValueKind uint8

const (
	ValueEmpty ValueKind = iota
	ValueNumber
	ValueText
	ValuePosition
)

// Value is a typed slot on a node, filled in by the authoring tool.
type Value struct {
	Kind   ValueKind
	Number float64
	Text   string
	Pos    Position
}

// NumberValue wraps a numeric slot value.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// TextValue wraps a text slot value. Script sources are stored as text.
func TextValue(s string) Value { return Value{Kind: ValueText, Text: s} }

// PositionValue wraps a position slot value.
func PositionValue(p Position) Value { return Value{Kind: ValuePosition, Pos: p} }

// AsNumber reports the numeric payload, accepting numeric text for authored
// slots that were typed free-form.
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case ValueNumber:
		return v.Number, true
	case ValueText:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// AsInt truncates the numeric payload.
func (v Value) AsInt() (int, bool) {
	n, ok := v.AsNumber()
	return int(n), ok
}

// AsText reports the text payload.
func (v Value) AsText() (string, bool) {
	if v.Kind == ValueText {
		return v.Text, true
	}
	return "", false
}

// AsPosition reports the position payload.
func (v Value) AsPosition() (Position, bool) {
	if v.Kind == ValuePosition {
		return v.Pos, true
	}
	return Position{}, false
}

// Node is one typed node of a behavior graph.
type Node struct {
	ID     NodeID
	Kind   NodeKind
	Name   string
	Values map[string]Value
}

// Value returns the slot value for the given name.
func (n *Node) Value(slot string) (Value, bool) {
	if n == nil {
		return Value{}, false
	}
	v, ok := n.Values[slot]
	return v, ok
}

// Connection wires one node's connector to another node.
type Connection struct {
	From          NodeID
	FromConnector Connector
	To            NodeID
}
