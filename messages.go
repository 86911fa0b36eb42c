package server

import (
	"mistvale/server/internal/state"
)

type joinResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region int    `json:"region"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

// outboundMessage is one entry of an instance's message outbox on the wire.
type outboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
	From string `json:"from,omitempty"`
}

// outboundChoice is one pending multi-choice entry on the wire. Trade fields
// are present only for sell offers.
type outboundChoice struct {
	ID     string   `json:"id"`
	Header string   `json:"header,omitempty"`
	Text   string   `json:"text"`
	Answer string   `json:"answer,omitempty"`
	Price  *float64 `json:"price,omitempty"`
	Amount *int     `json:"amount,omitempty"`
}

type wirePosition struct {
	Region int `json:"region"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

type wireLight struct {
	Region int `json:"region"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Radius int `json:"radius"`
}

// stateMessage is the per-tick feed for one subscriber: their own position
// and outbox plus the world-level say log and lights.
type stateMessage struct {
	Type       string            `json:"type"`
	Tick       uint64            `json:"t"`
	ServerTime int64             `json:"serverTime"`
	Position   *wirePosition     `json:"position,omitempty"`
	InTransit  bool              `json:"inTransit,omitempty"`
	Messages   []outboundMessage `json:"messages,omitempty"`
	Audio      []string          `json:"audio,omitempty"`
	Choices    []outboundChoice  `json:"choices,omitempty"`
	Say        []string          `json:"say,omitempty"`
	Lights     []wireLight       `json:"lights,omitempty"`
}

type clientMessage struct {
	Type      string `json:"type"`
	Direction string `json:"direction,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Text      string `json:"text,omitempty"`
	SentAt    int64  `json:"sentAt,omitempty"`
}

type heartbeatMessage struct {
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientTime int64  `json:"clientTime"`
}

func messageTypeLabel(t state.MessageType) string {
	switch t {
	case state.MessageSay:
		return "say"
	case state.MessageYell:
		return "yell"
	case state.MessagePrivate:
		return "private"
	case state.MessageDebug:
		return "debug"
	}
	return "status"
}

func toOutboundMessages(messages []state.Message) []outboundMessage {
	if len(messages) == 0 {
		return nil
	}
	out := make([]outboundMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, outboundMessage{Type: messageTypeLabel(m.Type), Text: m.Text, From: m.From})
	}
	return out
}

func toOutboundChoices(choices []state.MultiChoiceData) []outboundChoice {
	if len(choices) == 0 {
		return nil
	}
	out := make([]outboundChoice, 0, len(choices))
	for _, c := range choices {
		out = append(out, outboundChoice{
			ID:     c.ID.String(),
			Header: c.Header,
			Text:   c.Text,
			Answer: c.Answer,
			Price:  c.ItemPrice,
			Amount: c.ItemAmount,
		})
	}
	return out
}
