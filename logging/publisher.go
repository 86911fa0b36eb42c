// Package logging publishes structured engine events to pluggable sinks.
package logging

import (
	"context"
	"time"
)

type EventType string

// Event types emitted by the behavior engine.
const (
	EventInstanceSpawned      EventType = "instance.spawned"
	EventInstanceRemoved      EventType = "instance.removed"
	EventScriptError          EventType = "script.error"
	EventEngineError          EventType = "engine.error"
	EventTradeCompleted       EventType = "trade.completed"
	EventCommunicationOpened  EventType = "communication.opened"
	EventCommunicationExpired EventType = "communication.expired"
)

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindUnknown EntityKind = "unknown"
	EntityKindPlayer  EntityKind = "player"
	EntityKindNPC     EntityKind = "npc"
	EntityKindArea    EntityKind = "area"
	EntityKindWorld   EntityKind = "world"
)

type Event struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick"`
	Time     time.Time      `json:"time"`
	Actor    EntityRef      `json:"actor"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

const (
	CategoryGameplay = "gameplay"
	CategoryScript   = "script"
	CategorySystem   = "system"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher drops every event; tests and headless worlds use it.
func NopPublisher() Publisher {
	return nopPublisher{}
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	if p.next == nil {
		return
	}
	if len(p.fields) > 0 {
		extra := make(map[string]any, len(p.fields)+len(event.Extra))
		for k, v := range event.Extra {
			extra[k] = v
		}
		for k, v := range p.fields {
			if _, exists := extra[k]; !exists {
				extra[k] = v
			}
		}
		event.Extra = extra
	}
	p.next.Publish(ctx, event)
}

// WithFields decorates a publisher so every event carries the given fields.
func WithFields(next Publisher, fields map[string]any) Publisher {
	if next == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return next
	}
	cloned := make(map[string]any, len(fields))
	for k, v := range fields {
		cloned[k] = v
	}
	return &fieldPublisher{next: next, fields: cloned}
}
