package server

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mistvale/server/internal/behavior"
)

const writeWait = 10 * time.Second

// Hub owns the subscriber connections and serializes all world access. The
// tick loop and every join/leave path take h.mu, so the World itself needs
// no locking beyond its action queue.
type Hub struct {
	mu          sync.Mutex
	world       *World
	cfg         Config
	subscribers map[uuid.UUID]*subscriber
	nextID      atomic.Uint64
	spawn       behavior.Position
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub wires a hub around an existing world.
func NewHub(world *World, cfg Config) *Hub {
	return &Hub{
		world:       world,
		cfg:         cfg,
		subscribers: make(map[uuid.UUID]*subscriber),
	}
}

// SetSpawn sets where joining players appear.
func (h *Hub) SetSpawn(pos behavior.Position) {
	h.mu.Lock()
	h.spawn = pos
	h.mu.Unlock()
}

// Join creates a player instance and returns its id and spawn position.
func (h *Hub) Join() joinResponse {
	name := fmt.Sprintf("player-%d", h.nextID.Add(1))

	h.mu.Lock()
	idx := h.world.InstantiatePlayer(name, h.spawn)
	inst := h.world.Instance(idx)
	h.mu.Unlock()

	return joinResponse{
		ID:     inst.ID.String(),
		Name:   inst.Name,
		Region: inst.Position.Region,
		X:      inst.Position.X,
		Y:      inst.Position.Y,
	}
}

// Subscribe associates a websocket connection with a joined player. A second
// connection for the same player replaces the first.
func (h *Hub) Subscribe(playerID uuid.UUID, conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.world.InstanceByID(playerID); !ok {
		return nil, false
	}
	if existing, ok := h.subscribers[playerID]; ok {
		existing.conn.Close()
	}
	sub := &subscriber{conn: conn}
	h.subscribers[playerID] = sub
	return sub, true
}

// Disconnect removes the player instance and closes its connection.
func (h *Hub) Disconnect(playerID uuid.UUID) {
	h.mu.Lock()
	sub, subOK := h.subscribers[playerID]
	if subOK {
		delete(h.subscribers, playerID)
	}
	if idx, ok := h.world.InstanceByID(playerID); ok {
		h.world.RemoveInstance(idx)
	}
	h.mu.Unlock()

	if subOK {
		sub.conn.Close()
	}
}

// HandleClientMessage routes one decoded client frame. Unknown types are
// dropped.
func (h *Hub) HandleClientMessage(playerID uuid.UUID, sub *subscriber, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("bad frame from %s: %v", playerID, err)
		return
	}

	switch msg.Type {
	case "move":
		h.world.QueueAction(playerID, Action{Kind: ActionMove, Direction: msg.Direction})
	case "answer":
		answer, err := uuid.Parse(msg.Answer)
		if err != nil {
			return
		}
		h.world.QueueAction(playerID, Action{Kind: ActionAnswer, Answer: answer})
	case "say":
		h.world.QueueAction(playerID, Action{Kind: ActionSay, Text: msg.Text})
	case "heartbeat":
		h.sendHeartbeat(sub, msg.SentAt)
	}
}

func (h *Hub) sendHeartbeat(sub *subscriber, clientTime int64) {
	data, err := json.Marshal(heartbeatMessage{
		Type:       "heartbeat",
		ServerTime: time.Now().UnixMilli(),
		ClientTime: clientTime,
	})
	if err != nil {
		return
	}
	sub.send(data)
}

// RunSimulation drives the fixed-rate tick loop until the stop channel
// closes.
func (h *Hub) RunSimulation(stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			h.step(now)
		}
	}
}

// step runs one tick and delivers each subscriber's outbox.
func (h *Hub) step(now time.Time) {
	type delivery struct {
		sub  *subscriber
		id   uuid.UUID
		data []byte
	}

	h.mu.Lock()
	h.world.Tick(now)

	say := h.world.Say()
	lights := make([]wireLight, 0, len(h.world.Lights()))
	for _, l := range h.world.Lights() {
		lights = append(lights, wireLight(l))
	}

	deliveries := make([]delivery, 0, len(h.subscribers))
	for playerID, sub := range h.subscribers {
		idx, ok := h.world.InstanceByID(playerID)
		if !ok {
			continue
		}
		inst := h.world.Instance(idx)
		messages, audio, choices := h.world.DrainOutbox(idx)

		msg := stateMessage{
			Type:       "state",
			Tick:       h.world.TickCount(),
			ServerTime: now.UnixMilli(),
			InTransit:  inst.CurrTransitionTime != 0,
			Messages:   toOutboundMessages(messages),
			Audio:      audio,
			Choices:    toOutboundChoices(choices),
			Say:        say,
			Lights:     lights,
		}
		if pos := h.world.instancePosition(idx); pos != nil {
			msg.Position = &wirePosition{Region: pos.Region, X: pos.X, Y: pos.Y}
		}

		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("failed to marshal state for %s: %v", playerID, err)
			continue
		}
		deliveries = append(deliveries, delivery{sub: sub, id: playerID, data: data})
	}
	h.mu.Unlock()

	for _, d := range deliveries {
		if err := d.sub.send(d.data); err != nil {
			log.Printf("failed to send update to %s: %v", d.id, err)
			h.Disconnect(d.id)
		}
	}
}

func (s *subscriber) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
