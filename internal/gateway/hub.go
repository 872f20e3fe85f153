package gateway

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"studyroom/backend/internal/studyroom"
)

// Hub tracks live connections and the room broadcast groups they belong
// to. Every method is non-blocking.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	groups map[string]map[string]struct{}
	rooms  map[string]map[string]struct{}
	logger zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]struct{}),
		rooms:  make(map[string]map[string]struct{}),
		logger: log.With().Str("module", "gateway").Logger(),
	}
}

var _ studyroom.Gateway = (*Hub)(nil)

func (h *Hub) register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// unregister forgets c and removes it from every group it was still in.
func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.conns[c.id]; !ok || current != c {
		return
	}
	delete(h.conns, c.id)
	for roomID := range h.rooms[c.id] {
		h.leaveLocked(roomID, c.id)
	}
	delete(h.rooms, c.id)
}

func (h *Hub) Join(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	if h.groups[roomID] == nil {
		h.groups[roomID] = make(map[string]struct{})
	}
	h.groups[roomID][connID] = struct{}{}
	if h.rooms[connID] == nil {
		h.rooms[connID] = make(map[string]struct{})
	}
	h.rooms[connID][roomID] = struct{}{}
}

func (h *Hub) Leave(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, connID)
	if rooms := h.rooms[connID]; rooms != nil {
		delete(rooms, roomID)
	}
}

func (h *Hub) leaveLocked(roomID, connID string) {
	group, ok := h.groups[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.groups, roomID)
	}
}

func (h *Hub) Send(connID string, ev studyroom.Event) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}
	h.mu.RLock()
	c, found := h.conns[connID]
	h.mu.RUnlock()
	if found {
		c.enqueue(frame)
	}
}

func (h *Hub) Broadcast(roomID string, ev studyroom.Event) {
	h.BroadcastExcept(roomID, "", ev)
}

func (h *Hub) BroadcastExcept(roomID, exceptConnID string, ev studyroom.Event) {
	frame, ok := h.encode(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.groups[roomID]))
	for connID := range h.groups[roomID] {
		if connID == exceptConnID {
			continue
		}
		if c, found := h.conns[connID]; found {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) encode(ev studyroom.Event) ([]byte, bool) {
	frame, err := encode(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Name).Msg("encode event")
		return nil, false
	}
	return frame, true
}

func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) GroupSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[roomID])
}
