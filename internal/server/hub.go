package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
)

// Hub fans session events out to all connected websocket clients. It is the
// broadcast side of the session package's event surface.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

// Broadcast delivers to every subscriber without blocking; slow clients drop
// messages.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastEntry(e conversation.Entry) {
	h.broadcastEvent(EntryEvent{
		Event: newEvent("entry", e.CreatedAt),
		Entry: e,
	})
}

func (h *Hub) BroadcastEntryUpdated(e conversation.Entry) {
	h.broadcastEvent(EntryEvent{
		Event: newEvent("entry_updated", time.Now().UTC()),
		Entry: e,
	})
}

func (h *Hub) BroadcastSessionStarted(sessionID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastSessionEnded(sessionID string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     newEvent("session_ended", time.Now().UTC()),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastCost(snapshot cost.Snapshot) {
	h.broadcastEvent(CostEvent{
		Event: newEvent("cost", time.Now().UTC()),
		Cost:  snapshot,
	})
}

func (h *Hub) BroadcastListening(listening bool) {
	h.broadcastEvent(ListeningEvent{
		Event:     newEvent("listening", time.Now().UTC()),
		Listening: listening,
	})
}

func (h *Hub) BroadcastStatusChanged(paused bool) {
	h.broadcastEvent(StatusChangedEvent{
		Event:  newEvent("status_changed", time.Now().UTC()),
		Paused: paused,
	})
}

func (h *Hub) BroadcastModeChanged(m mode.Mode) {
	h.broadcastEvent(ModeChangedEvent{
		Event: newEvent("mode_changed", time.Now().UTC()),
		Mode:  m,
	})
}

func (h *Hub) BroadcastError(message string) {
	h.broadcastEvent(ErrorEvent{
		Event:   newEvent("error", time.Now().UTC()),
		Message: message,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
