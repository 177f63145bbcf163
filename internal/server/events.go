package server

import (
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type EntryEvent struct {
	Event
	Entry conversation.Entry `json:"entry"`
}

type SessionStartedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type SessionEndedEvent struct {
	Event
	SessionID string  `json:"session_id"`
	Duration  float64 `json:"duration"`
}

type CostEvent struct {
	Event
	Cost cost.Snapshot `json:"cost"`
}

type ListeningEvent struct {
	Event
	Listening bool `json:"listening"`
}

type StatusChangedEvent struct {
	Event
	Paused bool `json:"paused"`
}

type ModeChangedEvent struct {
	Event
	Mode mode.Mode `json:"mode"`
}

type ErrorEvent struct {
	Event
	Message string `json:"message"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
