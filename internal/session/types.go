package session

import (
	"context"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/realtime"
)

// Status is the lifecycle state of the realtime session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusClosed     Status = "closed"
)

// Channel is the opaque bidirectional event sink produced by negotiation.
type Channel interface {
	Send(evt realtime.ClientEvent) error
	Events() <-chan realtime.ServerEvent
	Close() error
}

// Negotiator establishes the realtime channel.
type Negotiator interface {
	Dial(ctx context.Context, token, model string) (Channel, error)
}

// TokenSource supplies the ephemeral credential for channel negotiation.
type TokenSource interface {
	Mint(ctx context.Context) (token string, raw []byte, err error)
}

// Media is the local audio-capture collaborator. Acquire performs its own
// tiered fallback across capture configurations; the session id names the
// capture archive.
type Media interface {
	Acquire(sessionID string) error
	SetInputEnabled(enabled bool)
	Stop()
}

// Store persists sessions, finalized conversation entries and cost records.
type Store interface {
	CreateSession(id string, startedAt time.Time, m mode.Mode) error
	EndSession(id string, endedAt time.Time) error
	AppendEntry(sessionID string, e conversation.Entry) error
	AppendCostRecord(sessionID string, r cost.Record) error
}

// EventBroadcaster pushes state changes to observing UIs.
type EventBroadcaster interface {
	BroadcastEntry(e conversation.Entry)
	BroadcastEntryUpdated(e conversation.Entry)
	BroadcastSessionStarted(sessionID string)
	BroadcastSessionEnded(sessionID string, duration time.Duration)
	BroadcastCost(snapshot cost.Snapshot)
	BroadcastListening(listening bool)
	BroadcastStatusChanged(paused bool)
	BroadcastModeChanged(m mode.Mode)
	BroadcastError(message string)
}

// Sender emits outbound protocol events; implemented by the Manager.
type Sender interface {
	SendEvent(evt realtime.ClientEvent) error
}

// Config carries the dispatcher and lifecycle tunables.
type Config struct {
	Model string

	// ResponseSettleDelay lets a finished transcription settle before the
	// automatic response-request goes out.
	ResponseSettleDelay time.Duration

	// AutoResumeDelay runs after response.done before a pause taken during
	// generation is automatically lifted.
	AutoResumeDelay time.Duration

	// InterviewDelay makes analyzer-triggered responses feel natural.
	InterviewDelay time.Duration

	// InterviewThreshold is the minimum analyzer confidence that triggers
	// an interview response.
	InterviewThreshold float64

	InterviewType string

	MaxResponseTokens int
	AdviceMaxTokens   int
}

// DefaultConfig returns the standard dispatcher tuning.
func DefaultConfig(model string) Config {
	return Config{
		Model:               model,
		ResponseSettleDelay: 100 * time.Millisecond,
		AutoResumeDelay:     500 * time.Millisecond,
		InterviewDelay:      time.Second,
		InterviewThreshold:  0.7,
		InterviewType:       "general",
		MaxResponseTokens:   500,
		AdviceMaxTokens:     300,
	}
}
