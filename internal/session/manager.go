package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/realtime"
)

// Manager owns the realtime session lifecycle: credential minting, media
// acquisition, channel negotiation, initial configuration, and teardown.
// Exactly one session is active at a time.
type Manager struct {
	cfg        Config
	tokens     TokenSource
	negotiator Negotiator
	media      Media
	modes      *mode.Controller
	analyzer   interface{ Reset() }
	ledger     *cost.Ledger
	log        *conversation.Log
	store      Store
	hub        EventBroadcaster

	dispatcher *Dispatcher

	mu        sync.Mutex
	status    Status
	sessionID string
	startedAt time.Time
	channel   Channel

	now   func() time.Time
	newID func() string
}

func NewManager(cfg Config, tokens TokenSource, negotiator Negotiator, media Media, deps Deps) *Manager {
	m := &Manager{
		cfg:        cfg,
		tokens:     tokens,
		negotiator: negotiator,
		media:      media,
		modes:      deps.Modes,
		analyzer:   deps.Analyzer,
		ledger:     deps.Ledger,
		log:        deps.Log,
		store:      deps.Store,
		hub:        deps.Hub,
		status:     StatusIdle,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	m.dispatcher = NewDispatcher(cfg, m, Deps{
		Modes:    deps.Modes,
		Analyzer: deps.Analyzer,
		Ledger:   deps.Ledger,
		Log:      deps.Log,
		Store:    deps.Store,
		Hub:      deps.Hub,
		Media:    media,
	})

	if m.modes != nil {
		m.modes.OnChange(m.modeChanged)
	}

	return m
}

// Dispatcher exposes the event dispatcher for collaborators that feed it
// (pause controls, text sends, advice requests).
func (m *Manager) Dispatcher() *Dispatcher { return m.dispatcher }

// Log exposes the conversation transcript.
func (m *Manager) Log() *conversation.Log { return m.log }

// Ledger exposes the session cost ledger.
func (m *Manager) Ledger() *cost.Ledger { return m.ledger }

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SessionID returns the active session id, or "" when idle.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// Active reports whether a session is established.
func (m *Manager) Active() bool {
	return m.Status() == StatusActive
}

// Start brings up a session: mint a token, acquire media, negotiate the
// channel, send the initial configuration. Any failure rolls back to Idle
// with a stage-categorized error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusIdle {
		m.mu.Unlock()
		return ErrSessionActive
	}
	m.status = StatusConnecting
	m.mu.Unlock()

	m.log.Reset()
	m.ledger.Reset()
	if m.analyzer != nil {
		m.analyzer.Reset()
	}
	m.dispatcher.Reset()

	startedAt := m.now().UTC()
	sessionID := startedAt.Format("20060102150405")

	token, _, err := m.tokens.Mint(ctx)
	if err != nil {
		m.setStatus(StatusIdle)
		return &StartError{Stage: StageToken, Err: err}
	}

	if m.media != nil {
		if err := m.media.Acquire(sessionID); err != nil {
			m.setStatus(StatusIdle)
			return &StartError{Stage: StageMedia, Err: err}
		}
	}

	ch, err := m.negotiator.Dial(ctx, token, m.cfg.Model)
	if err != nil {
		if m.media != nil {
			m.media.Stop()
		}
		m.setStatus(StatusIdle)
		return &StartError{Stage: StageNegotiate, Err: err}
	}

	m.mu.Lock()
	m.channel = ch
	m.status = StatusActive
	m.sessionID = sessionID
	m.startedAt = startedAt
	m.mu.Unlock()

	m.dispatcher.BindSession(sessionID)

	if err := m.store.CreateSession(sessionID, startedAt, m.modes.Current()); err != nil {
		slog.Error("create session record", "session", sessionID, "error", err)
	}

	if err := m.SendEvent(realtime.NewSessionUpdate(m.modes.Instructions())); err != nil {
		slog.Error("send initial session config", "error", err)
	}

	go m.readLoop(ch, sessionID)

	m.hub.BroadcastSessionStarted(sessionID)
	slog.Info("session started", "session", sessionID, "mode", m.modes.Current())
	return nil
}

// Stop tears the session down and resets per-session state.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.status != StatusActive && m.status != StatusConnecting {
		m.mu.Unlock()
		return ErrNoActiveSession
	}
	ch := m.channel
	sessionID := m.sessionID
	startedAt := m.startedAt
	m.channel = nil
	m.sessionID = ""
	m.status = StatusClosed
	m.mu.Unlock()

	if ch != nil {
		if err := ch.Close(); err != nil {
			slog.Warn("close realtime channel", "error", err)
		}
	}
	if m.media != nil {
		m.media.Stop()
	}

	m.dispatcher.Reset()
	m.ledger.Reset()

	endedAt := m.now().UTC()
	if sessionID != "" {
		if err := m.store.EndSession(sessionID, endedAt); err != nil {
			slog.Error("end session record", "session", sessionID, "error", err)
		}
		m.hub.BroadcastSessionEnded(sessionID, endedAt.Sub(startedAt))
	}

	m.setStatus(StatusIdle)
	slog.Info("session stopped", "session", sessionID)
	return nil
}

// SendEvent stamps an event id if absent and forwards the event to the
// channel. Logged no-op when no session is active.
func (m *Manager) SendEvent(evt realtime.ClientEvent) error {
	m.mu.Lock()
	ch := m.channel
	active := m.status == StatusActive
	m.mu.Unlock()

	if !active || ch == nil {
		slog.Warn("dropping outbound event, no active session", "type", evt.Type)
		return ErrNoActiveSession
	}

	if evt.EventID == "" {
		evt.EventID = m.newID()
	}
	return ch.Send(evt)
}

// readLoop feeds channel events to the dispatcher until the channel closes.
func (m *Manager) readLoop(ch Channel, sessionID string) {
	for evt := range ch.Events() {
		m.dispatcher.Handle(evt)
	}

	// Channel gone. If we did not initiate the close, tear down; there is
	// no automatic reconnect.
	m.mu.Lock()
	unexpected := m.status == StatusActive && m.sessionID == sessionID
	m.mu.Unlock()

	if unexpected {
		slog.Error("realtime channel closed unexpectedly", "session", sessionID)
		m.hub.BroadcastError("Realtime connection lost.")
		if err := m.Stop(); err != nil {
			slog.Warn("teardown after channel loss", "error", err)
		}
	}
}

// modeChanged re-sends session instructions when the mode switches during an
// active session, and clears analyzer history on (re)entry to interview mode.
func (m *Manager) modeChanged(target mode.Mode) {
	if target == mode.Interview && m.analyzer != nil {
		m.analyzer.Reset()
	}

	if m.Active() {
		if err := m.SendEvent(realtime.NewSessionUpdate(mode.Instructions(target))); err != nil {
			slog.Error("send mode instructions", "mode", target, "error", err)
		}
	}

	m.hub.BroadcastModeChanged(target)
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}
