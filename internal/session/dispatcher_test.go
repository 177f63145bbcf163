package session

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/interview"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/realtime"
)

type senderMock struct {
	mu     sync.Mutex
	events []realtime.ClientEvent
	err    error
}

func (s *senderMock) SendEvent(evt realtime.ClientEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, evt)
	return nil
}

func (s *senderMock) sent() []realtime.ClientEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.ClientEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *senderMock) sentOfType(eventType string) []realtime.ClientEvent {
	var out []realtime.ClientEvent
	for _, evt := range s.sent() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type hubMock struct {
	mu            sync.Mutex
	entries       []conversation.Entry
	updated       []conversation.Entry
	costs         []cost.Snapshot
	statusChanges []bool
	listening     []bool
	modes         []mode.Mode
	errors        []string
	started       []string
	ended         []string
}

func (h *hubMock) BroadcastEntry(e conversation.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

func (h *hubMock) BroadcastEntryUpdated(e conversation.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updated = append(h.updated, e)
}

func (h *hubMock) BroadcastSessionStarted(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, sessionID)
}

func (h *hubMock) BroadcastSessionEnded(sessionID string, _ time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ended = append(h.ended, sessionID)
}

func (h *hubMock) BroadcastCost(s cost.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.costs = append(h.costs, s)
}

func (h *hubMock) BroadcastListening(listening bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listening = append(h.listening, listening)
}

func (h *hubMock) BroadcastStatusChanged(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusChanges = append(h.statusChanges, paused)
}

func (h *hubMock) BroadcastModeChanged(m mode.Mode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modes = append(h.modes, m)
}

func (h *hubMock) BroadcastError(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, message)
}

type storeMock struct {
	mu       sync.Mutex
	sessions []string
	ended    []string
	entries  []conversation.Entry
	records  []cost.Record
	err      error
}

func (s *storeMock) CreateSession(id string, _ time.Time, _ mode.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *storeMock) EndSession(id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.ended = append(s.ended, id)
	return nil
}

func (s *storeMock) AppendEntry(_ string, e conversation.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *storeMock) AppendCostRecord(_ string, r cost.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

type mediaMock struct {
	mu         sync.Mutex
	acquireErr error
	enabled    []bool
	stopped    bool
}

func (m *mediaMock) Acquire(_ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireErr
}

func (m *mediaMock) SetInputEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = append(m.enabled, enabled)
}

func (m *mediaMock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// timerQueue stands in for time.AfterFunc so tests fire scheduled callbacks
// deterministically.
type timerQueue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *timerQueue) after(_ time.Duration, fn func()) *time.Timer {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.fns = append(q.fns, fn)
	return time.NewTimer(time.Hour)
}

func (q *timerQueue) fire() {
	q.mu.Lock()
	fns := q.fns
	q.fns = nil
	q.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (q *timerQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sender     *senderMock
	hub        *hubMock
	store      *storeMock
	media      *mediaMock
	timers     *timerQueue
	modes      *mode.Controller
	ledger     *cost.Ledger
	log        *conversation.Log
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		sender: &senderMock{},
		hub:    &hubMock{},
		store:  &storeMock{},
		media:  &mediaMock{},
		timers: &timerQueue{},
		modes:  mode.NewController(),
		ledger: cost.NewLedger(5.0, 50),
		log:    conversation.NewLog(),
	}
	f.dispatcher = NewDispatcher(DefaultConfig("gpt-4o-realtime-preview"), f.sender, Deps{
		Modes:    f.modes,
		Analyzer: interview.NewAnalyzer(),
		Ledger:   f.ledger,
		Log:      f.log,
		Store:    f.store,
		Hub:      f.hub,
		Media:    f.media,
	})
	f.dispatcher.sched.after = f.timers.after
	f.dispatcher.BindSession("test-session")
	return f
}

func (f *dispatcherFixture) handle(eventType string, mutate func(*realtime.ServerEvent)) {
	evt := realtime.ServerEvent{Type: eventType}
	if mutate != nil {
		mutate(&evt)
	}
	f.dispatcher.Handle(evt)
}

func TestDispatcherConcatenatesStreamingDeltas(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)
	f.handle(realtime.EventResponseTextDelta, func(e *realtime.ServerEvent) { e.Delta = "Hel" })
	f.handle(realtime.EventResponseTextDelta, func(e *realtime.ServerEvent) { e.Delta = "lo" })
	f.handle(realtime.EventResponseTextDone, nil)

	entries := f.log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Content != "Hello" {
		t.Errorf("expected concatenated content %q, got %q", "Hello", entries[0].Content)
	}
	if entries[0].IsStreaming {
		t.Error("expected stream to be closed")
	}
	if f.ledger.RunningTotal() <= 0 {
		t.Error("expected streaming estimate to accrue cost")
	}
}

func TestDispatcherTranscriptionTriggersDelayedResponse(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What is the capital of France?"
	})

	entries := f.log.Entries()
	if len(entries) != 1 || !entries[0].IsVoice || entries[0].Role != conversation.RoleUser {
		t.Fatalf("expected one user voice entry, got %+v", entries)
	}
	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected 1 scheduled trigger, got %d", got)
	}
	if len(f.sender.sent()) != 0 {
		t.Fatal("response request must wait for the settle delay")
	}

	f.timers.fire()

	requests := f.sender.sentOfType(realtime.EventResponseCreate)
	if len(requests) != 1 {
		t.Fatalf("expected 1 response request, got %d", len(requests))
	}
	if requests[0].Response.MaxOutputTokens != 500 {
		t.Errorf("expected max_output_tokens 500, got %d", requests[0].Response.MaxOutputTokens)
	}
	if got := f.ledger.Snapshot().ResponseCount; got != 1 {
		t.Errorf("expected response count 1, got %d", got)
	}
}

func TestDispatcherCoalescesConcurrentTriggers(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What time is it?"
	})
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "Where are we going?"
	})

	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected triggers to coalesce into 1, got %d", got)
	}

	f.timers.fire()

	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != 1 {
		t.Errorf("expected exactly 1 response request, got %d", got)
	}
	if got := f.ledger.Snapshot().ResponseCount; got != 1 {
		t.Errorf("expected response count 1, got %d", got)
	}
}

func TestDispatcherDropsTranscriptionWhilePaused(t *testing.T) {
	f := newDispatcherFixture()

	f.dispatcher.Pause()
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What did I miss?"
	})

	if f.log.Len() != 0 {
		t.Error("paused transcription must not be recorded")
	}
	if f.timers.pending() != 0 {
		t.Error("paused transcription must not schedule a response")
	}
	if f.ledger.RunningTotal() != 0 {
		t.Error("paused transcription must not accrue cost")
	}
}

func TestDispatcherPauseDisablesInput(t *testing.T) {
	f := newDispatcherFixture()

	f.dispatcher.Pause()

	f.media.mu.Lock()
	defer f.media.mu.Unlock()
	if len(f.media.enabled) != 1 || f.media.enabled[0] {
		t.Fatalf("expected input disabled once, got %v", f.media.enabled)
	}
}

func TestDispatcherAutoResumesAfterPausedGeneration(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)
	f.dispatcher.Pause()
	f.handle(realtime.EventResponseDone, nil)

	if !f.dispatcher.Paused() {
		t.Fatal("pause must hold until the auto-resume delay elapses")
	}
	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected 1 auto-resume timer, got %d", got)
	}

	f.timers.fire()

	if f.dispatcher.Paused() {
		t.Error("expected auto-resume to lift the pause")
	}

	f.hub.mu.Lock()
	changes := append([]bool(nil), f.hub.statusChanges...)
	f.hub.mu.Unlock()
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("expected status changes [paused, resumed], got %v", changes)
	}
}

func TestDispatcherAutoResumeYieldsToManualResume(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)
	f.dispatcher.Pause()
	f.handle(realtime.EventResponseDone, nil)
	f.dispatcher.Resume()

	f.hub.mu.Lock()
	before := len(f.hub.statusChanges)
	f.hub.mu.Unlock()

	f.timers.fire()

	f.hub.mu.Lock()
	after := len(f.hub.statusChanges)
	f.hub.mu.Unlock()
	if before != after {
		t.Error("auto-resume must be a no-op after a manual resume")
	}
}

func TestDispatcherManualPauseDoesNotAutoResume(t *testing.T) {
	f := newDispatcherFixture()

	f.dispatcher.Pause()
	f.handle(realtime.EventResponseDone, nil)

	if f.timers.pending() != 0 {
		t.Error("pause taken outside generation must not schedule auto-resume")
	}
	if !f.dispatcher.Paused() {
		t.Error("expected pause to hold")
	}
}

func TestDispatcherAdvisorModeNeverAutoResponds(t *testing.T) {
	f := newDispatcherFixture()
	f.modes.SetMode(mode.Advisor)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What should we order for lunch?"
	})

	if f.log.Len() != 1 {
		t.Fatal("advisor mode must still record the transcript")
	}
	if f.timers.pending() != 0 {
		t.Error("advisor mode must never schedule a response")
	}
	if len(f.sender.sent()) != 0 {
		t.Error("advisor mode must never send a response request")
	}
}

func TestDispatcherBlockedLedgerStopsResponses(t *testing.T) {
	f := newDispatcherFixture()

	f.ledger.Add(cost.Record{Kind: cost.KindRealtimeResponse, Total: 5.0, CreatedAt: time.Now()})
	if !f.ledger.Blocked() {
		t.Fatal("ledger should be blocked at the limit")
	}

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What happens now?"
	})

	if f.log.Len() != 1 {
		t.Error("blocked session must still record the transcript")
	}
	if f.timers.pending() != 0 {
		t.Error("blocked session must not schedule a response")
	}
}

func TestDispatcherInterviewQuestionSchedulesPrompt(t *testing.T) {
	f := newDispatcherFixture()
	f.modes.SetMode(mode.Interview)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "Next question, can you describe your experience with Go?"
	})

	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected 1 interview trigger, got %d", got)
	}

	f.timers.fire()

	prompts := f.sender.sentOfType(realtime.EventItemCreate)
	if len(prompts) != 1 {
		t.Fatalf("expected 1 contextual prompt, got %d", len(prompts))
	}
	content := prompts[0].Item.Content[0].Text
	if !strings.Contains(content, "describe your experience with Go") {
		t.Errorf("prompt should quote the question, got %q", content)
	}
	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != 1 {
		t.Errorf("expected exactly 1 response request, got %d", got)
	}
}

func TestDispatcherInterviewDeclineFallsBackToGenericPath(t *testing.T) {
	f := newDispatcherFixture()
	f.modes.SetMode(mode.Interview)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "I spent three years on the platform team."
	})

	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected generic fallback trigger, got %d", got)
	}

	f.timers.fire()

	if got := len(f.sender.sentOfType(realtime.EventItemCreate)); got != 0 {
		t.Errorf("generic fallback must not send a contextual prompt, got %d", got)
	}
	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != 1 {
		t.Errorf("expected 1 response request, got %d", got)
	}
}

func TestDispatcherInterviewLowConfidenceStaysSilent(t *testing.T) {
	f := newDispatcherFixture()
	f.modes.SetMode(mode.Interview)

	// Prime analyzer history with interviewer activity, then complete the
	// generic response cycle it triggers.
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "Moving on, let us discuss the next topic."
	})
	f.timers.fire()
	f.handle(realtime.EventResponseDone, nil)

	sentBefore := len(f.sender.sentOfType(realtime.EventResponseCreate))

	// A trailing rising word with no question mark classifies as a possible
	// question at confidence 0.5, below the 0.7 response threshold.
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "The deployment pipeline is fully automated, correct"
	})

	if got := f.timers.pending(); got != 0 {
		t.Fatalf("below-threshold verdict must schedule nothing, got %d triggers", got)
	}

	f.timers.fire()

	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != sentBefore {
		t.Errorf("expected no further response requests, got %d", got-sentBefore)
	}
	if got := len(f.sender.sentOfType(realtime.EventItemCreate)); got != 0 {
		t.Errorf("expected no contextual prompt, got %d", got)
	}
}

func TestDispatcherTranscriptionDuringGenerationDoesNotRetrigger(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "And what about the second part?"
	})

	if got := f.timers.pending(); got != 0 {
		t.Fatalf("transcription during generation must not schedule, got %d triggers", got)
	}

	f.handle(realtime.EventResponseDone, nil)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What about the third part?"
	})

	if got := f.timers.pending(); got != 1 {
		t.Fatalf("expected trigger after response.done, got %d", got)
	}
}

func TestDispatcherResponseDoneRecordsUsage(t *testing.T) {
	f := newDispatcherFixture()

	usage := &realtime.Usage{InputTextTokens: 100, OutputTextTokens: 50, InputAudioTokens: 1000, OutputAudioTokens: 0}
	f.handle(realtime.EventResponseDone, func(e *realtime.ServerEvent) {
		e.Response = &realtime.ResponsePayload{Usage: usage}
	})

	want := cost.Realtime(cost.RealtimeUsage{InputTextTokens: 100, OutputTextTokens: 50, InputAudioTokens: 1000}).Total
	if got := f.ledger.RecordTotal(); got != want {
		t.Errorf("expected record total %v, got %v", want, got)
	}

	f.store.mu.Lock()
	records := len(f.store.records)
	f.store.mu.Unlock()
	if records != 1 {
		t.Errorf("expected 1 persisted cost record, got %d", records)
	}
}

func TestDispatcherUsageCrossingLimitBlocks(t *testing.T) {
	f := newDispatcherFixture()

	f.ledger.Add(cost.Record{Kind: cost.KindRealtimeResponse, Total: 4.99, CreatedAt: time.Now()})
	if f.ledger.Blocked() {
		t.Fatal("ledger should not be blocked below the limit")
	}

	// 1000 output text tokens at $0.02/1K comes to $0.02.
	f.handle(realtime.EventResponseDone, func(e *realtime.ServerEvent) {
		e.Response = &realtime.ResponsePayload{Usage: &realtime.Usage{OutputTextTokens: 1000}}
	})

	if !f.ledger.Blocked() {
		t.Error("expected crossing the cost limit to block the session")
	}

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "Can you keep going?"
	})
	if f.timers.pending() != 0 {
		t.Error("blocked session must not schedule further responses")
	}
}

func TestDispatcherResponseDoneFinalTextWithoutStream(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseDone, func(e *realtime.ServerEvent) {
		e.Response = &realtime.ResponsePayload{
			Output: []realtime.OutputItem{{
				Type:    "message",
				Content: []realtime.ContentPart{{Type: "text", Text: "final answer"}},
			}},
		}
	})

	entries := f.log.Entries()
	if len(entries) != 1 || entries[0].Content != "final answer" {
		t.Fatalf("expected final content appended, got %+v", entries)
	}
}

func TestDispatcherResponseDoneSkipsContentAbsorbedByStream(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)
	f.handle(realtime.EventResponseTextDelta, func(e *realtime.ServerEvent) { e.Delta = "final answer" })
	f.handle(realtime.EventResponseTextDone, nil)
	f.handle(realtime.EventResponseDone, func(e *realtime.ServerEvent) {
		e.Response = &realtime.ResponsePayload{
			Output: []realtime.OutputItem{{
				Type:    "message",
				Content: []realtime.ContentPart{{Type: "text", Text: "final answer"}},
			}},
		}
	})

	if got := f.log.Len(); got != 1 {
		t.Errorf("streamed content must not be duplicated, got %d entries", got)
	}
}

func TestDispatcherSwallowsBenignActiveResponseError(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventResponseCreated, nil)
	f.handle(realtime.EventError, func(e *realtime.ServerEvent) {
		e.Error = &realtime.ErrorInfo{Type: "invalid_request_error", Message: "Conversation already has an active response"}
	})

	f.hub.mu.Lock()
	errorCount := len(f.hub.errors)
	f.hub.mu.Unlock()
	if errorCount != 0 {
		t.Error("benign active-response conflict must not surface")
	}

	// The in-flight slot must be free again.
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "Are we still on?"
	})
	if f.timers.pending() != 1 {
		t.Error("expected the next transcription to schedule a response")
	}
}

func TestDispatcherSurfacesOtherErrors(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventError, func(e *realtime.ServerEvent) {
		e.Error = &realtime.ErrorInfo{Type: "server_error", Message: "something broke"}
	})

	f.hub.mu.Lock()
	defer f.hub.mu.Unlock()
	if len(f.hub.errors) != 1 || f.hub.errors[0] != "something broke" {
		t.Errorf("expected surfaced error, got %v", f.hub.errors)
	}
}

func TestDispatcherSendUserTextRequestsResponse(t *testing.T) {
	f := newDispatcherFixture()

	if err := f.dispatcher.SendUserText("hello there", true); err != nil {
		t.Fatalf("SendUserText: %v", err)
	}

	entries := f.log.Entries()
	if len(entries) != 1 || !entries[0].IsClipboard {
		t.Fatalf("expected clipboard entry, got %+v", entries)
	}
	if got := len(f.sender.sentOfType(realtime.EventItemCreate)); got != 1 {
		t.Errorf("expected 1 item.create, got %d", got)
	}
	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != 1 {
		t.Errorf("expected 1 response.create, got %d", got)
	}

	// A second send while a response is in flight adds the message but
	// does not stack another request.
	if err := f.dispatcher.SendUserText("and this", false); err != nil {
		t.Fatalf("SendUserText: %v", err)
	}
	if got := len(f.sender.sentOfType(realtime.EventResponseCreate)); got != 1 {
		t.Errorf("expected response requests to coalesce, got %d", got)
	}
}

func TestDispatcherAdviceRequestCarriesOverheardContext(t *testing.T) {
	f := newDispatcherFixture()
	f.modes.SetMode(mode.Advisor)

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "We should renegotiate the contract."
	})
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "They want an answer by Friday."
	})

	if err := f.dispatcher.SendAdviceRequest("How should I respond?"); err != nil {
		t.Fatalf("SendAdviceRequest: %v", err)
	}

	prompts := f.sender.sentOfType(realtime.EventItemCreate)
	if len(prompts) != 1 {
		t.Fatalf("expected 1 advice prompt, got %d", len(prompts))
	}
	content := prompts[0].Item.Content[0].Text
	if !strings.Contains(content, "renegotiate the contract") || !strings.Contains(content, "answer by Friday") {
		t.Errorf("advice prompt should carry overheard context, got %q", content)
	}

	requests := f.sender.sentOfType(realtime.EventResponseCreate)
	if len(requests) != 1 || requests[0].Response.MaxOutputTokens != 300 {
		t.Errorf("expected advice response capped at 300 tokens, got %+v", requests)
	}
}

func TestDispatcherResetCancelsScheduledTriggers(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) {
		e.Transcript = "What was that?"
	})
	if f.timers.pending() != 1 {
		t.Fatal("expected a scheduled trigger")
	}

	f.dispatcher.Reset()
	f.timers.fire()

	if got := len(f.sender.sent()); got != 0 {
		t.Errorf("stale trigger fired after reset, sent %d events", got)
	}
}

func TestDispatcherListeningIndicator(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventSpeechStarted, nil)
	f.handle(realtime.EventSpeechStopped, nil)

	f.hub.mu.Lock()
	defer f.hub.mu.Unlock()
	if len(f.hub.listening) != 2 || !f.hub.listening[0] || f.hub.listening[1] {
		t.Errorf("expected listening [true, false], got %v", f.hub.listening)
	}
	if f.timers.pending() != 0 {
		t.Error("speech events must not trigger responses")
	}
}

func TestDispatcherPartialTranscriptUpdatesInPlace(t *testing.T) {
	f := newDispatcherFixture()

	f.handle(realtime.EventTranscriptionPartial, func(e *realtime.ServerEvent) { e.Transcript = "What is" })
	f.handle(realtime.EventTranscriptionPartial, func(e *realtime.ServerEvent) { e.Transcript = "What is the plan" })
	f.handle(realtime.EventTranscriptionCompleted, func(e *realtime.ServerEvent) { e.Transcript = "What is the plan?" })

	entries := f.log.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected partial to finalize in place, got %d entries", len(entries))
	}
	if entries[0].IsPartial || entries[0].Content != "What is the plan?" {
		t.Errorf("unexpected finalized entry %+v", entries[0])
	}
}
