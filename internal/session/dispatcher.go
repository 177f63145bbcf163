package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/interview"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/realtime"
)

// Deps bundles the dispatcher's collaborators.
type Deps struct {
	Modes    *mode.Controller
	Analyzer *interview.Analyzer
	Ledger   *cost.Ledger
	Log      *conversation.Log
	Store    Store
	Hub      EventBroadcaster
	Media    Media
}

// Dispatcher consumes inbound channel events in arrival order and applies
// the response-triggering policy: at most one response-request in flight,
// nothing automatic while paused, nothing automatic in advisor mode, and
// nothing once the cost ledger is blocked.
type Dispatcher struct {
	cfg      Config
	sender   Sender
	modes    *mode.Controller
	analyzer *interview.Analyzer
	ledger   *cost.Ledger
	log      *conversation.Log
	store    Store
	hub      EventBroadcaster
	media    Media

	mu          sync.Mutex
	sessionID   string
	listening   bool
	paused      bool
	pausedInGen bool
	inFlight    bool
	sawDelta    bool
	sched       *scheduler

	now func() time.Time
}

func NewDispatcher(cfg Config, sender Sender, deps Deps) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		modes:    deps.Modes,
		analyzer: deps.Analyzer,
		ledger:   deps.Ledger,
		log:      deps.Log,
		store:    deps.Store,
		hub:      deps.Hub,
		media:    deps.Media,
		sched:    newScheduler(),
		now:      time.Now,
	}
}

// BindSession points persistence at the given session.
func (d *Dispatcher) BindSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessionID = sessionID
}

// Reset cancels every scheduled trigger and returns the dispatcher to its
// initial state. Called on session start and stop; scheduled callbacks from
// the previous session can never fire into the next one.
func (d *Dispatcher) Reset() {
	d.sched.CancelAll()

	d.mu.Lock()
	d.sessionID = ""
	d.listening = false
	d.paused = false
	d.pausedInGen = false
	d.inFlight = false
	d.sawDelta = false
	d.mu.Unlock()
}

// Handle processes one inbound event. Callers must not invoke it
// concurrently; the channel read loop is the single producer.
func (d *Dispatcher) Handle(evt realtime.ServerEvent) {
	switch evt.Type {
	case realtime.EventSpeechStarted:
		d.setListening(true)
	case realtime.EventSpeechStopped:
		d.setListening(false)
	case realtime.EventTranscriptionPartial:
		d.handlePartialTranscription(evt.Transcript)
	case realtime.EventTranscriptionCompleted:
		d.handleTranscription(evt.Transcript)
	case realtime.EventTranscriptionFailed:
		slog.Warn("input transcription failed", "event_id", evt.EventID)
	case realtime.EventResponseCreated:
		d.mu.Lock()
		d.inFlight = true
		d.sawDelta = false
		d.mu.Unlock()
	case realtime.EventResponseTextDelta, realtime.EventAudioTranscriptDelta:
		d.handleDelta(evt.Delta)
	case realtime.EventResponseTextDone, realtime.EventAudioTranscriptDone:
		d.finishStream()
	case realtime.EventResponseDone:
		d.handleResponseDone(evt)
	case realtime.EventError:
		d.handleError(evt.Error)
	default:
		slog.Debug("unhandled realtime event", "type", evt.Type)
	}
}

func (d *Dispatcher) setListening(listening bool) {
	d.mu.Lock()
	if d.paused || d.listening == listening {
		d.mu.Unlock()
		return
	}
	d.listening = listening
	d.mu.Unlock()

	d.hub.BroadcastListening(listening)
}

func (d *Dispatcher) handlePartialTranscription(transcript string) {
	if strings.TrimSpace(transcript) == "" {
		return
	}
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if paused {
		return
	}

	entry := d.log.SetPartialTranscript(transcript)
	d.hub.BroadcastEntryUpdated(entry)
}

func (d *Dispatcher) handleTranscription(transcript string) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}

	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()
	if paused {
		// Dropped entirely: no transcript entry, no cost, no trigger.
		return
	}

	entry := d.log.AppendUserVoice(transcript)
	d.persistEntry(entry)
	d.hub.BroadcastEntry(entry)

	rec := cost.TranscriptionRecord(transcript, d.now())
	d.ledger.Add(rec)
	d.persistCost(rec)
	d.hub.BroadcastCost(d.ledger.Snapshot())

	current := d.modes.Current()
	if current == mode.Advisor {
		return
	}

	if !d.ledger.AllowAutoResponse() {
		d.hub.BroadcastCost(d.ledger.Snapshot())
		return
	}

	if current == mode.Interview {
		analysis := d.analyzer.Analyze(transcript, d.now())
		if analysis.ShouldRespond {
			if analysis.Confidence >= d.cfg.InterviewThreshold && analysis.Response != nil {
				prompt := interview.BuildPrompt(*analysis.Response, d.cfg.InterviewType)
				d.scheduleResponse(d.cfg.InterviewDelay, prompt, d.cfg.MaxResponseTokens)
			}
			// A respond verdict below the confidence threshold stays
			// silent; it never falls through to the generic trigger.
			return
		}
		// Analyzer declined; the generic path below still applies.
	}

	d.scheduleResponse(d.cfg.ResponseSettleDelay, "", d.cfg.MaxResponseTokens)
}

// scheduleResponse claims the in-flight slot immediately so concurrent
// triggers coalesce, then issues the response-request after the delay. The
// slot is released if the session pauses before the timer fires or the send
// fails.
func (d *Dispatcher) scheduleResponse(delay time.Duration, prompt string, maxTokens int) {
	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return
	}
	d.inFlight = true
	d.mu.Unlock()

	d.ledger.CountResponse()

	d.sched.After(delay, func() {
		d.mu.Lock()
		if d.paused {
			d.inFlight = false
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		if prompt != "" {
			if err := d.sender.SendEvent(realtime.NewUserMessage(prompt)); err != nil {
				slog.Error("send contextual prompt", "error", err)
				d.clearInFlight()
				return
			}
		}
		if err := d.sender.SendEvent(realtime.NewResponseCreate(maxTokens)); err != nil {
			slog.Error("send response request", "error", err)
			d.clearInFlight()
		}
	})
}

func (d *Dispatcher) clearInFlight() {
	d.mu.Lock()
	d.inFlight = false
	d.mu.Unlock()
}

func (d *Dispatcher) handleDelta(delta string) {
	if delta == "" {
		return
	}

	d.mu.Lock()
	d.inFlight = true
	d.sawDelta = true
	d.mu.Unlock()

	entry := d.log.AppendAssistantDelta(delta)
	d.ledger.AddStreamingEstimate(cost.StreamingDelta(delta))
	d.hub.BroadcastEntryUpdated(entry)
}

func (d *Dispatcher) finishStream() {
	if entry, ok := d.log.FinishAssistantStream(); ok {
		d.persistEntry(entry)
		d.hub.BroadcastEntryUpdated(entry)
	}
}

func (d *Dispatcher) handleResponseDone(evt realtime.ServerEvent) {
	d.mu.Lock()
	d.inFlight = false
	sawDelta := d.sawDelta
	d.sawDelta = false
	resume := d.paused && d.pausedInGen
	d.mu.Unlock()

	if u := evt.ResponseUsage(); u != nil {
		rec := cost.RealtimeRecord(cost.RealtimeUsage{
			InputTextTokens:   u.InputTextTokens,
			OutputTextTokens:  u.OutputTextTokens,
			InputAudioTokens:  u.InputAudioTokens,
			OutputAudioTokens: u.OutputAudioTokens,
		}, d.now())
		d.ledger.Add(rec)
		d.persistCost(rec)
		d.hub.BroadcastCost(d.ledger.Snapshot())
	}

	if text := evt.FinalText(); text != "" {
		switch {
		case d.log.StreamingOpen():
			// The stream never saw its done signal; the final content is
			// authoritative.
			entry := d.log.FinalizeAssistantText(text)
			d.persistEntry(entry)
			d.hub.BroadcastEntryUpdated(entry)
		case !sawDelta:
			entry := d.log.FinalizeAssistantText(text)
			d.persistEntry(entry)
			d.hub.BroadcastEntry(entry)
		}
		// Streamed and already closed: the deltas absorbed the content.
	}

	if resume {
		d.sched.After(d.cfg.AutoResumeDelay, d.autoResume)
	}
}

// autoResume lifts a pause that was taken while a response was generating.
// The guard re-checks the flags so a manual resume or a fresh pause in the
// meantime wins; the resume fires at most once per pause.
func (d *Dispatcher) autoResume() {
	d.mu.Lock()
	if !d.paused || !d.pausedInGen {
		d.mu.Unlock()
		return
	}
	d.paused = false
	d.pausedInGen = false
	d.mu.Unlock()

	if d.media != nil {
		d.media.SetInputEnabled(true)
	}
	d.hub.BroadcastStatusChanged(false)
}

func (d *Dispatcher) handleError(info *realtime.ErrorInfo) {
	d.mu.Lock()
	d.inFlight = false
	d.sawDelta = false
	d.mu.Unlock()

	if info == nil {
		return
	}
	if strings.Contains(info.Message, "active response") {
		// Conflict with a response we already requested; harmless.
		slog.Debug("realtime response conflict", "message", info.Message)
		return
	}

	slog.Error("realtime error", "type", info.Type, "code", info.Code, "message", info.Message)
	d.hub.BroadcastError(info.Message)
}

// Pause suspends listening. A pause taken while a response is generating is
// remembered so the dispatcher can auto-resume after the response completes.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	if d.paused {
		d.mu.Unlock()
		return
	}
	d.paused = true
	d.pausedInGen = d.inFlight
	d.mu.Unlock()

	if d.media != nil {
		d.media.SetInputEnabled(false)
	}
	d.hub.BroadcastStatusChanged(true)
}

// Resume lifts a pause manually, clearing any pending auto-resume intent.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	if !d.paused {
		d.mu.Unlock()
		return
	}
	d.paused = false
	d.pausedInGen = false
	d.mu.Unlock()

	if d.media != nil {
		d.media.SetInputEnabled(true)
	}
	d.hub.BroadcastStatusChanged(false)
}

// TogglePause flips the pause state and reports the new value.
func (d *Dispatcher) TogglePause() bool {
	d.mu.Lock()
	paused := d.paused
	d.mu.Unlock()

	if paused {
		d.Resume()
		return false
	}
	d.Pause()
	return true
}

func (d *Dispatcher) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// SendUserText forwards typed or clipboard text into the conversation and
// requests a response. Manual requests bypass the auto-response throttle but
// still coalesce on the in-flight slot.
func (d *Dispatcher) SendUserText(text string, clipboard bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	entry := d.log.Append(conversation.Entry{Role: conversation.RoleUser, Content: text, IsClipboard: clipboard})
	d.persistEntry(entry)
	d.hub.BroadcastEntry(entry)

	if err := d.sender.SendEvent(realtime.NewUserMessage(text)); err != nil {
		return fmt.Errorf("send user message: %w", err)
	}

	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return nil
	}
	d.inFlight = true
	d.mu.Unlock()

	if err := d.sender.SendEvent(realtime.NewResponseCreate(d.cfg.MaxResponseTokens)); err != nil {
		d.clearInFlight()
		return fmt.Errorf("send response request: %w", err)
	}
	return nil
}

// SendAdviceRequest asks for advice about the conversation overheard so far.
// The recent voice transcript rides along as context and the response is
// capped tighter than a normal reply.
func (d *Dispatcher) SendAdviceRequest(question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil
	}

	entry := d.log.Append(conversation.Entry{Role: conversation.RoleUser, Content: question, IsAdviceRequest: true})
	d.persistEntry(entry)
	d.hub.BroadcastEntry(entry)

	var b strings.Builder
	recent := d.log.RecentVoice(10)
	if len(recent) > 0 {
		b.WriteString("Here is the recent conversation overheard around the user:\n")
		for _, e := range recent {
			b.WriteString("- ")
			b.WriteString(e.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("The user asks for advice: ")
	b.WriteString(question)
	b.WriteString("\nGive brief, practical advice. Do not address anyone but the user.")

	if err := d.sender.SendEvent(realtime.NewUserMessage(b.String())); err != nil {
		return fmt.Errorf("send advice request: %w", err)
	}

	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return nil
	}
	d.inFlight = true
	d.mu.Unlock()

	if err := d.sender.SendEvent(realtime.NewResponseCreate(d.cfg.AdviceMaxTokens)); err != nil {
		d.clearInFlight()
		return fmt.Errorf("send response request: %w", err)
	}
	return nil
}

func (d *Dispatcher) persistEntry(e conversation.Entry) {
	d.mu.Lock()
	sessionID := d.sessionID
	d.mu.Unlock()
	if d.store == nil || sessionID == "" {
		return
	}
	if err := d.store.AppendEntry(sessionID, e); err != nil {
		slog.Error("persist conversation entry", "session", sessionID, "error", err)
	}
}

func (d *Dispatcher) persistCost(r cost.Record) {
	d.mu.Lock()
	sessionID := d.sessionID
	d.mu.Unlock()
	if d.store == nil || sessionID == "" {
		return
	}
	if err := d.store.AppendCostRecord(sessionID, r); err != nil {
		slog.Error("persist cost record", "session", sessionID, "error", err)
	}
}
