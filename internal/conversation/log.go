package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log holds the conversation transcript for one session.
//
// The current streaming assistant entry and the current partial transcript
// are tracked by explicit handles rather than by inspecting the tail of the
// list, so at most one entry per logical stream can be in a mutable state.
type Log struct {
	mu        sync.Mutex
	entries   []*Entry
	streaming *Entry
	partial   *Entry

	newID func() string
	now   func() time.Time
}

func NewLog() *Log {
	return &Log{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

func (l *Log) append(e Entry) Entry {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}
	stored := e
	l.entries = append(l.entries, &stored)
	return stored
}

// Append adds a finalized entry.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.append(e)
}

// AppendUserVoice records a completed voice transcript. A pending partial
// transcript, if any, is finalized in place instead of appending a duplicate.
func (l *Log) AppendUserVoice(transcript string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.partial != nil {
		l.partial.Content = transcript
		l.partial.IsPartial = false
		finalized := *l.partial
		l.partial = nil
		return finalized
	}

	return l.append(Entry{Role: RoleUser, Content: transcript, IsVoice: true})
}

// SetPartialTranscript creates or updates the in-progress voice transcript.
func (l *Log) SetPartialTranscript(transcript string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.partial != nil {
		l.partial.Content = transcript
		return *l.partial
	}

	stored := l.append(Entry{Role: RoleUser, Content: transcript, IsVoice: true, IsPartial: true})
	l.partial = l.entries[len(l.entries)-1]
	return stored
}

// AppendAssistantDelta appends streamed text to the current streaming
// assistant entry, starting one if no stream is open.
func (l *Log) AppendAssistantDelta(delta string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.streaming != nil {
		l.streaming.Content += delta
		return *l.streaming
	}

	stored := l.append(Entry{Role: RoleAssistant, Content: delta, IsVoice: true, IsStreaming: true})
	l.streaming = l.entries[len(l.entries)-1]
	return stored
}

// FinishAssistantStream freezes the current streaming entry. It reports
// whether a stream was open.
func (l *Log) FinishAssistantStream() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.streaming == nil {
		return Entry{}, false
	}
	l.streaming.IsStreaming = false
	done := *l.streaming
	l.streaming = nil
	return done, true
}

// FinalizeAssistantText absorbs the final message text from a response.done
// event: the open stream is overwritten and frozen, or a fresh entry is
// appended when nothing streamed.
func (l *Log) FinalizeAssistantText(text string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.streaming != nil {
		l.streaming.Content = text
		l.streaming.IsStreaming = false
		done := *l.streaming
		l.streaming = nil
		return done
	}

	return l.append(Entry{Role: RoleAssistant, Content: text, IsVoice: true})
}

// StreamingOpen reports whether an assistant stream is currently open.
func (l *Log) StreamingOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.streaming != nil
}

// Entries returns a copy of the transcript in arrival order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = *e
	}
	return out
}

// RecentVoice returns up to n of the most recent finalized user voice
// entries, oldest first. Advisor advice requests use these as context.
func (l *Log) RecentVoice(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var voice []Entry
	for _, e := range l.entries {
		if e.Role == RoleUser && e.IsVoice && !e.IsPartial {
			voice = append(voice, *e)
		}
	}
	if len(voice) > n {
		voice = voice[len(voice)-n:]
	}
	return voice
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset clears the transcript and any open handles.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = nil
	l.streaming = nil
	l.partial = nil
}
