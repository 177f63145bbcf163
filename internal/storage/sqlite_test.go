package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestSQLitePragmas(t *testing.T) {
	store := newTestSQLiteStore(t)

	var journalMode string
	if err := store.DB().QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if journalMode != "wal" {
		t.Fatalf("expected journal_mode wal, got %q", journalMode)
	}

	var timeout int
	if err := store.DB().QueryRow("PRAGMA busy_timeout").Scan(&timeout); err != nil {
		t.Fatalf("PRAGMA busy_timeout failed: %v", err)
	}
	if timeout < 5000 {
		t.Fatalf("expected busy_timeout >= 5000, got %d", timeout)
	}
}

func TestSQLiteSessionRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	sessionID := startedAt.Format("20060102150405")
	if err := store.CreateSession(sessionID, startedAt, mode.Interview); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	entry := conversation.Entry{
		ID:        "entry-1",
		Role:      conversation.RoleUser,
		Content:   "Tell me about your experience.",
		IsVoice:   true,
		CreatedAt: startedAt.Add(2 * time.Second),
	}
	if err := store.AppendEntry(sessionID, entry); err != nil {
		t.Fatalf("AppendEntry failed: %v", err)
	}

	record := cost.Record{
		Kind:      cost.KindRealtimeResponse,
		Model:     "gpt-4o-realtime-preview",
		Tokens:    map[string]int{"output_text": 120},
		Total:     0.0024,
		CreatedAt: startedAt.Add(3 * time.Second),
	}
	if err := store.AppendCostRecord(sessionID, record); err != nil {
		t.Fatalf("AppendCostRecord failed: %v", err)
	}

	if err := store.EndSession(sessionID, startedAt.Add(30*time.Second)); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}

	session, err := store.GetSession(sessionID)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session.Status != "ended" {
		t.Fatalf("expected status ended, got %q", session.Status)
	}
	if session.Mode != string(mode.Interview) {
		t.Fatalf("expected mode interview, got %q", session.Mode)
	}
	if session.EndedAt == nil {
		t.Fatal("expected ended_at to be set")
	}

	entries, err := store.GetEntries(sessionID)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Content != entry.Content || !entries[0].IsVoice {
		t.Fatalf("unexpected entry %+v", entries[0])
	}

	records, err := store.GetCostRecords(sessionID)
	if err != nil {
		t.Fatalf("GetCostRecords failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 cost record, got %d", len(records))
	}
	if records[0].Kind != cost.KindRealtimeResponse || records[0].Total != record.Total {
		t.Fatalf("unexpected record %+v", records[0])
	}
	if records[0].Tokens["output_text"] != 120 {
		t.Fatalf("token counts not round-tripped: %+v", records[0].Tokens)
	}

	sessionsByDate, err := store.GetSessionsByDate("2026-08-28")
	if err != nil {
		t.Fatalf("GetSessionsByDate failed: %v", err)
	}
	if len(sessionsByDate) != 1 {
		t.Fatalf("expected 1 session for date, got %d", len(sessionsByDate))
	}

	dates, err := store.GetDates()
	if err != nil {
		t.Fatalf("GetDates failed: %v", err)
	}
	if len(dates) != 1 || dates[0] != "2026-08-28" {
		t.Fatalf("expected dates [2026-08-28], got %#v", dates)
	}
}

func TestSQLiteCreateSessionRequiresID(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.CreateSession("  ", time.Now(), mode.Normal); err == nil {
		t.Fatal("expected error for blank session id")
	}
}

func TestSQLiteEndUnknownSession(t *testing.T) {
	store := newTestSQLiteStore(t)
	if err := store.EndSession("missing", time.Now()); err == nil {
		t.Fatal("expected error ending unknown session")
	}
}

func TestSQLiteConcurrentAccess(t *testing.T) {
	store := newTestSQLiteStore(t)

	startedAt := time.Now().UTC()
	sessionID := startedAt.Format("20060102150405")
	if err := store.CreateSession(sessionID, startedAt, mode.Normal); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = store.AppendEntry(sessionID, conversation.Entry{
				ID:        fmt.Sprintf("entry-%d", idx),
				Role:      conversation.RoleUser,
				Content:   fmt.Sprintf("message-%d", idx),
				CreatedAt: startedAt.Add(time.Duration(idx) * time.Second),
			})
			_, _ = store.GetSession(sessionID)
		}(i)
	}
	wg.Wait()

	entries, err := store.GetEntries(sessionID)
	if err != nil {
		t.Fatalf("GetEntries failed: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected 20 entries, got %d", len(entries))
	}
}
