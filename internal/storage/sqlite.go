package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
)

type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Mode      string     `json:"mode"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "realtime-console.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'normal'
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			entry_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			is_voice INTEGER NOT NULL DEFAULT 0,
			is_clipboard INTEGER NOT NULL DEFAULT 0,
			is_advice_request INTEGER NOT NULL DEFAULT 0,
			has_image INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create entries table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cost_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			model TEXT NOT NULL,
			tokens TEXT NOT NULL DEFAULT '{}',
			total REAL NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create cost_records table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_entries_session_id ON entries(session_id, id)"); err != nil {
		return fmt.Errorf("create entries index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_cost_records_session_id ON cost_records(session_id, id)"); err != nil {
		return fmt.Errorf("create cost_records index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateSession(id string, startedAt time.Time, m mode.Mode) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, started_at, status, mode) VALUES(?, ?, 'active', ?)`,
		id,
		startedAt.UTC().Format(time.RFC3339Nano),
		string(m),
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) EndSession(id string, endedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = 'ended' WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) AppendEntry(sessionID string, e conversation.Entry) error {
	_, err := s.db.Exec(
		`INSERT INTO entries(session_id, entry_id, role, content, is_voice, is_clipboard, is_advice_request, has_image, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		e.ID,
		string(e.Role),
		strings.TrimSpace(e.Content),
		boolInt(e.IsVoice),
		boolInt(e.IsClipboard),
		boolInt(e.IsAdviceRequest),
		boolInt(e.HasImage),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append entry for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) AppendCostRecord(sessionID string, r cost.Record) error {
	tokens, err := json.Marshal(r.Tokens)
	if err != nil {
		return fmt.Errorf("encode token counts: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO cost_records(session_id, kind, model, tokens, total, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		sessionID,
		string(r.Kind),
		r.Model,
		string(tokens),
		r.Total,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append cost record for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(
		`SELECT id, started_at, ended_at, status, mode FROM sessions WHERE id = ?`,
		id,
	)

	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &startedAt, &endedAt, &sess.Status, &sess.Mode); err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse session %s started_at: %w", id, err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse session %s ended_at: %w", id, err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, status, mode
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		var sess Session
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt, &sess.Status, &sess.Mode); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		sess.StartedAt = parsedStart

		if endedAt.Valid {
			parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &parsedEnd
		}

		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) GetEntries(sessionID string) ([]conversation.Entry, error) {
	rows, err := s.db.Query(
		`SELECT entry_id, role, content, is_voice, is_clipboard, is_advice_request, has_image, created_at
		 FROM entries
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entries for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	entries := make([]conversation.Entry, 0, 32)
	for rows.Next() {
		var e conversation.Entry
		var role, createdAt string
		var isVoice, isClipboard, isAdvice, hasImage int
		if err := rows.Scan(&e.ID, &role, &e.Content, &isVoice, &isClipboard, &isAdvice, &hasImage, &createdAt); err != nil {
			return nil, fmt.Errorf("scan entry for session %s: %w", sessionID, err)
		}

		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse entry timestamp for session %s: %w", sessionID, err)
		}

		e.Role = conversation.Role(role)
		e.CreatedAt = parsed
		e.IsVoice = isVoice != 0
		e.IsClipboard = isClipboard != 0
		e.IsAdviceRequest = isAdvice != 0
		e.HasImage = hasImage != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entry rows for session %s: %w", sessionID, err)
	}

	return entries, nil
}

func (s *SQLiteStore) GetCostRecords(sessionID string) ([]cost.Record, error) {
	rows, err := s.db.Query(
		`SELECT kind, model, tokens, total, created_at
		 FROM cost_records
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cost records for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]cost.Record, 0, 16)
	for rows.Next() {
		var r cost.Record
		var kind, tokens, createdAt string
		if err := rows.Scan(&kind, &r.Model, &tokens, &r.Total, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cost record for session %s: %w", sessionID, err)
		}

		if err := json.Unmarshal([]byte(tokens), &r.Tokens); err != nil {
			return nil, fmt.Errorf("decode token counts for session %s: %w", sessionID, err)
		}
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse cost record timestamp for session %s: %w", sessionID, err)
		}

		r.Kind = cost.Kind(kind)
		r.CreatedAt = parsed
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cost record rows for session %s: %w", sessionID, err)
	}

	return records, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
