package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/llm"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/session"
	"github.com/pissaypratheesh/realtime-console/internal/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionStore is the read side of session persistence used by the history
// endpoints.
type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetEntries(sessionID string) ([]conversation.Entry, error)
	GetCostRecords(sessionID string) ([]cost.Record, error)
	GetDates() ([]string, error)
}

type messageRequest struct {
	Text      string `json:"text"`
	Clipboard bool   `json:"clipboard"`
}

type adviceRequest struct {
	Question string `json:"question"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type chatCompletionsRequest struct {
	Messages []llm.Message `json:"messages"`
}

type analyzeImageRequest struct {
	Text                string        `json:"text"`
	Image               string        `json:"image"`
	ConversationHistory []llm.Message `json:"conversationHistory"`
}

func registerAPIRoutes(mux *http.ServeMux, store SessionStore, llmClient llm.Client, controls ControlHooks, opts Options) {
	mux.HandleFunc("GET /token", func(w http.ResponseWriter, r *http.Request) {
		if controls.MintToken == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "token endpoint not configured")
			return
		}
		raw, err := controls.MintToken(r.Context())
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("mint token: %v", err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	})

	mux.HandleFunc("POST /api/session/start", func(w http.ResponseWriter, r *http.Request) {
		if controls.StartSession == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "sessions not configured")
			return
		}
		if err := controls.StartSession(r.Context()); err != nil {
			if errors.Is(err, session.ErrSessionActive) {
				writeJSONError(w, http.StatusConflict, "session already active")
				return
			}
			var startErr *session.StartError
			if errors.As(err, &startErr) {
				writeJSONError(w, http.StatusBadGateway, startErr.UserMessage())
				return
			}
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("start session: %v", err))
			return
		}

		sessionID := ""
		if controls.CurrentSessionID != nil {
			sessionID = controls.CurrentSessionID()
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "active", "session_id": sessionID})
	})

	mux.HandleFunc("POST /api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if controls.StopSession == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "sessions not configured")
			return
		}
		if err := controls.StopSession(); err != nil {
			if errors.Is(err, session.ErrNoActiveSession) {
				writeJSONError(w, http.StatusConflict, "no active session")
				return
			}
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stop session: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "idle"})
	})

	mux.HandleFunc("POST /api/pause", func(w http.ResponseWriter, r *http.Request) {
		if controls.Pause != nil {
			controls.Pause()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/resume", func(w http.ResponseWriter, r *http.Request) {
		if controls.Resume != nil {
			controls.Resume()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/mode", func(w http.ResponseWriter, r *http.Request) {
		var req modeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		target, err := mode.Parse(req.Mode)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		changed := false
		if controls.SetMode != nil {
			changed = controls.SetMode(target)
		}
		writeJSON(w, http.StatusOK, map[string]any{"mode": target, "changed": changed})
	})

	mux.HandleFunc("POST /api/unblock", func(w http.ResponseWriter, r *http.Request) {
		if controls.Unblock != nil {
			controls.Unblock()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/message", func(w http.ResponseWriter, r *http.Request) {
		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text := strings.TrimSpace(req.Text)
		if text == "" {
			writeJSONError(w, http.StatusBadRequest, "text is required")
			return
		}

		if controls.IsActive != nil && controls.IsActive() && controls.SendText != nil {
			if err := controls.SendText(text, req.Clipboard); err != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("send message: %v", err))
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"delivery": "realtime"})
			return
		}

		// No realtime session. Answer over the chat-completions API instead.
		if llmClient == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no active session and completions not configured")
			return
		}
		result, err := llmClient.Complete(r.Context(), []llm.Message{{Role: "user", Content: text}})
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("completion: %v", err))
			return
		}
		recordChatCost(controls, cost.KindChatCompletion, result)
		writeJSON(w, http.StatusOK, map[string]any{
			"delivery": "completion",
			"content":  result.Content,
		})
	})

	mux.HandleFunc("POST /api/advice", func(w http.ResponseWriter, r *http.Request) {
		var req adviceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		question := strings.TrimSpace(req.Question)
		if question == "" {
			writeJSONError(w, http.StatusBadRequest, "question is required")
			return
		}

		if controls.IsActive != nil && controls.IsActive() && controls.SendAdvice != nil {
			if err := controls.SendAdvice(question); err != nil {
				writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("request advice: %v", err))
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"delivery": "realtime"})
			return
		}

		if llmClient == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "no active session and completions not configured")
			return
		}
		result, err := llmClient.Complete(r.Context(), []llm.Message{
			{Role: "user", Content: mode.Instructions(mode.Advisor) + "\n\n" + question},
		})
		if err != nil {
			writeJSONError(w, http.StatusBadGateway, fmt.Sprintf("completion: %v", err))
			return
		}
		recordChatCost(controls, cost.KindChatCompletion, result)
		writeJSON(w, http.StatusOK, map[string]any{
			"delivery": "completion",
			"content":  result.Content,
		})
	})

	mux.HandleFunc("POST /api/chat-completions", func(w http.ResponseWriter, r *http.Request) {
		if llmClient == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "completions not configured")
			return
		}
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.Messages) == 0 {
			writeJSONError(w, http.StatusBadRequest, "messages are required")
			return
		}

		sse, ok := newSSEWriter(w)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		result, err := llmClient.Stream(r.Context(), req.Messages, func(delta string) {
			sse.send(map[string]any{"type": "chunk", "content": delta})
		})
		if err != nil {
			sse.send(map[string]any{"type": "error", "error": err.Error()})
			return
		}

		record := recordChatCost(controls, cost.KindChatCompletion, result)
		sse.send(map[string]any{
			"type":    "done",
			"content": result.Content,
			"usage":   result.Usage,
			"cost":    record.Total,
		})
	})

	mux.HandleFunc("POST /api/analyze-image", func(w http.ResponseWriter, r *http.Request) {
		if llmClient == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "image analysis not configured")
			return
		}
		var req analyzeImageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		text := strings.TrimSpace(req.Text)
		if text == "" || req.Image == "" {
			writeJSONError(w, http.StatusBadRequest, "text and image are required")
			return
		}

		if controls.AddEntry != nil {
			controls.AddEntry(conversation.Entry{
				Role:     conversation.RoleUser,
				Content:  text,
				HasImage: true,
			})
			controls.AddEntry(conversation.Entry{
				Role:    conversation.RoleSystem,
				Content: llm.ImageAnalysisSystemPrompt,
			})
		}

		sse, ok := newSSEWriter(w)
		if !ok {
			writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		result, err := llmClient.AnalyzeImage(r.Context(), llm.ImageRequest{
			Text:    text,
			Image:   req.Image,
			History: req.ConversationHistory,
		}, func(delta string) {
			sse.send(map[string]any{"type": "chunk", "content": delta})
		})
		if err != nil {
			sse.send(map[string]any{"type": "error", "error": err.Error()})
			return
		}

		record := recordChatCost(controls, cost.KindImageAnalysis, result)
		if controls.AddEntry != nil {
			controls.AddEntry(conversation.Entry{
				Role:    conversation.RoleAssistant,
				Content: result.Content,
			})
		}
		sse.send(map[string]any{
			"type":     "done",
			"analysis": result.Content,
			"usage":    result.Usage,
			"cost":     record.Total,
		})
	})

	mux.HandleFunc("GET /api/conversation", func(w http.ResponseWriter, r *http.Request) {
		entries := []conversation.Entry{}
		if controls.Entries != nil {
			entries = controls.Entries()
		}
		writeJSON(w, http.StatusOK, entries)
	})

	mux.HandleFunc("GET /api/costs", func(w http.ResponseWriter, r *http.Request) {
		var snapshot cost.Snapshot
		records := []cost.Record{}
		if controls.Costs != nil {
			snapshot, records = controls.Costs()
		}
		if records == nil {
			records = []cost.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"snapshot": snapshot,
			"records":  records,
			"summary":  cost.Aggregate(records),
		})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		paused := false
		if controls.IsPaused != nil {
			paused = controls.IsPaused()
		}
		active := false
		if controls.IsActive != nil {
			active = controls.IsActive()
		}
		sessionID := ""
		if controls.CurrentSessionID != nil {
			sessionID = controls.CurrentSessionID()
		}
		currentMode := mode.Normal
		if controls.CurrentMode != nil {
			currentMode = controls.CurrentMode()
		}
		var warnings []string
		if controls.Warnings != nil {
			warnings = controls.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"active":     active,
			"paused":     paused,
			"mode":       currentMode,
			"session_id": sessionID,
			"warnings":   warnings,
		})
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sessionData, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		entries, err := store.GetEntries(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session entries: %v", err))
			return
		}

		records, err := store.GetCostRecords(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session costs: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionData,
			"entries": entries,
			"costs":   records,
		})
	})

	mux.HandleFunc("GET /api/sessions/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}
		if opts.AudioDir == "" {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		audioPath := filepath.Join(opts.AudioDir, sessionID+".wav")
		f, err := os.Open(audioPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("Content-Type", "audio/wav")
		http.ServeContent(w, r, filepath.Base(audioPath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})
}

func recordChatCost(controls ControlHooks, kind cost.Kind, result llm.Result) cost.Record {
	record := cost.ChatRecord(kind, result.Model, cost.ChatUsage{
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		ReasoningTokens:  result.Usage.ReasoningTokens,
	}, time.Now().UTC())
	if controls.AddCost != nil {
		controls.AddCost(record)
	}
	return record
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
