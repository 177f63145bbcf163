package main

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"golang.design/x/hotkey"

	"github.com/pissaypratheesh/realtime-console/internal/audio"
	"github.com/pissaypratheesh/realtime-console/internal/config"
	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/gdrive"
	"github.com/pissaypratheesh/realtime-console/internal/interview"
	"github.com/pissaypratheesh/realtime-console/internal/llm"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
	"github.com/pissaypratheesh/realtime-console/internal/realtime"
	"github.com/pissaypratheesh/realtime-console/internal/server"
	"github.com/pissaypratheesh/realtime-console/internal/session"
	"github.com/pissaypratheesh/realtime-console/internal/storage"
)

//go:embed static/*
var staticFiles embed.FS

// persistence fans session writes out to SQLite and the daily markdown
// export. The export is best-effort; the database write is authoritative.
type persistence struct {
	db     *storage.SQLiteStore
	writer *storage.Writer
}

func (p *persistence) CreateSession(id string, startedAt time.Time, m mode.Mode) error {
	return p.db.CreateSession(id, startedAt, m)
}

func (p *persistence) EndSession(id string, endedAt time.Time) error {
	return p.db.EndSession(id, endedAt)
}

func (p *persistence) AppendEntry(sessionID string, e conversation.Entry) error {
	if err := p.writer.Append(e); err != nil {
		slog.Warn("transcript export failed", "error", err)
	}
	return p.db.AppendEntry(sessionID, e)
}

func (p *persistence) AppendCostRecord(sessionID string, r cost.Record) error {
	return p.db.AppendCostRecord(sessionID, r)
}

// negotiator adapts the websocket dialer to the session manager's
// channel-producing collaborator.
type negotiator struct {
	dialer *realtime.Dialer
}

func (n negotiator) Dial(ctx context.Context, token, model string) (session.Channel, error) {
	ch, err := n.dialer.Dial(ctx, token, model)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func main() {
	slog.Info("realtime-console starting")

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		slog.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	writer := storage.NewWriter(cfg.ExportDir)

	hub := server.NewHub()
	modes := mode.NewController()
	analyzer := interview.NewAnalyzer()
	ledger := cost.NewLedger(cfg.CostLimitUSD, cfg.MaxResponses)
	convLog := conversation.NewLog()

	tokens := realtime.NewTokenSource(cfg.OpenAIAPIKey, cfg.RealtimeModel)
	dialer := realtime.NewDialer()
	if cfg.APIBaseURL != "" {
		tokens.SetBaseURL(cfg.APIBaseURL)
	}

	archiver := audio.NewArchiver(cfg.AudioDir)

	// The capture sink forwards PCM to the realtime channel. Frames that
	// arrive before the channel is active are dropped, not fatal.
	var manager *session.Manager
	capture := audio.NewCapture(cfg.SampleRateCandidates(), 0, func(audioB64 string) error {
		if manager == nil {
			return nil
		}
		if err := manager.SendEvent(realtime.NewAudioAppend(audioB64)); err != nil {
			if errors.Is(err, session.ErrNoActiveSession) {
				return nil
			}
			return err
		}
		return nil
	}, archiver)

	manager = session.NewManager(cfg.SessionConfig(), tokens, negotiator{dialer: dialer}, capture, session.Deps{
		Modes:    modes,
		Analyzer: analyzer,
		Ledger:   ledger,
		Log:      convLog,
		Store:    &persistence{db: store, writer: writer},
		Hub:      hub,
	})
	dispatcher := manager.Dispatcher()

	var llmClient llm.Client
	if cfg.OpenAIAPIKey != "" {
		opts := []llm.Option{
			llm.WithChatModel(cfg.ChatModel),
			llm.WithVisionModel(cfg.VisionModel),
		}
		if cfg.APIBaseURL != "" {
			opts = append(opts, llm.WithBaseURL(cfg.APIBaseURL))
		}
		llmClient = llm.NewOpenAI(cfg.OpenAIAPIKey, opts...)
	}

	assets, err := fs.Sub(staticFiles, "static")
	if err != nil {
		slog.Error("static assets init failed", "error", err)
		os.Exit(1)
	}

	controls := server.ControlHooks{
		StartSession:     manager.Start,
		StopSession:      manager.Stop,
		Pause:            dispatcher.Pause,
		Resume:           dispatcher.Resume,
		IsPaused:         dispatcher.Paused,
		IsActive:         manager.Active,
		CurrentSessionID: manager.SessionID,
		SetMode:          modes.SetMode,
		CurrentMode:      modes.Current,
		Unblock: func() {
			ledger.Unblock()
			hub.BroadcastCost(ledger.Snapshot())
		},
		SendText:   dispatcher.SendUserText,
		SendAdvice: dispatcher.SendAdviceRequest,
		AddEntry: func(e conversation.Entry) {
			entry := convLog.Append(e)
			hub.BroadcastEntry(entry)
			if manager.Active() {
				if err := store.AppendEntry(manager.SessionID(), entry); err != nil {
					slog.Warn("persist entry failed", "error", err)
				}
			}
		},
		AddCost: func(r cost.Record) {
			ledger.Add(r)
			hub.BroadcastCost(ledger.Snapshot())
			if manager.Active() {
				if err := store.AppendCostRecord(manager.SessionID(), r); err != nil {
					slog.Warn("persist cost record failed", "error", err)
				}
			}
		},
		Entries: convLog.Entries,
		Costs: func() (cost.Snapshot, []cost.Record) {
			return ledger.Snapshot(), ledger.Records()
		},
		MintToken: func(ctx context.Context) ([]byte, error) {
			_, raw, err := tokens.Mint(ctx)
			return raw, err
		},
		Warnings: func() []string { return warnings },
	}

	handler, err := server.Handler(assets, hub, store, llmClient, controls, server.Options{AudioDir: cfg.AudioDir})
	if err != nil {
		slog.Error("build http handler failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			slog.Warn("gdrive sync disabled", "error", syncErr)
		} else {
			go runDriveSync(ctx, syncer, writer, cfg.AudioDir)
		}
	}

	registerHotkeys(manager, dispatcher, modes)

	slog.Info("console listening", "addr", cfg.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	slog.Info("realtime-console shutting down")
	cancel()

	if manager.Active() {
		if err := manager.Stop(); err != nil {
			slog.Warn("stop session on shutdown failed", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown failed", "error", err)
	}
}

func runDriveSync(ctx context.Context, syncer *gdrive.Syncer, writer *storage.Writer, audioDir string) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			date := time.Now().UTC().Format("2006-01-02")
			transcriptPath := writer.CurrentPath()
			if _, err := os.Stat(transcriptPath); err == nil {
				if err := syncer.SyncTranscript(transcriptPath, date); err != nil {
					slog.Warn("gdrive transcript sync failed", "error", err)
				}
			}

			archives, err := fs.Glob(os.DirFS(audioDir), "*.wav")
			if err != nil {
				continue
			}
			for _, name := range archives {
				sessionID := name[:len(name)-len(".wav")]
				if err := syncer.SyncAudio(audioDir+"/"+name, sessionID); err != nil {
					slog.Warn("gdrive audio sync failed", "session", sessionID, "error", err)
				}
			}
		}
	}
}

// registerHotkeys installs the global shortcuts: Ctrl+Shift+S toggles the
// session, Ctrl+Shift+P toggles pause, Ctrl+Shift+V sends the clipboard.
// Clipboard sends only fire in normal mode.
func registerHotkeys(manager *session.Manager, dispatcher *session.Dispatcher, modes *mode.Controller) {
	bind := func(key hotkey.Key, action func()) {
		hk := hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, key)
		if err := hk.Register(); err != nil {
			slog.Warn("hotkey unavailable", "error", err)
			return
		}
		go func() {
			for range hk.Keydown() {
				action()
			}
		}()
	}

	bind(hotkey.KeyS, func() {
		if manager.Active() {
			if err := manager.Stop(); err != nil {
				slog.Warn("hotkey stop failed", "error", err)
			}
			return
		}
		if err := manager.Start(context.Background()); err != nil {
			slog.Warn("hotkey start failed", "error", err)
		}
	})

	bind(hotkey.KeyP, func() {
		if manager.Active() {
			dispatcher.TogglePause()
		}
	})

	bind(hotkey.KeyV, func() {
		if !manager.Active() || modes.Current() != mode.Normal {
			return
		}
		text, err := clipboard.ReadAll()
		if err != nil || text == "" {
			return
		}
		if err := dispatcher.SendUserText(text, true); err != nil {
			slog.Warn("clipboard send failed", "error", err)
		}
	})
}
