package server

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
	"github.com/pissaypratheesh/realtime-console/internal/cost"
	"github.com/pissaypratheesh/realtime-console/internal/llm"
	"github.com/pissaypratheesh/realtime-console/internal/mode"
)

// ControlHooks wires the HTTP surface to the session runtime. Every hook is
// optional; a nil hook degrades to a safe default.
type ControlHooks struct {
	StartSession     func(ctx context.Context) error
	StopSession      func() error
	Pause            func()
	Resume           func()
	IsPaused         func() bool
	IsActive         func() bool
	CurrentSessionID func() string
	SetMode          func(m mode.Mode) bool
	CurrentMode      func() mode.Mode
	Unblock          func()
	SendText         func(text string, clipboard bool) error
	SendAdvice       func(question string) error
	AddEntry         func(e conversation.Entry)
	AddCost          func(r cost.Record)
	Entries          func() []conversation.Entry
	Costs            func() (cost.Snapshot, []cost.Record)
	MintToken        func(ctx context.Context) ([]byte, error)
	Warnings         func() []string
}

// Options carries server-side file locations.
type Options struct {
	AudioDir string
}

func Handler(staticFS fs.FS, hub *Hub, store SessionStore, llmClient llm.Client, controls ControlHooks, opts Options) (http.Handler, error) {
	mux := http.NewServeMux()

	registerWSRoute(mux, hub)
	registerAPIRoutes(mux, store, llmClient, controls, opts)

	fileServer := http.FileServer(http.FS(staticFS))
	mux.HandleFunc("/", serveSPA(fileServer))

	return mux, nil
}

func Serve(addr string, staticFS fs.FS, hub *Hub, store SessionStore, llmClient llm.Client, controls ControlHooks, opts Options) error {
	h, err := Handler(staticFS, hub, store, llmClient, controls, opts)
	if err != nil {
		return err
	}

	slog.Info("console ready", "addr", addr)
	return http.ListenAndServe(addr, h)
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" || r.URL.Path == "/token" {
			http.NotFound(w, r)
			return
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/index.html"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
