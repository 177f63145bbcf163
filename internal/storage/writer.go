package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pissaypratheesh/realtime-console/internal/conversation"
)

// Writer appends finalized conversation entries to per-day markdown files.
// The sync uploader watches the file it reports via CurrentPath.
type Writer struct {
	dir string
	mu  sync.Mutex
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Append(e conversation.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", w.dir, err)
	}

	date := e.CreatedAt.Format("2006-01-02")
	path := filepath.Join(w.dir, date+".md")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintln(f, formatEntry(e)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

func (w *Writer) CurrentPath() string {
	date := time.Now().Format("2006-01-02")
	return filepath.Join(w.dir, date+".md")
}

func formatEntry(e conversation.Entry) string {
	var tags []string
	if e.IsVoice {
		tags = append(tags, "voice")
	}
	if e.IsClipboard {
		tags = append(tags, "clipboard")
	}
	if e.IsAdviceRequest {
		tags = append(tags, "advice")
	}
	if e.HasImage {
		tags = append(tags, "image")
	}

	label := string(e.Role)
	if len(tags) > 0 {
		label += " [" + strings.Join(tags, ",") + "]"
	}

	return fmt.Sprintf("- **%s** (%s): %s", label, e.CreatedAt.Format("15:04:05"), strings.TrimSpace(e.Content))
}
