package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// The realtime channel expects 24 kHz PCM16 mono.
	defaultSampleRate = 24000

	defaultFramesPerBuffer = 1024
)

// DefaultSampleRateTiers is the capture fallback order: the channel's native
// rate first, then progressively less demanding device configurations.
var DefaultSampleRateTiers = []int{24000, 16000, 8000}

var (
	ErrNoInputDevice      = errors.New("no audio input device available")
	ErrCaptureUnavailable = errors.New("audio capture unavailable")
)

// Sink receives base64-encoded PCM16 chunks for the realtime channel.
type Sink func(audioB64 string) error

// Capture owns the microphone for the lifetime of a session. Captured audio
// goes to the sink and, when an archiver is attached, to the local archive.
// Muting drops frames without releasing the device, so resuming is instant.
type Capture struct {
	tiers           []int
	framesPerBuffer int
	sink            Sink
	archiver        *Archiver

	mu         sync.Mutex
	mic        *Mic
	sampleRate int
	enabled    bool
	closed     chan struct{}
	wg         sync.WaitGroup
}

func NewCapture(tiers []int, framesPerBuffer int, sink Sink, archiver *Archiver) *Capture {
	if len(tiers) == 0 {
		tiers = DefaultSampleRateTiers
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = defaultFramesPerBuffer
	}
	return &Capture{
		tiers:           tiers,
		framesPerBuffer: framesPerBuffer,
		sink:            sink,
		archiver:        archiver,
	}
}

// Acquire opens the default input device, walking the sample-rate tiers
// until one succeeds.
func (c *Capture) Acquire(sessionID string) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptureUnavailable, err)
	}

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}

	var lastErr error
	for _, rate := range c.tiers {
		mic, err := NewMic(rate, c.framesPerBuffer)
		if err != nil {
			lastErr = err
			continue
		}
		if err := mic.Start(); err != nil {
			_ = mic.Close()
			lastErr = err
			continue
		}

		if c.archiver != nil {
			c.archiver.SetSampleRate(rate)
			if err := c.archiver.StartSession(sessionID); err != nil {
				slog.Warn("audio archive unavailable", "error", err)
			}
		}

		c.mu.Lock()
		c.mic = mic
		c.sampleRate = rate
		c.enabled = true
		c.closed = make(chan struct{})
		c.mu.Unlock()

		c.wg.Add(1)
		go c.pump(mic)

		slog.Info("microphone acquired", "sample_rate", rate)
		return nil
	}

	_ = portaudio.Terminate()
	return fmt.Errorf("%w: %v", ErrCaptureUnavailable, lastErr)
}

// SetInputEnabled mutes or unmutes the capture without touching the device.
func (c *Capture) SetInputEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
}

// SampleRate returns the negotiated capture rate, 0 when not acquired.
func (c *Capture) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sampleRate
}

// Stop releases the device and finalizes the archive.
func (c *Capture) Stop() {
	c.mu.Lock()
	mic := c.mic
	closed := c.closed
	c.mic = nil
	c.sampleRate = 0
	c.mu.Unlock()

	if mic == nil {
		return
	}

	close(closed)
	_ = mic.Stop()
	c.wg.Wait()
	_ = mic.Close()
	_ = portaudio.Terminate()

	if c.archiver != nil {
		path, err := c.archiver.EndSession()
		if err != nil {
			slog.Warn("finalize audio archive", "error", err)
		} else if path != "" {
			slog.Info("audio archived", "path", path)
		}
	}
}

func (c *Capture) pump(mic *Mic) {
	defer c.wg.Done()

	err := mic.Stream(&captureWriter{c: c})
	if err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("microphone stream ended", "error", err)
	}
}

// captureWriter fans captured PCM out to the sink and the archive. Returning
// io.EOF stops the mic stream loop.
type captureWriter struct {
	c *Capture
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	enabled := w.c.enabled
	closed := w.c.closed
	w.c.mu.Unlock()

	select {
	case <-closed:
		return 0, io.EOF
	default:
	}

	if !enabled {
		return len(p), nil
	}

	if w.c.archiver != nil {
		if err := w.c.archiver.WritePCM(p); err != nil {
			slog.Warn("archive capture chunk", "error", err)
		}
	}

	if w.c.sink != nil {
		if err := w.c.sink(base64.StdEncoding.EncodeToString(p)); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}
