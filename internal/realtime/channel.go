package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ErrChannelClosed is returned by Send after the channel has closed.
var ErrChannelClosed = errors.New("realtime channel closed")

const defaultWSBase = "wss://api.openai.com/v1/realtime"

// Dialer negotiates realtime channels against the vendor websocket endpoint.
type Dialer struct {
	baseURL string
	dialer  *websocket.Dialer
}

func NewDialer() *Dialer {
	return &Dialer{baseURL: defaultWSBase, dialer: websocket.DefaultDialer}
}

// SetBaseURL overrides the websocket endpoint, used in tests.
func (d *Dialer) SetBaseURL(url string) {
	d.baseURL = url
}

// Dial opens the bidirectional event channel authenticated with an
// ephemeral credential.
func (d *Dialer) Dial(ctx context.Context, token, model string) (*Channel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := d.dialer.DialContext(ctx, d.baseURL+"?model="+model, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime dial status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime dial: %w", err)
	}

	ch := &Channel{
		conn:   conn,
		events: make(chan ServerEvent, 64),
		closed: make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

// Channel is the opaque bidirectional event sink over one websocket
// connection. Inbound events preserve arrival order on a single queue.
type Channel struct {
	conn   *websocket.Conn
	events chan ServerEvent

	sendMu    sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// Events yields inbound events in arrival order. The channel is closed when
// the connection ends.
func (c *Channel) Events() <-chan ServerEvent {
	return c.events
}

// Send writes one outbound event. It does not wait for any reply.
func (c *Channel) Send(evt ClientEvent) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.conn.WriteJSON(evt); err != nil {
		return fmt.Errorf("send %s: %w", evt.Type, err)
	}
	return nil
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readLoop() {
	defer close(c.events)
	for {
		var evt ServerEvent
		if err := c.conn.ReadJSON(&evt); err != nil {
			_ = c.Close()
			return
		}
		select {
		case c.events <- evt:
		case <-c.closed:
			return
		}
	}
}
