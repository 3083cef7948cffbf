package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nestiq/chatsync/internal/bus"
	"github.com/nestiq/chatsync/internal/status"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when emitting on a channel without a live link.
var ErrNotConnected = errors.New("channel not connected")

const (
	initialRedialDelay = time.Second
	maxRedialDelay     = 30 * time.Second
)

// Channel maintains the websocket link to the push-event server. Inbound
// frames are handed to a registered handler in arrival order; a disconnect
// is treated as silence and the channel redials with backoff, invoking the
// rejoin hook once the link is back so the bridge can re-enter its room.
type Channel struct {
	url     string
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(Frame)
	rejoin  func()
	cancel  context.CancelFunc
}

// NewChannel creates a channel client for the given websocket URL.
func NewChannel(url string, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Channel {
	return &Channel{
		url:     url,
		machine: machine,
		bus:     b,
		logger:  logger,
	}
}

// RegisterFrameHandler sets the inbound frame handler. Must be called
// before Connect.
func (c *Channel) RegisterFrameHandler(fn func(Frame)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

// RegisterRejoinHook sets the callback invoked after every successful
// reconnect. Must be called before Connect.
func (c *Channel) RegisterRejoinHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejoin = fn
}

// Connect dials the push server and starts the read loop.
func (c *Channel) Connect(ctx context.Context) error {
	if err := c.machine.Transition(status.Connecting); err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		_ = c.machine.Transition(status.Reconnecting)
		_ = c.machine.Transition(status.Disconnected)
		return fmt.Errorf("dial channel: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	_ = c.machine.Transition(status.Connected)

	ctx, c.cancel = context.WithCancel(ctx)
	go c.readLoop(ctx)
	return nil
}

// Close tears down the link. Pending emits fail with ErrNotConnected.
func (c *Channel) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	// Walk the machine down to Disconnected from wherever it is.
	switch c.machine.Current() {
	case status.Joined, status.Connected, status.Reconnecting:
		_ = c.machine.Transition(status.Disconnected)
	case status.Connecting:
		_ = c.machine.Transition(status.Reconnecting)
		_ = c.machine.Transition(status.Disconnected)
	}
}

// Emit sends one frame. Returns ErrNotConnected while the link is down;
// callers treat that as silence, not failure.
func (c *Channel) Emit(event string, data any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	payload, err := marshalFrame(event, data)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// JoinRoom subscribes to a conversation room.
func (c *Channel) JoinRoom(conversationID string) error {
	return c.Emit(EventJoinConversation, RoomRef{ConversationID: conversationID})
}

// LeaveRoom unsubscribes from a conversation room. Leaving while the link
// is down is a no-op: the server drops room membership with the socket.
func (c *Channel) LeaveRoom(conversationID string) error {
	err := c.Emit(EventLeaveConversation, RoomRef{ConversationID: conversationID})
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

// AnnounceRead broadcasts this side's mark-read to the room.
func (c *Channel) AnnounceRead(a ReadAnnounce) error {
	return c.Emit(EventMessageRead, a)
}

func (c *Channel) readLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		conn := c.conn
		handler := c.handler
		c.mu.Unlock()
		if conn == nil {
			return
		}

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("channel read failed, redialing", zap.Error(err))
			_ = c.machine.Transition(status.Reconnecting)
			if c.bus != nil {
				c.bus.Publish(bus.Event{Kind: "channel.disconnected", Timestamp: time.Now()})
			}
			if !c.redial(ctx) {
				return
			}
			continue
		}

		if handler != nil {
			handler(frame)
		}
	}
}

// redial reconnects with exponential backoff. Returns false when ctx ends.
func (c *Channel) redial(ctx context.Context) bool {
	delay := initialRedialDelay
	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		_ = c.machine.Transition(status.Connecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			c.logger.Warn("channel redial failed", zap.Error(err), zap.Duration("next_try", delay))
			_ = c.machine.Transition(status.Reconnecting)
			delay = min(delay*2, maxRedialDelay)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		rejoin := c.rejoin
		c.mu.Unlock()
		_ = c.machine.Transition(status.Connected)
		c.logger.Info("channel reconnected")
		if c.bus != nil {
			c.bus.Publish(bus.Event{Kind: "channel.reconnected", Timestamp: time.Now()})
		}
		if rejoin != nil {
			rejoin()
		}
		return true
	}
}

func marshalFrame(event string, data any) ([]byte, error) {
	f := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{Event: event, Data: data}
	return json.Marshal(f)
}
