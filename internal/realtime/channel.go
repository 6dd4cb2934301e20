// Package realtime maintains the persistent bidirectional channel to the
// assistant service: one websocket connection with typed JSON envelopes,
// application-level heartbeat, and bounded exponential reconnection.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	ErrInvalidURL           = errors.New("invalid channel url")
	ErrInvalidJSON          = errors.New("invalid message json")
	ErrConnectionTimeout    = errors.New("connection timed out")
	ErrSendFailed           = errors.New("send failed")
	ErrNotConnected         = errors.New("channel not connected")
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StatusChange is emitted on every state transition. Err is set when the
// transition was caused by a failure, including the terminal
// ErrMaxReconnectAttempts.
type StatusChange struct {
	State State
	Err   error
}

const (
	connectTimeout       = 10 * time.Second
	writeWait            = 10 * time.Second
	heartbeatInterval    = 30 * time.Second
	maxReconnectAttempts = 5
	maxReconnectDelay    = 30 * time.Second
	messageBuffer        = 32
	statusBuffer         = 8
)

// ReconnectDelay returns the backoff before reconnect attempt n (1-based):
// min(2^n, 30) seconds, so 2, 4, 8, 16, 30.
func ReconnectDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxReconnectDelay {
		return maxReconnectDelay
	}
	return d
}

type Channel struct {
	url    string
	userID string
	logger *zap.Logger

	messages chan Inbound
	statuses chan StatusChange

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	attempts    int
	manualClose bool
	reconnect   *time.Timer
	connGen     int

	writeMu sync.Mutex

	now func() time.Time
}

func NewChannel(rawURL, userID string, logger *zap.Logger) (*Channel, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return &Channel{
		url:      rawURL,
		userID:   userID,
		logger:   logger,
		messages: make(chan Inbound, messageBuffer),
		statuses: make(chan StatusChange, statusBuffer),
		now:      time.Now,
	}, nil
}

// Messages streams decoded inbound messages. A slow consumer drops messages
// rather than stalling the read pump.
func (c *Channel) Messages() <-chan Inbound {
	return c.messages
}

// StatusChanges streams connection state transitions for the presentation
// layer.
func (c *Channel) StatusChanges() <-chan StatusChange {
	return c.statuses
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the current reconnect attempt counter.
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect starts a connection attempt. It is a no-op while already
// connecting or connected. A manual call resets the reconnect counter, so a
// channel that gave up after the attempt bound can be revived.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.stopReconnectLocked()
	c.attempts = 0
	c.manualClose = false
	c.state = StateConnecting
	c.mu.Unlock()

	c.emitStatus(StatusChange{State: StateConnecting})
	go c.dial(ctx)
}

// Disconnect closes the connection, cancels any scheduled reconnection, and
// resets the attempt counter.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.stopReconnectLocked()
	c.attempts = 0
	conn := c.conn
	c.conn = nil
	c.connGen++
	wasDisconnected := c.state == StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if !wasDisconnected {
		c.emitStatus(StatusChange{State: StateDisconnected})
	}
}

// Send encodes msg as a single JSON text frame. A failure is local to this
// send: it never changes connection state or triggers reconnection.
func (c *Channel) Send(msg Outbound) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	frame, err := c.encodeFrame(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(c.now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// encodeFrame flattens the payload and stamps the envelope fields.
func (c *Channel) encodeFrame(msg Outbound) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	envelope := map[string]any{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	envelope["type"] = msg.messageType()
	envelope["timestamp"] = float64(c.now().UnixNano()) / float64(time.Second)
	envelope["user_id"] = c.userID
	return json.Marshal(envelope)
}

func (c *Channel) dial(ctx context.Context) {
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.logger.Warn("channel connect failed", zap.Error(err))
		c.handleConnectFailure(ctx, fmt.Errorf("%w: %v", ErrConnectionTimeout, err))
		return
	}

	c.mu.Lock()
	if c.manualClose {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	c.logger.Info("channel connected", zap.String("url", c.url))
	c.emitStatus(StatusChange{State: StateConnected})

	go c.readPump(ctx, conn, gen)
	go c.heartbeat(ctx, gen)
}

// handleConnectFailure counts the failed attempt and either schedules the
// next one with exponential backoff or gives up at the bound.
func (c *Channel) handleConnectFailure(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.manualClose {
		c.state = StateDisconnected
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempts := c.attempts
	c.state = StateDisconnected
	c.mu.Unlock()

	if attempts > maxReconnectAttempts {
		c.logger.Error("channel giving up",
			zap.Int("attempts", attempts-1),
			zap.Error(ErrMaxReconnectAttempts))
		c.emitStatus(StatusChange{State: StateDisconnected, Err: ErrMaxReconnectAttempts})
		return
	}

	delay := ReconnectDelay(attempts)
	c.logger.Info("channel reconnect scheduled",
		zap.Int("attempt", attempts),
		zap.Duration("delay", delay))
	c.emitStatus(StatusChange{State: StateDisconnected, Err: cause})

	c.mu.Lock()
	c.stopReconnectLocked()
	c.reconnect = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.manualClose || c.state != StateDisconnected {
			c.mu.Unlock()
			return
		}
		c.state = StateConnecting
		c.mu.Unlock()
		c.emitStatus(StatusChange{State: StateConnecting})
		c.dial(ctx)
	})
	c.mu.Unlock()
}

func (c *Channel) readPump(ctx context.Context, conn *websocket.Conn, gen int) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.connGen
			manual := c.manualClose
			if !stale {
				c.conn = nil
				c.state = StateDisconnected
			}
			c.mu.Unlock()

			if stale || manual {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("channel read error", zap.Error(err))
			}
			c.emitStatus(StatusChange{State: StateDisconnected, Err: err})
			// Transport-level close drives automatic reconnection; the
			// counter was reset by the successful open.
			c.handleReconnectAfterDrop(ctx)
			return
		}
		c.dispatch(data)
	}
}

func (c *Channel) handleReconnectAfterDrop(ctx context.Context) {
	c.mu.Lock()
	if c.manualClose || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitStatus(StatusChange{State: StateConnecting})
	c.dial(ctx)
}

func (c *Channel) dispatch(data []byte) {
	msg, msgType, err := decodeInbound(data)
	if err != nil {
		c.logger.Warn("dropping malformed message", zap.Error(err))
		return
	}
	if msg == nil {
		c.logger.Warn("dropping message with unknown type", zap.String("type", msgType))
		return
	}

	select {
	case c.messages <- msg:
	default:
		c.logger.Warn("dropping inbound message, consumer is slow",
			zap.String("type", msgType))
	}
}

// heartbeat sends an application-level ping while this connection is live.
func (c *Channel) heartbeat(ctx context.Context, gen int) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			live := c.connGen == gen && c.state == StateConnected
			c.mu.Unlock()
			if !live {
				return
			}
			if err := c.Send(Ping{}); err != nil {
				c.logger.Warn("heartbeat send failed", zap.Error(err))
			}
		}
	}
}

func (c *Channel) emitStatus(status StatusChange) {
	select {
	case c.statuses <- status:
	default:
		c.logger.Warn("dropping status change, consumer is slow")
	}
}

func (c *Channel) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}
