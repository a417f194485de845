package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/carbonlab/mapviz/pkg/core"
	"github.com/carbonlab/mapviz/pkg/streaming"
)

const (
	sendChSize   = 1024
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// connection manages a WebSocket connection with a single write goroutine.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.Inbound
	done   chan struct{} // closed on shutdown
	closed bool
	// reconnecting is set while a reconnect runs; the read and write loops
	// both notice a broken connection and only one of them may redial.
	reconnecting bool

	wsURL  string
	secret string

	// onLoaded is called from the read loop for every scene_loaded message.
	onLoaded func(core.SceneID)
	// replay returns the messages that rebuild the renderer's state after a
	// reconnect.
	replay func() [][]byte

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:   make(chan []byte, sendChSize),
		ackCh:    make(chan streaming.Inbound, ackChSize),
		done:     make(chan struct{}),
		onLoaded: func(core.SceneID) {},
		replay:   func() [][]byte { return nil },
		logger:   logger,
	}
}

// dial connects to the renderer and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.writeLoop()
	go c.readLoop()

	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// writeLoop drains sendCh and writes messages to the WebSocket.
// Only one writeLoop runs at a time; it returns on error or shutdown.
func (c *connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.sendCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				go c.reconnect()
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				go c.reconnect()
				return
			}
		}
	}
}

// readLoop routes acks to ackCh and readiness to onLoaded.
func (c *connection) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect()
			return
		}

		var in streaming.Inbound
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger.Debug("Unparseable message received", "raw", string(message))
			continue
		}

		switch in.Type {
		case streaming.TypeAck:
			select {
			case c.ackCh <- in:
			default:
				c.logger.Debug("Ack channel full, dropping", "for", in.For)
			}
		case streaming.TypeSceneLoaded:
			c.onLoaded(in.SceneID)
		default:
			c.logger.Debug("Unknown message received", "type", in.Type)
		}
	}
}

// reconnect attempts to re-establish the WebSocket connection with
// exponential backoff. On success it replays the live scenes and restarts
// the read/write loops.
func (c *connection) reconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	backoff := time.Second
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to renderer", "attempt", attempt, "backoff", backoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		if err := c.writeReplay(conn); err != nil {
			c.logger.Warn("Failed to replay scenes after reconnect", "error", err)
			_ = conn.Close()
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		c.logger.Info("Renderer reconnected", "attempt", attempt)
		go c.writeLoop()
		go c.readLoop()
		return
	}

	c.logger.Error("Renderer reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

func (c *connection) writeReplay(conn *ws.Conn) error {
	for _, msg := range c.replay() {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := conn.WriteMessage(ws.TextMessage, msg); err != nil {
			return err
		}
	}
	return nil
}

// send pushes data to the write loop. Non-blocking; fails if the channel
// is full or the connection is closed.
func (c *connection) send(data []byte) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.sendCh <- data:
		return nil
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
		return fmt.Errorf("send channel full")
	}
}

// sendAndWait sends data and blocks until the renderer acknowledges the
// command for the scene or the timeout expires. A rejection carried in
// the ack is returned as an error.
func (c *connection) sendAndWait(data []byte, ackFor string, scene core.SceneID, timeout time.Duration) error {
	if err := c.send(data); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For != ackFor || ack.SceneID != scene {
				// Not our ack, keep waiting.
				continue
			}
			if ack.Error != "" {
				return fmt.Errorf("renderer rejected %s: %s", ackFor, ack.Error)
			}
			return nil
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a WebSocket close frame and shuts down all goroutines.
// WriteControl may run concurrently with the write loop; WriteMessage may not.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
