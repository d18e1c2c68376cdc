package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/c3i/globe/internal/storage"
	ws "github.com/gorilla/websocket"
)

const (
	sendChSize   = 1024
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
)

// session is one physical WebSocket. Whichever loop fails first drops it
// and starts the reconnect; the other loop just exits.
type session struct {
	conn *ws.Conn
	lost chan struct{}
	once sync.Once
}

func newSession(conn *ws.Conn) *session {
	return &session{conn: conn, lost: make(chan struct{})}
}

func (s *session) drop() bool {
	dropped := false
	s.once.Do(func() {
		close(s.lost)
		dropped = true
	})
	return dropped
}

// connection is the client's link to the hub. It survives socket loss by
// redialing; writeLoop is the only writer on the current session.
type connection struct {
	mu     sync.Mutex
	sess   *session
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL  string
	secret string
	user   string

	// Cached subscribe message for reconnect replay.
	replay []byte

	onMessage    func([]byte)
	onDisconnect func(error)

	backoff time.Duration
	logger  *slog.Logger
}

func newConnection(logger *slog.Logger, onMessage func([]byte), onDisconnect func(error)) *connection {
	return &connection{
		sendCh:       make(chan []byte, sendChSize),
		done:         make(chan struct{}),
		onMessage:    onMessage,
		onDisconnect: onDisconnect,
		backoff:      time.Second,
		logger:       logger,
	}
}

// dial connects to the hub and starts the read/write loops.
func (c *connection) dial(rawURL, secret, user string) error {
	c.wsURL = rawURL
	c.secret = secret
	c.user = user

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

// dialOnce opens one socket, passing secret and user as query parameters.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("hub url %q: %w", c.wsURL, err)
	}
	q := u.Query()
	if c.secret != "" {
		q.Set("secret", c.secret)
	}
	if c.user != "" {
		q.Set("user", c.user)
	}
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return conn, nil
}

func (c *connection) start(conn *ws.Conn) {
	s := newSession(conn)
	c.mu.Lock()
	c.sess = s
	c.mu.Unlock()

	go c.writeLoop(s)
	go c.readLoop(s)
}

func (c *connection) connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && !c.closed
}

// writeLoop owns writes on s until the session drops or the connection closes.
func (c *connection) writeLoop(s *session) {
	for {
		select {
		case <-c.done:
			return
		case <-s.lost:
			return
		case data := <-c.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.lose(s, fmt.Errorf("set write deadline: %w", err))
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.lose(s, fmt.Errorf("write: %w", err))
				return
			}
		}
	}
}

// readLoop hands every inbound frame to onMessage.
func (c *connection) readLoop(s *session) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.lose(s, fmt.Errorf("read: %w", err))
			return
		}
		c.onMessage(message)
	}
}

func (c *connection) lose(s *session, err error) {
	if !s.drop() {
		return
	}
	c.logger.Warn("WebSocket connection lost", "error", err)

	c.mu.Lock()
	if c.sess == s {
		c.sess = nil
	}
	closed := c.closed
	c.mu.Unlock()
	_ = s.conn.Close()

	if closed {
		return
	}
	c.onDisconnect(err)
	go c.reconnect()
}

// reconnect redials the hub, doubling the wait after each failure. The
// subscribe message is replayed on the new socket before any queued write,
// so the hub resumes the snapshot stream first.
func (c *connection) reconnect() {
	wait := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to hub", "attempt", attempt, "wait", wait)
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Hub redial failed", "attempt", attempt, "error", err)
			continue
		}
		if err := c.replayOn(conn); err != nil {
			_ = conn.Close()
			if errors.Is(err, storage.ErrClosed) {
				return
			}
			c.logger.Warn("Subscribe replay failed", "attempt", attempt, "error", err)
			continue
		}

		c.logger.Info("Reconnected to hub", "attempt", attempt)
		c.start(conn)
		return
	}
	c.logger.Error("Giving up on hub", "attempts", maxReconnect)
}

// replayOn writes the cached subscribe message, if any, to a fresh socket.
func (c *connection) replayOn(conn *ws.Conn) error {
	c.mu.Lock()
	data, closed := c.replay, c.closed
	c.mu.Unlock()
	if closed {
		return storage.ErrClosed
	}
	if data == nil {
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

func (c *connection) setReplay(data []byte) {
	c.mu.Lock()
	c.replay = data
	c.mu.Unlock()
}

// send queues data for the write loop without blocking. A full queue
// rejects the message and the caller fails the request.
func (c *connection) send(data []byte) bool {
	select {
	case c.sendCh <- data:
		return true
	default:
		c.logger.Warn("Hub send queue full", "queued", len(c.sendCh))
		return false
	}
}

// close says goodbye to the hub and stops both loops. It is idempotent.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s != nil {
		s.drop()
		_ = s.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return s.conn.Close()
	}
	return nil
}
