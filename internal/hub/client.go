package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/dispatcher"
	"github.com/c3i/globe/internal/logging"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/c3i/globe/pkg/streaming"
	ws "github.com/gorilla/websocket"
)

type clientKey struct{}

// client is one websocket connection. readPump owns inbound traffic and
// writePump is the only goroutine writing to conn.
type client struct {
	hub   *Hub
	id    string
	user  string
	conn  *ws.Conn
	store storage.Store

	send chan []byte
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	unsub storage.Unsubscribe

	closeOnce sync.Once
}

func newClient(h *Hub, id, user string, conn *ws.Conn) *client {
	ctx, cancel := context.WithCancel(h.ctx)
	c := &client{
		hub:    h,
		id:     id,
		user:   user,
		conn:   conn,
		store:  h.storeFor(user),
		send:   make(chan []byte, h.cfg.SendQueue),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	ctx = logging.WithAttrs(ctx, slog.String("client", id), slog.String("user", user))
	c.ctx = context.WithValue(ctx, clientKey{}, c)
	return c
}

func clientFrom(ctx context.Context) *client {
	c, _ := ctx.Value(clientKey{}).(*client)
	return c
}

// enqueue queues data for writePump. A full queue drops the client.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.hub.metrics.DroppedClients.Inc()
		c.hub.logger.WarnContext(c.ctx, "Client send queue full, dropping")
		go c.shutdown(ws.ClosePolicyViolation, "send queue full")
		return false
	}
}

func (c *client) enqueueJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.hub.logger.ErrorContext(c.ctx, "Failed to encode message", "error", err)
		return
	}
	c.enqueue(data)
}

// subscribe starts pushing snapshots. A second subscribe is a no-op.
func (c *client) subscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	c.unsub = c.hub.store.Subscribe(func(wps []core.Waypoint) {
		data, err := streaming.MarshalEnvelope(streaming.TypeSnapshot, streaming.SnapshotPayload{Waypoints: wps})
		if err != nil {
			c.hub.logger.ErrorContext(c.ctx, "Failed to encode snapshot", "error", err)
			return
		}
		if c.enqueue(data) {
			c.hub.metrics.SnapshotsSent.Inc()
		}
	}, storage.WithErrorListener(func(err error) {
		c.hub.logger.WarnContext(c.ctx, "Snapshot stream error", "error", err)
	}))
}

func (c *client) unsubscribe() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// shutdown tears the connection down once. In-flight store writes finish
// against a cancelled context.
func (c *client) shutdown(code int, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		c.unsubscribe()
		deadline := time.Now().Add(c.hub.cfg.WriteWait)
		_ = c.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
		c.hub.unregister(c)
	})
}

func (c *client) readPump() {
	defer c.shutdown(ws.CloseNormalClosure, "")

	pongWait := c.hub.cfg.PingInterval + c.hub.cfg.WriteWait
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.hub.logger.DebugContext(c.ctx, "Client read failed", "error", err)
			}
			return
		}
		// activity counts as liveness as well as pongs
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.hub.logger.WarnContext(c.ctx, "Undecodable client message", "error", err)
		return
	}
	if !c.hub.disp.HasHandler(env.Type) {
		c.hub.logger.WarnContext(c.ctx, "Unknown message type", "type", env.Type)
		return
	}

	result, _ := c.hub.disp.Dispatch(dispatcher.Event{
		Command: env.Type,
		Payload: env.Payload,
		Sender:  c.id,
		User:    c.user,
		Context: c.ctx,
	})
	if ack, ok := result.(streaming.AckMessage); ok {
		c.enqueueJSON(ack)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.hub.logger.DebugContext(c.ctx, "Client write failed", "error", err)
				go c.shutdown(ws.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(ws.PingMessage, nil); err != nil {
				go c.shutdown(ws.CloseAbnormalClosure, "")
				return
			}
		}
	}
}
