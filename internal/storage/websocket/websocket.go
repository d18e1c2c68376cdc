// Package websocket implements storage.Store as a client of the globe hub.
// Writes are request/ack round trips correlated by request id; snapshots
// are pushed by the hub after subscribe and fanned out locally.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/c3i/globe/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

var (
	// ErrAckTimeout is returned when the hub does not answer a write in time.
	ErrAckTimeout = errors.New("timed out waiting for hub acknowledgement")
	// ErrDisconnected is returned for writes issued or pending while the
	// connection is down.
	ErrDisconnected = errors.New("disconnected from hub")
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL        string        `json:"url" mapstructure:"url"`
	Secret     string        `json:"secret" mapstructure:"secret"`
	User       string        `json:"user" mapstructure:"user"`
	AckTimeout time.Duration `json:"ackTimeout" mapstructure:"ackTimeout"`
}

// Store talks to a hub over WebSocket.
type Store struct {
	conn   *connection
	cfg    Config
	notify *storage.Broadcaster
	logger *slog.Logger

	nextReq atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan streaming.AckMessage
	closed  bool

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a new WebSocket store. Call Init to connect.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	s := &Store{
		cfg:     cfg,
		notify:  storage.NewBroadcaster(logger),
		logger:  logger,
		pending: make(map[string]chan streaming.AckMessage),
		ready:   make(chan struct{}),
	}
	s.conn = newConnection(logger, s.handleMessage, s.handleDisconnect)
	return s
}

// Init connects, subscribes and waits for the first snapshot.
func (s *Store) Init() error {
	if err := s.conn.dial(s.cfg.URL, s.cfg.Secret, s.cfg.User); err != nil {
		return err
	}

	data, err := streaming.MarshalEnvelope(streaming.TypeSubscribe, streaming.SubscribePayload{RequestID: s.newRequestID()})
	if err != nil {
		return err
	}
	s.conn.setReplay(data)
	s.conn.send(data)

	select {
	case <-s.ready:
		return nil
	case <-time.After(s.cfg.AckTimeout):
		_ = s.conn.close()
		return fmt.Errorf("waiting for first snapshot: %w", ErrAckTimeout)
	}
}

// Close unsubscribes and disconnects. Pending writes fail with storage.ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pending := s.pending
	s.pending = make(map[string]chan streaming.AckMessage)
	s.mu.Unlock()

	for id, ch := range pending {
		ch <- streaming.AckMessage{Type: streaming.TypeAck, RequestID: id, Code: streaming.CodeClosed, Error: storage.ErrClosed.Error()}
	}

	if data, err := streaming.MarshalEnvelope(streaming.TypeUnsubscribe, nil); err == nil {
		s.conn.send(data)
	}
	err := s.conn.close()
	s.notify.Close()
	return err
}

// Subscribe registers a listener for hub snapshots.
func (s *Store) Subscribe(onChange storage.Listener, opts ...storage.SubscribeOption) storage.Unsubscribe {
	return s.notify.Subscribe(onChange, opts...)
}

// Add sends add_waypoint and returns the id assigned by the hub.
func (s *Store) Add(ctx context.Context, wp core.Waypoint) (string, error) {
	reqID := s.newRequestID()
	wp.ID = ""
	ack, err := s.request(ctx, streaming.TypeAddWaypoint, reqID, streaming.AddWaypointPayload{RequestID: reqID, Waypoint: wp})
	if err != nil {
		return "", err
	}
	return ack.ID, nil
}

// Update sends update_waypoint.
func (s *Store) Update(ctx context.Context, id string, patch core.WaypointPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	reqID := s.newRequestID()
	_, err := s.request(ctx, streaming.TypeUpdateWaypoint, reqID, streaming.UpdateWaypointPayload{RequestID: reqID, ID: id, Patch: patch})
	return err
}

// Delete sends delete_waypoint.
func (s *Store) Delete(ctx context.Context, id string) error {
	reqID := s.newRequestID()
	_, err := s.request(ctx, streaming.TypeDeleteWaypoint, reqID, streaming.DeleteWaypointPayload{RequestID: reqID, ID: id})
	return err
}

func (s *Store) newRequestID() string {
	return strconv.FormatUint(s.nextReq.Add(1), 10)
}

// request sends one envelope and blocks until the matching ack, the
// context, the ack timeout or a disconnect.
func (s *Store) request(ctx context.Context, msgType, reqID string, payload any) (streaming.AckMessage, error) {
	if err := ctx.Err(); err != nil {
		return streaming.AckMessage{}, err
	}
	data, err := streaming.MarshalEnvelope(msgType, payload)
	if err != nil {
		return streaming.AckMessage{}, err
	}

	ch := make(chan streaming.AckMessage, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return streaming.AckMessage{}, storage.ErrClosed
	}
	s.pending[reqID] = ch
	s.mu.Unlock()
	defer s.forget(reqID)

	if !s.conn.connected() {
		return streaming.AckMessage{}, fmt.Errorf("%s: %w", msgType, ErrDisconnected)
	}
	if !s.conn.send(data) {
		return streaming.AckMessage{}, fmt.Errorf("%s: send queue full", msgType)
	}

	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case ack := <-ch:
		return ack, translateAckError(msgType, ack)
	case <-timer.C:
		return streaming.AckMessage{}, fmt.Errorf("%s: %w", msgType, ErrAckTimeout)
	case <-ctx.Done():
		return streaming.AckMessage{}, ctx.Err()
	}
}

func (s *Store) forget(reqID string) {
	s.mu.Lock()
	delete(s.pending, reqID)
	s.mu.Unlock()
}

// translateAckError maps hub error codes back onto the local sentinels so
// callers can use errors.Is regardless of backend.
func translateAckError(msgType string, ack streaming.AckMessage) error {
	err := ack.Err()
	if err == nil {
		return nil
	}
	switch ack.Code {
	case streaming.CodeNotFound:
		return fmt.Errorf("%s: %w (%v)", msgType, storage.ErrNotFound, err)
	case streaming.CodeEmptyPatch:
		return fmt.Errorf("%s: %w (%v)", msgType, core.ErrEmptyPatch, err)
	case streaming.CodeInvalid:
		return fmt.Errorf("%s: %w (%v)", msgType, geo.ErrInvalidCoordinates, err)
	case streaming.CodeClosed:
		return fmt.Errorf("%s: %w", msgType, storage.ErrClosed)
	case streaming.CodeDisconnected:
		return fmt.Errorf("%s: %w", msgType, ErrDisconnected)
	default:
		return fmt.Errorf("%s: %w", msgType, err)
	}
}

// handleMessage runs on the read loop.
func (s *Store) handleMessage(data []byte) {
	var env streaming.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("Undecodable message from hub", "error", err)
		s.notify.Fail(fmt.Errorf("decode hub message: %w", err))
		return
	}

	switch env.Type {
	case streaming.TypeSnapshot:
		var snap streaming.SnapshotPayload
		if err := json.Unmarshal(env.Payload, &snap); err != nil {
			s.logger.Warn("Undecodable snapshot", "error", err)
			s.notify.Fail(fmt.Errorf("decode snapshot: %w", err))
			return
		}
		if snap.Waypoints == nil {
			snap.Waypoints = []core.Waypoint{}
		}
		s.notify.Publish(snap.Waypoints)
		s.readyOnce.Do(func() { close(s.ready) })

	case streaming.TypeAck:
		var ack streaming.AckMessage
		if err := json.Unmarshal(data, &ack); err != nil {
			s.logger.Warn("Undecodable ack", "error", err)
			return
		}
		s.mu.Lock()
		ch, ok := s.pending[ack.RequestID]
		delete(s.pending, ack.RequestID)
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("Ack for unknown request", "for", ack.For, "requestId", ack.RequestID)
			return
		}
		ch <- ack

	default:
		s.logger.Debug("Unhandled message from hub", "type", env.Type)
	}
}

// handleDisconnect fails every write in flight and tells subscribers. The
// last snapshot stays with them; a fresh one follows the reconnect.
func (s *Store) handleDisconnect(cause error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]chan streaming.AckMessage)
	s.mu.Unlock()

	for id, ch := range pending {
		ch <- streaming.AckMessage{Type: streaming.TypeAck, RequestID: id, Code: streaming.CodeDisconnected, Error: cause.Error()}
	}
	s.notify.Fail(fmt.Errorf("%w: %v", ErrDisconnected, cause))
}
