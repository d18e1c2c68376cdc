package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/google/uuid"
)

// Config holds in-memory store settings
type Config struct {
	// SnapshotPath, when set, is loaded on Init and rewritten on Close.
	SnapshotPath string `json:"snapshotPath" mapstructure:"snapshotPath"`
	// Compress gzips the snapshot file.
	Compress bool `json:"compress" mapstructure:"compress"`
}

// Store keeps the authoritative waypoint collection in process memory.
type Store struct {
	cfg       Config
	waypoints map[string]core.Waypoint
	notify    *storage.Broadcaster
	closed    bool

	now    func() time.Time
	newID  func() string
	logger *slog.Logger

	mu sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates a new memory store
func New(cfg Config, opts ...Option) *Store {
	s := &Store{
		cfg:       cfg,
		waypoints: make(map[string]core.Waypoint),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.notify = storage.NewBroadcaster(s.logger)
	return s
}

// Init loads the snapshot file, if configured, and publishes the initial set.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.SnapshotPath != "" {
		wps, err := loadSnapshot(s.cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		for _, w := range wps {
			s.waypoints[w.ID] = w
		}
		if len(wps) > 0 {
			s.logger.Info("Loaded waypoint snapshot", "path", s.cfg.SnapshotPath, "count", len(wps))
		}
	}

	s.publishLocked()
	return nil
}

// Close writes the snapshot file, if configured, and stops all subscriptions.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wps := s.listLocked()
	s.mu.Unlock()

	s.notify.Close()

	if s.cfg.SnapshotPath == "" {
		return nil
	}
	if err := writeSnapshot(s.cfg.SnapshotPath, s.cfg.Compress, wps); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Subscribe registers a listener for the full collection.
func (s *Store) Subscribe(onChange storage.Listener, opts ...storage.SubscribeOption) storage.Unsubscribe {
	return s.notify.Subscribe(onChange, opts...)
}

// Add stores a new waypoint under a fresh id
func (s *Store) Add(ctx context.Context, wp core.Waypoint) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrClosed
	}

	wp.ID = s.newID()
	wp.CreatedAt = s.now()
	s.waypoints[wp.ID] = wp

	s.publishLocked()
	return wp.ID, nil
}

// Update merges label and color into an existing waypoint
func (s *Store) Update(ctx context.Context, id string, patch core.WaypointPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	wp, ok := s.waypoints[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, storage.ErrNotFound)
	}
	s.waypoints[id] = patch.Apply(wp)

	s.publishLocked()
	return nil
}

// Delete removes a waypoint
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	if _, ok := s.waypoints[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, storage.ErrNotFound)
	}
	delete(s.waypoints, id)

	s.publishLocked()
	return nil
}

// List returns the current collection, newest first.
func (s *Store) List() []core.Waypoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Store) listLocked() []core.Waypoint {
	wps := make([]core.Waypoint, 0, len(s.waypoints))
	for _, w := range s.waypoints {
		wps = append(wps, w)
	}
	core.SortWaypoints(wps)
	return wps
}

func (s *Store) publishLocked() {
	s.notify.Publish(s.listLocked())
}
