// Package gormstorage implements storage.Store on top of GORM. The sqlite
// and postgres packages wrap it with their driver-specific concerns.
package gormstorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/model"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM store.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger

	// AfterWrite runs after every successful write, inside the write lock.
	// Postgres uses it to notify other processes.
	AfterWrite func(ctx context.Context, id string) error

	Now   func() time.Time
	NewID func() string
}

// Store implements storage.Store with a single waypoints table.
type Store struct {
	deps   Dependencies
	notify *storage.Broadcaster
	closed bool

	// mu serialises writes with the snapshot that follows them.
	mu sync.Mutex
}

// New creates a new GORM store. The schema must already be migrated.
func New(deps Dependencies) *Store {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Store{
		deps:   deps,
		notify: storage.NewBroadcaster(deps.Logger),
	}
}

// Init publishes the current table contents.
func (s *Store) Init() error {
	return s.Refresh(context.Background())
}

// Close stops all subscriptions. The *gorm.DB is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify.Close()
	return nil
}

// Subscribe registers a listener for the full collection.
func (s *Store) Subscribe(onChange storage.Listener, opts ...storage.SubscribeOption) storage.Unsubscribe {
	return s.notify.Subscribe(onChange, opts...)
}

// Refresh reloads the table and publishes it. Wrappers call it when a
// change arrives from another process.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	return s.publishLocked(ctx)
}

// ReportError forwards a subscription failure to every subscriber.
func (s *Store) ReportError(err error) {
	s.notify.Fail(err)
}

// List returns the current collection, newest first.
func (s *Store) List(ctx context.Context) ([]core.Waypoint, error) {
	var rows []model.Waypoint
	err := s.deps.DB.WithContext(ctx).
		Order("created_at DESC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list waypoints: %w", err)
	}
	return model.WaypointsToCore(rows), nil
}

// Add inserts a new waypoint row
func (s *Store) Add(ctx context.Context, wp core.Waypoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrClosed
	}

	wp.ID = s.deps.NewID()
	wp.CreatedAt = s.deps.Now()
	row := model.WaypointFromCore(wp)
	if err := s.deps.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert waypoint: %w", err)
	}

	s.afterWriteLocked(ctx, wp.ID)
	return wp.ID, nil
}

// Update merges label and color into an existing row
func (s *Store) Update(ctx context.Context, id string, patch core.WaypointPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	fields := map[string]any{}
	if patch.Label != nil {
		fields["label"] = *patch.Label
	}
	if patch.Color != nil {
		fields["color"] = *patch.Color
	}

	res := s.deps.DB.WithContext(ctx).
		Model(&model.Waypoint{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update waypoint %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update %s: %w", id, storage.ErrNotFound)
	}

	s.afterWriteLocked(ctx, id)
	return nil
}

// Delete removes a row
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	res := s.deps.DB.WithContext(ctx).Delete(&model.Waypoint{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete waypoint %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete %s: %w", id, storage.ErrNotFound)
	}

	s.afterWriteLocked(ctx, id)
	return nil
}

// afterWriteLocked publishes the new state. The write itself has already
// succeeded, so failures here are reported to subscribers, not the writer.
func (s *Store) afterWriteLocked(ctx context.Context, id string) {
	if err := s.publishLocked(ctx); err != nil {
		s.deps.Logger.Error("Failed to publish waypoints after write", "id", id, "error", err)
		s.notify.Fail(err)
	}
	if s.deps.AfterWrite != nil {
		if err := s.deps.AfterWrite(ctx, id); err != nil {
			s.deps.Logger.Warn("After-write hook failed", "id", id, "error", err)
		}
	}
}

func (s *Store) publishLocked(ctx context.Context) error {
	wps, err := s.List(ctx)
	if err != nil {
		return err
	}
	s.notify.Publish(wps)
	return nil
}
