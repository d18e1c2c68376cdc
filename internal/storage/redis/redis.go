// Package redisstorage implements storage.Store on a Redis hash, one field
// per waypoint holding its JSON document. Writes are announced on a pub/sub
// channel so every process sharing the hash republishes.
package redisstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// Config holds configuration for the Redis store.
type Config struct {
	Addr     string `json:"addr" mapstructure:"addr"`
	Password string `json:"password" mapstructure:"password"`
	DB       int    `json:"db" mapstructure:"db"`
	Key      string `json:"key" mapstructure:"key"`
	Channel  string `json:"channel" mapstructure:"channel"`
}

func (c Config) withDefaults() Config {
	if c.Key == "" {
		c.Key = "globe:waypoints"
	}
	if c.Channel == "" {
		c.Channel = c.Key + ":changed"
	}
	return c
}

// Store implements storage.Store with go-redis.
type Store struct {
	client   *redis.Client
	cfg      Config
	logger   *slog.Logger
	instance string
	now      func() time.Time

	notify *storage.Broadcaster
	pubsub *redis.PubSub
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a Redis store with its own client.
func New(cfg Config, logger *slog.Logger) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg, logger)
}

// NewWithClient creates a Redis store on an existing client. Close closes the client.
func NewWithClient(client *redis.Client, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client:   client,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		instance: uuid.NewString(),
		now:      func() time.Time { return time.Now().UTC() },
		notify:   storage.NewBroadcaster(logger),
	}
}

// Init checks the connection, joins the change channel and publishes the
// current hash.
func (s *Store) Init() error {
	ctx := context.Background()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	s.pubsub = s.client.Subscribe(ctx, s.cfg.Channel)
	// Wait for confirmation that subscription is created before publishing anything.
	if _, err := s.pubsub.Receive(ctx); err != nil {
		_ = s.pubsub.Close()
		return fmt.Errorf("redis subscribe %s: %w", s.cfg.Channel, err)
	}

	s.wg.Add(1)
	go s.changeLoop(s.pubsub.Channel())

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(ctx)
}

// Close leaves the channel, stops subscriptions and closes the client.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	s.wg.Wait()
	s.notify.Close()
	return s.client.Close()
}

// Subscribe registers a listener for the full collection.
func (s *Store) Subscribe(onChange storage.Listener, opts ...storage.SubscribeOption) storage.Unsubscribe {
	return s.notify.Subscribe(onChange, opts...)
}

// List reads the whole hash, newest first.
func (s *Store) List(ctx context.Context) ([]core.Waypoint, error) {
	fields, err := s.client.HGetAll(ctx, s.cfg.Key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.cfg.Key, err)
	}
	wps := make([]core.Waypoint, 0, len(fields))
	for id, raw := range fields {
		var wp core.Waypoint
		if err := json.Unmarshal([]byte(raw), &wp); err != nil {
			s.logger.Warn("Skipping undecodable waypoint", "id", id, "error", err)
			continue
		}
		wp.ID = id
		wps = append(wps, wp)
	}
	core.SortWaypoints(wps)
	return wps, nil
}

// Add stores a new document under a fresh id.
func (s *Store) Add(ctx context.Context, wp core.Waypoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", storage.ErrClosed
	}

	wp.ID = uuid.NewString()
	wp.CreatedAt = s.now()
	data, err := json.Marshal(wp)
	if err != nil {
		return "", fmt.Errorf("encode waypoint: %w", err)
	}
	if err := s.client.HSet(ctx, s.cfg.Key, wp.ID, data).Err(); err != nil {
		return "", fmt.Errorf("hset %s: %w", wp.ID, err)
	}

	s.afterWriteLocked(ctx, wp.ID)
	return wp.ID, nil
}

// Update merges the patch inside a WATCH transaction so a concurrent
// delete is not resurrected.
func (s *Store) Update(ctx context.Context, id string, patch core.WaypointPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, s.cfg.Key, id).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("update %s: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return err
		}

		var wp core.Waypoint
		if err := json.Unmarshal([]byte(raw), &wp); err != nil {
			return fmt.Errorf("decode %s: %w", id, err)
		}
		data, err := json.Marshal(patch.Apply(wp))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.cfg.Key, id, data)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = s.client.Watch(ctx, txf, s.cfg.Key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return err
	}

	s.afterWriteLocked(ctx, id)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}

	n, err := s.client.HDel(ctx, s.cfg.Key, id).Result()
	if err != nil {
		return fmt.Errorf("hdel %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, storage.ErrNotFound)
	}

	s.afterWriteLocked(ctx, id)
	return nil
}

func (s *Store) afterWriteLocked(ctx context.Context, id string) {
	if err := s.publishLocked(ctx); err != nil {
		s.logger.Error("Failed to publish waypoints after write", "id", id, "error", err)
		s.notify.Fail(err)
	}
	if err := s.client.Publish(ctx, s.cfg.Channel, s.instance+":"+id).Err(); err != nil {
		s.logger.Warn("Failed to announce change", "id", id, "error", err)
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

// changeLoop republishes on every change announced by another process.
// Our own announcements are skipped; the writer already published.
func (s *Store) changeLoop(ch <-chan *redis.Message) {
	defer s.wg.Done()

	for msg := range ch {
		origin, id, _ := strings.Cut(msg.Payload, ":")
		if origin == s.instance {
			continue
		}
		s.logger.Debug("Remote waypoint change", "id", id, "origin", origin)

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if err := s.publishLocked(context.Background()); err != nil {
			s.logger.Error("Failed to refresh after remote change", "error", err)
			s.notify.Fail(err)
		}
		s.mu.Unlock()
	}
}
