// Package pgstorage implements storage.Store using GORM/PostgreSQL. Every
// write sends a NOTIFY on a channel; every process LISTENs on it and
// republishes, so hubs sharing one database see each other's writes.
package pgstorage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/database"
	gormstorage "github.com/c3i/globe/internal/storage/gorm"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultChannel = "globe_waypoints"
	maxBackoff     = 30 * time.Second
)

// Config holds configuration for the Postgres store.
type Config struct {
	database.PostgresConfig `mapstructure:",squash"`
	Channel                 string `json:"channel" mapstructure:"channel"`
}

func (c Config) channel() string {
	if c.Channel == "" {
		return defaultChannel
	}
	return c.Channel
}

// Store wraps the GORM store with cross-process change notification.
type Store struct {
	*gormstorage.Store
	db     *database.Manager
	cfg    Config
	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New connects, migrates the schema and prepares the store.
func New(cfg Config, logger *slog.Logger, dbLogger zerolog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := database.NewManager(dbLogger)
	if err := m.ConnectPostgres(cfg.PostgresConfig); err != nil {
		return nil, err
	}
	if err := m.Setup(); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to set up postgres schema: %w", err)
	}

	s := &Store{db: m, cfg: cfg, log: logger}
	s.Store = gormstorage.New(gormstorage.Dependencies{
		DB:         m.DB,
		Logger:     logger,
		AfterWrite: s.notifyChange,
	})
	return s, nil
}

// Init publishes the table and starts listening for remote changes.
func (s *Store) Init() error {
	if err := s.Store.Init(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.listenLoop(ctx)
	return nil
}

// Close stops the listener and closes the database.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	_ = s.Store.Close()
	return s.db.Close()
}

func (s *Store) notifyChange(ctx context.Context, id string) error {
	return s.db.DB.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", s.cfg.channel(), id).Error
}

// listenLoop holds a dedicated connection in LISTEN mode and reconnects
// with exponential backoff when it drops.
func (s *Store) listenLoop(ctx context.Context) {
	defer s.wg.Done()

	backoff := time.Second
	for {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		s.log.Warn("Postgres listener lost", "error", err, "backoff", backoff)
		s.ReportError(fmt.Errorf("change listener: %w", err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Store) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.cfg.DSN())
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	channel := pgx.Identifier{s.cfg.channel()}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return err
	}
	s.log.Info("Listening for waypoint changes", "channel", s.cfg.channel())

	// catch up on anything written while we were disconnected
	if err := s.Refresh(ctx); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.log.Debug("Waypoint change notification", "id", n.Payload, "pid", n.PID)
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}
}
