// Package sqlitestorage implements storage.Store using SQLite through the
// GORM store. The SQLite-specific concerns are opening the database (file
// or private in-memory) and the periodic VACUUM INTO dump of an in-memory
// database.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/database"
	gormstorage "github.com/c3i/globe/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Config holds configuration for the SQLite store.
type Config struct {
	Path         string        `json:"path" mapstructure:"path"` // empty for in-memory
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// Store wraps the GORM store for SQLite-specific behavior.
type Store struct {
	*gormstorage.Store
	db       *database.Manager
	cfg      Config
	log      *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New opens the database and migrates the schema.
func New(cfg Config, logger *slog.Logger, dbLogger zerolog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := database.NewManager(dbLogger)
	if err := m.ConnectSqlite(cfg.Path); err != nil {
		return nil, err
	}
	if err := m.Setup(); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to set up sqlite schema: %w", err)
	}

	return &Store{
		Store: gormstorage.New(gormstorage.Dependencies{
			DB:     m.DB,
			Logger: logger,
		}),
		db:       m,
		cfg:      cfg,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM store and starts the dump goroutine.
func (s *Store) Init() error {
	if err := s.Store.Init(); err != nil {
		return err
	}

	if s.cfg.DumpPath != "" && s.cfg.DumpInterval > 0 {
		s.wg.Add(1)
		go s.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the database.
func (s *Store) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()

		if s.cfg.DumpPath != "" {
			if dumpErr := database.DumpMemoryDBToDisk(s.db.DB, s.cfg.DumpPath); dumpErr != nil {
				s.log.Error("Final dump failed", "path", s.cfg.DumpPath, "error", dumpErr)
			}
		}

		_ = s.Store.Close()
		err = s.db.Close()
	})
	return err
}

// dumpLoop periodically dumps the database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (s *Store) dumpLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := database.DumpMemoryDBToDisk(s.db.DB, s.cfg.DumpPath); err != nil {
				s.log.Error("Error dumping to disk", "path", s.cfg.DumpPath, "error", err)
			} else {
				s.log.Debug("Dumped to disk", "path", s.cfg.DumpPath, "duration", time.Since(start))
			}
		}
	}
}
