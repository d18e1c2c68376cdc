package main

import (
	"fmt"
	"log/slog"

	"github.com/c3i/globe/internal/config"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/memory"
	pgstorage "github.com/c3i/globe/internal/storage/postgres"
	redisstorage "github.com/c3i/globe/internal/storage/redis"
	sqlitestorage "github.com/c3i/globe/internal/storage/sqlite"
	wsstorage "github.com/c3i/globe/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// Storage types accepted in storage.type.
const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StoragePostgres  = "postgres"
	StorageRedis     = "redis"
	StorageWebSocket = "websocket"
)

// createStore builds the configured backend. The caller calls Init.
func createStore(cfg config.StorageConfig, log *slog.Logger, dbLog zerolog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case StoragePostgres:
		s, err := pgstorage.New(cfg.Postgres, log, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		log.Info("Postgres storage backend initialized", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return s, nil

	case StorageSQLite:
		s, err := sqlitestorage.New(cfg.SQLite, log, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		log.Info("SQLite storage backend initialized", "path", cfg.SQLite.Path)
		return s, nil

	case StorageRedis:
		log.Info("Redis storage backend initialized", "addr", cfg.Redis.Addr)
		return redisstorage.New(cfg.Redis, log), nil

	case StorageWebSocket:
		log.Info("WebSocket storage backend initialized", "url", cfg.WebSocket.URL)
		return wsstorage.New(cfg.WebSocket, log), nil

	case StorageMemory, "":
		log.Info("Memory storage backend initialized")
		return memory.New(cfg.Memory, memory.WithLogger(log)), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// openStore creates and initialises the configured backend.
func openStore(cfg config.StorageConfig) (storage.Store, error) {
	s, err := createStore(cfg, logger, dbLogger)
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Type, err)
	}
	return s, nil
}

// clientStoreConfig is the websocket store every client command uses to
// reach the hub.
func clientStoreConfig() config.StorageConfig {
	cfg := config.GetStorageConfig()
	cfg.Type = StorageWebSocket
	if user != "" {
		cfg.WebSocket.User = user
	}
	return cfg
}
