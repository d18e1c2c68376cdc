package pgstorage

import (
	"os"
	"testing"

	"github.com/c3i/globe/internal/database"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/storagetest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

func TestConfig_Channel(t *testing.T) {
	assert.Equal(t, "globe_waypoints", Config{}.channel())
	assert.Equal(t, "ops", Config{Channel: "ops"}.channel())
}

func TestNew_UnreachableServer(t *testing.T) {
	_, err := New(Config{PostgresConfig: database.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "nobody",
		Database: "none",
	}}, nil, zerolog.Nop())
	assert.Error(t, err)
}

// TestStoreContract runs against a real server when GLOBE_TEST_POSTGRES_HOST is set.
func TestStoreContract(t *testing.T) {
	host := os.Getenv("GLOBE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("GLOBE_TEST_POSTGRES_HOST not set")
	}
	cfg := Config{PostgresConfig: database.PostgresConfig{
		Host:     host,
		Port:     "5432",
		Username: "postgres",
		Password: os.Getenv("GLOBE_TEST_POSTGRES_PASSWORD"),
		Database: "globe_test",
	}}

	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := New(cfg, nil, zerolog.Nop())
		require.NoError(t, err)
		require.NoError(t, s.db.DB.Exec("DELETE FROM waypoints").Error)
		require.NoError(t, s.Init())
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
