package gormstorage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/c3i/globe/internal/database"
	"github.com/c3i/globe/internal/model"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/storagetest"
	"github.com/c3i/globe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.DatabaseModels...))
	return db
}

func newTestStore(t *testing.T, deps Dependencies) *Store {
	t.Helper()
	if deps.DB == nil {
		deps.DB = newTestDB(t)
	}
	s := New(deps)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return newTestStore(t, Dependencies{})
	})
}

func TestAdd_PersistsLocation(t *testing.T) {
	db := newTestDB(t)
	s := newTestStore(t, Dependencies{DB: db})

	wp := storagetest.Sample()
	wp.Coords = core.LatLon{Lat: 12.5, Lon: -45}
	id, err := s.Add(context.Background(), wp)
	require.NoError(t, err)

	var row model.Waypoint
	require.NoError(t, db.First(&row, "id = ?", id).Error)
	xy, ok := row.Location.XY()
	require.True(t, ok)
	assert.Equal(t, -45.0, xy.X)
	assert.Equal(t, 12.5, xy.Y)
	assert.Equal(t, 5.0, row.Position.Y)
}

func TestList_NewestFirst(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, Dependencies{Now: func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}})
	ctx := context.Background()

	first, err := s.Add(ctx, storagetest.Sample())
	require.NoError(t, err)
	second, err := s.Add(ctx, storagetest.Sample())
	require.NoError(t, err)

	wps, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, wps, 2)
	assert.Equal(t, second, wps[0].ID)
	assert.Equal(t, first, wps[1].ID)
	assert.Equal(t, time.UTC, wps[0].CreatedAt.Location())
}

func TestAfterWriteHook(t *testing.T) {
	var seen []string
	s := newTestStore(t, Dependencies{AfterWrite: func(_ context.Context, id string) error {
		seen = append(seen, id)
		return errors.New("ignored")
	}})
	ctx := context.Background()

	id, err := s.Add(ctx, storagetest.Sample())
	require.NoError(t, err, "hook failures do not fail the write")
	require.NoError(t, s.Update(ctx, id, core.LabelPatch("x")))
	require.NoError(t, s.Delete(ctx, id))

	assert.Equal(t, []string{id, id, id}, seen)
}

func TestRefresh_PicksUpExternalRows(t *testing.T) {
	db := newTestDB(t)
	s := newTestStore(t, Dependencies{DB: db})

	rec := storagetest.NewRecorder()
	unsub := s.Subscribe(rec.Listener())
	defer unsub()
	assert.Empty(t, rec.Next(t))

	// another process writes directly to the table
	require.NoError(t, db.Create(&model.Waypoint{ID: "external", Label: "Remote", CreatedAt: time.Now().UTC()}).Error)
	require.NoError(t, s.Refresh(context.Background()))

	wps := rec.Next(t)
	require.Len(t, wps, 1)
	assert.Equal(t, "external", wps[0].ID)
}

func TestReportError(t *testing.T) {
	s := newTestStore(t, Dependencies{})
	rec := storagetest.NewRecorder()
	unsub := s.Subscribe(rec.Listener(), storage.WithErrorListener(rec.ErrorListener()))
	defer unsub()

	boom := errors.New("listener lost")
	s.ReportError(boom)
	assert.ErrorIs(t, rec.NextError(t), boom)
}

func TestWritesAfterClose(t *testing.T) {
	s := New(Dependencies{DB: newTestDB(t)})
	require.NoError(t, s.Init())
	require.NoError(t, s.Close())

	_, err := s.Add(context.Background(), storagetest.Sample())
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, s.Refresh(context.Background()), storage.ErrClosed)
}
