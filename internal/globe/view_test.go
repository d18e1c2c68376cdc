package globe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/internal/interaction"
	"github.com/c3i/globe/internal/scene"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/memory"
	"github.com/c3i/globe/internal/storage/storagetest"
	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var plotTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(1234 * time.Millisecond)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New(memory.Config{})
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newView(t *testing.T, store storage.Store) *View {
	t.Helper()
	v := New(store, Config{User: "user-1", Clock: func() time.Time { return plotTime }})
	t.Cleanup(func() {
		v.Close()
		v.Wait()
	})
	return v
}

func waitMarkers(t *testing.T, v *View, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return v.Markers().Len() == n }, time.Second, 5*time.Millisecond)
}

func TestOpen_RendersSnapshots(t *testing.T) {
	store := newStore(t)
	_, err := store.Add(context.Background(), storagetest.Sample())
	require.NoError(t, err)

	v := newView(t, store)
	v.Open()
	v.Open()
	waitMarkers(t, v, 1)
	assert.Equal(t, 1, v.Cache().Len())

	_, err = store.Add(context.Background(), storagetest.Sample())
	require.NoError(t, err)
	waitMarkers(t, v, 2)
}

func TestPlotAtSurface(t *testing.T) {
	store := newStore(t)
	v := newView(t, store)
	v.Open()

	hit := mgl64.Vec3{0, 4, 3}
	v.PlotAtSurface(hit)
	v.Wait()
	waitMarkers(t, v, 1)

	wp := store.List()[0]
	assert.Equal(t, core.FromVec(hit), wp.Position)
	assert.Equal(t, geo.PointToLatLon(hit, DefaultRadius), wp.Coords)
	assert.Equal(t, "WP-1234", wp.Label)
	assert.Equal(t, core.DefaultColor, wp.Color)
	assert.Equal(t, "user-1", wp.CreatedBy)
	assert.Contains(t, v.Status().Current(), "Plotted WP-1234")
}

func TestPlotAtSurface_AntimeridianIsPositive(t *testing.T) {
	store := newStore(t)
	v := newView(t, store)

	v.PlotAtSurface(mgl64.Vec3{5, 0, 0})
	v.Wait()

	wps := store.List()
	require.Len(t, wps, 1)
	assert.InDelta(t, 0, wps[0].Coords.Lat, 1e-9)
	assert.InDelta(t, 180, wps[0].Coords.Lon, 1e-9)
	assert.Equal(t, core.Vec3{X: 5}, wps[0].Position, "position is kept exactly")
}

func TestPlotThenDelete_MarkersFollowStore(t *testing.T) {
	store := newStore(t)

	var mu sync.Mutex
	var renders []int
	v := New(store, Config{OnRender: func(wps []core.Waypoint) {
		mu.Lock()
		renders = append(renders, len(wps))
		mu.Unlock()
	}})
	t.Cleanup(func() {
		v.Close()
		v.Wait()
	})
	v.Open()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(renders) > 0
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, renders[0], "an empty store renders an empty snapshot first")
	mu.Unlock()
	assert.Zero(t, v.Markers().Len())

	id, err := store.Add(context.Background(), core.Waypoint{
		Label:    "Summit",
		Position: core.Vec3{Y: DefaultRadius},
		Coords:   core.LatLon{Lat: 90},
	})
	require.NoError(t, err)
	waitMarkers(t, v, 1)

	m, ok := v.Markers().Get(id)
	require.True(t, ok, "marker is tagged with the id the store returned")
	assert.Equal(t, mgl64.Vec3{0, DefaultRadius, 0}, m.Position)
	assert.Equal(t, "Summit", m.Label)

	require.NoError(t, store.Delete(context.Background(), id))
	waitMarkers(t, v, 0)
	_, ok = v.Markers().Get(id)
	assert.False(t, ok)
}

func TestPlotAtCoords(t *testing.T) {
	store := newStore(t)
	v := newView(t, store)

	require.NoError(t, v.PlotAtCoords(0, -180))
	v.Wait()
	wp := store.List()[0]
	assert.Equal(t, core.LatLon{Lat: 0, Lon: 180}, wp.Coords)
	assert.InDelta(t, DefaultRadius, wp.Position.Vec().Len(), 1e-9)
}

func TestPlotAtCoords_Invalid(t *testing.T) {
	store := newStore(t)
	v := newView(t, store)

	assert.ErrorIs(t, v.PlotAtCoords(91, 0), geo.ErrInvalidCoordinates)
	assert.ErrorIs(t, v.PlotAtCoords(0, 181), geo.ErrInvalidCoordinates)
	v.Wait()
	assert.Empty(t, store.List())
}

type brokenStore struct {
	storage.Store
	notify *storage.Broadcaster
}

func (s *brokenStore) Subscribe(fn storage.Listener, opts ...storage.SubscribeOption) storage.Unsubscribe {
	return s.notify.Subscribe(fn, opts...)
}

func (s *brokenStore) Add(context.Context, core.Waypoint) (string, error) {
	return "", errors.New("offline")
}

func TestSubscriptionErrorKeepsLastSnapshot(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()
	store := &brokenStore{notify: b}
	v := newView(t, store)
	v.Open()

	wp := storagetest.Sample()
	wp.ID = "abc"
	b.Publish([]core.Waypoint{wp})
	waitMarkers(t, v, 1)

	b.Fail(errors.New("permission denied"))
	require.Eventually(t, func() bool {
		return v.Status().Current() != ""
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, v.Status().Current(), "permission denied")
	assert.Equal(t, 1, v.Markers().Len())
	assert.Equal(t, 1, v.Cache().Len())
}

func TestFailedPlotIsReported(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()
	v := newView(t, &brokenStore{notify: b})

	v.PlotAtSurface(mgl64.Vec3{0, 5, 0})
	v.Wait()
	assert.Contains(t, v.Status().Current(), "offline")
}

func TestClose_StopsRenderingAndReleases(t *testing.T) {
	store := newStore(t)
	_, err := store.Add(context.Background(), storagetest.Sample())
	require.NoError(t, err)

	v := newView(t, store)
	v.Open()
	waitMarkers(t, v, 1)

	v.Close()
	assert.Zero(t, v.Markers().Len())

	_, err = store.Add(context.Background(), storagetest.Sample())
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, v.Markers().Len())
	assert.Equal(t, 1, v.Cache().Len(), "cache keeps the last applied snapshot")

	v.Open()
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, v.Markers().Len(), "a closed view does not reopen")
}

func TestRouter_SelectAndCreate(t *testing.T) {
	store := newStore(t)
	wp := storagetest.Sample()
	wp.Position = core.Vec3{X: 0, Y: 0, Z: 5}
	id, err := store.Add(context.Background(), wp)
	require.NoError(t, err)

	v := newView(t, store)
	v.Open()
	waitMarkers(t, v, 1)

	r := v.NewRouter(scene.DefaultCamera(800, 600))
	click := func(b interaction.Button) {
		r.PointerDown(interaction.PointerEvent{X: 400, Y: 300, Button: b})
		r.PointerUp(interaction.PointerEvent{X: 400, Y: 300, Button: b})
	}

	click(interaction.ButtonPrimary)
	assert.Equal(t, id, v.Editor().Panel().ID)

	click(interaction.ButtonSecondary)
	v.Wait()
	waitMarkers(t, v, 2)
	added := store.List()
	require.Len(t, added, 2)
	var plotted core.Waypoint
	for _, w := range added {
		if w.ID != id {
			plotted = w
		}
	}
	assert.InDelta(t, 5.0, plotted.Position.Z, 1e-6)
	assert.InDelta(t, 0.0, plotted.Position.X, 1e-6)
}

func TestEditorFollowsSnapshots(t *testing.T) {
	store := newStore(t)
	id, err := store.Add(context.Background(), storagetest.Sample())
	require.NoError(t, err)

	v := newView(t, store)
	v.Open()
	waitMarkers(t, v, 1)
	require.True(t, v.Editor().Open(id))

	v.Editor().SetLabel("Rally")
	require.Eventually(t, func() bool {
		return v.Editor().Panel().Label == "Rally"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Delete(context.Background(), id))
	require.Eventually(t, func() bool {
		return v.Editor().Panel().Empty()
	}, time.Second, 5*time.Millisecond)
}
