// Package storagetest holds the behaviour every storage.Store must share,
// run by each backend's tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

// Recorder collects snapshots delivered to a subscription.
type Recorder struct {
	snapshots chan []core.Waypoint
	errs      chan error
}

// NewRecorder creates a Recorder with generous buffering.
func NewRecorder() *Recorder {
	return &Recorder{
		snapshots: make(chan []core.Waypoint, 256),
		errs:      make(chan error, 16),
	}
}

// Listener feeds the recorder.
func (r *Recorder) Listener() storage.Listener {
	return func(wps []core.Waypoint) { r.snapshots <- wps }
}

// ErrorListener feeds the recorder's error channel.
func (r *Recorder) ErrorListener() storage.ErrorListener {
	return func(err error) { r.errs <- err }
}

// Next waits for the next snapshot.
func (r *Recorder) Next(t *testing.T) []core.Waypoint {
	t.Helper()
	select {
	case wps := <-r.snapshots:
		return wps
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

// WaitFor skips snapshots until one satisfies match.
func (r *Recorder) WaitFor(t *testing.T, match func([]core.Waypoint) bool) []core.Waypoint {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case wps := <-r.snapshots:
			if match(wps) {
				return wps
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching snapshot")
			return nil
		}
	}
}

// NextError waits for a subscription error.
func (r *Recorder) NextError(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for subscription error")
		return nil
	}
}

// AssertQuiet fails if a snapshot arrives within d.
func (r *Recorder) AssertQuiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case wps := <-r.snapshots:
		t.Fatalf("unexpected snapshot with %d waypoints", len(wps))
	case <-time.After(d):
	}
}

// Len matches snapshots of exactly n waypoints.
func Len(n int) func([]core.Waypoint) bool {
	return func(wps []core.Waypoint) bool { return len(wps) == n }
}

// Find returns the waypoint with the given id.
func Find(wps []core.Waypoint, id string) (core.Waypoint, bool) {
	for _, w := range wps {
		if w.ID == id {
			return w, true
		}
	}
	return core.Waypoint{}, false
}

// Sample is the north-pole waypoint used across store tests.
func Sample() core.Waypoint {
	return core.Waypoint{
		Label:     "WP-0001",
		Position:  core.Vec3{X: 0, Y: 5, Z: 0},
		Coords:    core.LatLon{Lat: 90, Lon: 0},
		Color:     core.DefaultColor,
		CreatedBy: "user-1",
	}
}

// Run exercises a fresh, empty store produced by newStore. newStore must
// register its own cleanup.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	ctx := context.Background()

	t.Run("SubscribeFiresImmediately", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecorder()
		unsub := s.Subscribe(rec.Listener())
		defer unsub()

		assert.Empty(t, rec.Next(t))
	})

	t.Run("AddThenDelete", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecorder()
		unsub := s.Subscribe(rec.Listener())
		defer unsub()
		assert.Empty(t, rec.Next(t))

		id, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		require.NotEmpty(t, id)

		wps := rec.WaitFor(t, Len(1))
		got := wps[0]
		assert.Equal(t, id, got.ID)
		assert.Equal(t, "WP-0001", got.Label)
		assert.Equal(t, core.Vec3{X: 0, Y: 5, Z: 0}, got.Position)
		assert.Equal(t, core.LatLon{Lat: 90, Lon: 0}, got.Coords)
		assert.Equal(t, core.DefaultColor, got.Color)
		assert.Equal(t, "user-1", got.CreatedBy)
		assert.False(t, got.CreatedAt.IsZero(), "createdAt is assigned by the store")

		require.NoError(t, s.Delete(ctx, id))
		rec.WaitFor(t, Len(0))
	})

	t.Run("UpdateTouchesOnlyLabelAndColor", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecorder()
		unsub := s.Subscribe(rec.Listener())
		defer unsub()

		id, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		before := rec.WaitFor(t, Len(1))[0]

		require.NoError(t, s.Update(ctx, id, core.LabelPatch("Rally")))
		after := rec.WaitFor(t, func(wps []core.Waypoint) bool {
			return len(wps) == 1 && wps[0].Label == "Rally"
		})[0]
		assert.Equal(t, before.Color, after.Color)
		assert.Equal(t, before.Position, after.Position)
		assert.Equal(t, before.Coords, after.Coords)

		require.NoError(t, s.Update(ctx, id, core.ColorPatch("#00ff00")))
		after = rec.WaitFor(t, func(wps []core.Waypoint) bool {
			return len(wps) == 1 && wps[0].Color == "#00ff00"
		})[0]
		assert.Equal(t, "Rally", after.Label)
	})

	t.Run("WritesToMissingIDFail", func(t *testing.T) {
		s := newStore(t)

		err := s.Update(ctx, "does-not-exist", core.LabelPatch("x"))
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = s.Delete(ctx, "does-not-exist")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("EmptyPatchRejected", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Add(ctx, Sample())
		require.NoError(t, err)

		assert.ErrorIs(t, s.Update(ctx, id, core.WaypointPatch{}), core.ErrEmptyPatch)
	})

	t.Run("IDsAreNotReused", func(t *testing.T) {
		s := newStore(t)
		first, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		require.NoError(t, s.Delete(ctx, first))

		second, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("EverySubscriberSeesEveryWrite", func(t *testing.T) {
		s := newStore(t)
		a, b := NewRecorder(), NewRecorder()
		unsubA := s.Subscribe(a.Listener())
		defer unsubA()
		unsubB := s.Subscribe(b.Listener())
		defer unsubB()

		_, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		_, err = s.Add(ctx, Sample())
		require.NoError(t, err)

		a.WaitFor(t, Len(2))
		b.WaitFor(t, Len(2))
	})

	t.Run("UnsubscribeStopsDeliveryAndIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		rec := NewRecorder()
		unsub := s.Subscribe(rec.Listener())
		rec.Next(t)

		unsub()
		unsub()

		_, err := s.Add(ctx, Sample())
		require.NoError(t, err)
		rec.AssertQuiet(t, 200*time.Millisecond)
	})

	t.Run("LateSubscriberGetsCurrentSet", func(t *testing.T) {
		s := newStore(t)
		id, err := s.Add(ctx, Sample())
		require.NoError(t, err)

		rec := NewRecorder()
		unsub := s.Subscribe(rec.Listener())
		defer unsub()

		wps := rec.WaitFor(t, Len(1))
		assert.Equal(t, id, wps[0].ID)
	})
}
