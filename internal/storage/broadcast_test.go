package storage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/storagetest"
	"github.com/c3i/globe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_WaitsForFirstPublish(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	rec := storagetest.NewRecorder()
	unsub := b.Subscribe(rec.Listener())
	defer unsub()

	rec.AssertQuiet(t, 50*time.Millisecond)

	b.Publish([]core.Waypoint{{ID: "1"}})
	assert.Len(t, rec.Next(t), 1)
}

func TestBroadcaster_LateSubscriberGetsLatest(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	b.Publish([]core.Waypoint{{ID: "1"}})
	b.Publish([]core.Waypoint{{ID: "1"}, {ID: "2"}})

	rec := storagetest.NewRecorder()
	unsub := b.Subscribe(rec.Listener())
	defer unsub()

	assert.Len(t, rec.Next(t), 2)
}

func TestBroadcaster_PreservesOrder(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	rec := storagetest.NewRecorder()
	unsub := b.Subscribe(rec.Listener())
	defer unsub()

	for i := 0; i < 50; i++ {
		b.Publish(make([]core.Waypoint, i))
	}
	for i := 0; i < 50; i++ {
		require.Len(t, rec.Next(t), i)
	}
}

func TestBroadcaster_SlowListenerDoesNotBlockPublish(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	release := make(chan struct{})
	unsub := b.Subscribe(func([]core.Waypoint) { <-release })
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow listener")
	}
	close(release)
}

func TestBroadcaster_ListenersGetPrivateCopies(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	a, c := storagetest.NewRecorder(), storagetest.NewRecorder()
	unsubA := b.Subscribe(a.Listener())
	defer unsubA()
	unsubC := b.Subscribe(c.Listener())
	defer unsubC()

	b.Publish([]core.Waypoint{{ID: "1", Label: "Alpha"}})

	first := a.Next(t)
	first[0].Label = "mutated"
	assert.Equal(t, "Alpha", c.Next(t)[0].Label)
}

func TestBroadcaster_Fail(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	rec := storagetest.NewRecorder()
	unsub := b.Subscribe(rec.Listener(), storage.WithErrorListener(rec.ErrorListener()))
	defer unsub()

	boom := errors.New("permission revoked")
	b.Fail(boom)
	assert.ErrorIs(t, rec.NextError(t), boom)
}

func TestBroadcaster_PanickingListenerKeepsRunning(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	defer b.Close()

	calls := make(chan int, 4)
	n := 0
	unsub := b.Subscribe(func([]core.Waypoint) {
		n++
		calls <- n
		if n == 1 {
			panic("render failed")
		}
	})
	defer unsub()

	b.Publish(nil)
	b.Publish(nil)

	for want := 1; want <= 2; want++ {
		select {
		case got := <-calls:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("listener call %d never happened", want)
		}
	}
}

func TestBroadcaster_CloseRejectsNewSubscribers(t *testing.T) {
	b := storage.NewBroadcaster(nil)
	b.Close()

	rec := storagetest.NewRecorder()
	unsub := b.Subscribe(rec.Listener(), storage.WithErrorListener(rec.ErrorListener()))
	unsub()

	assert.ErrorIs(t, rec.NextError(t), storage.ErrClosed)
	assert.Equal(t, 0, b.Len())
}
