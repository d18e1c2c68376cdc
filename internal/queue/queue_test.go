package queue

import (
	"sync"
	"testing"
	"time"
)

type snapshot struct {
	Seq int
	IDs []string
}

func TestQueue_New(t *testing.T) {
	q := New[snapshot]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := New[snapshot]()
	q.Push(snapshot{Seq: 1}, snapshot{Seq: 2})
	q.Push(snapshot{Seq: 3})

	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		if !ok {
			t.Fatalf("expected item %d", want)
		}
		if got.Seq != want {
			t.Errorf("expected seq %d, got %d", want, got.Seq)
		}
	}

	if _, ok := q.Pop(); ok {
		t.Error("expected empty queue")
	}
}

func TestQueue_ReadySignalsAfterPush(t *testing.T) {
	q := New[snapshot]()

	select {
	case <-q.Ready():
		t.Fatal("unexpected signal on empty queue")
	default:
	}

	q.Push(snapshot{Seq: 1})
	q.Push(snapshot{Seq: 2})

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("expected signal after push")
	}
	if q.Len() != 2 {
		t.Errorf("expected both items queued, got %d", q.Len())
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[snapshot]()
	q.Push(snapshot{Seq: 1}, snapshot{Seq: 2})

	items := q.Drain()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !q.Empty() {
		t.Error("expected empty queue after drain")
	}

	q.Push(snapshot{Seq: 3})
	if items[0].Seq != 1 {
		t.Error("drained slice must not be reused by later pushes")
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[snapshot]()
	q.Push(snapshot{Seq: 1})
	q.Clear()
	if !q.Empty() {
		t.Error("expected empty queue after clear")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[snapshot]()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(snapshot{Seq: n*100 + j})
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected 1000 items, got %d", q.Len())
	}
}
