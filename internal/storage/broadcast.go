package storage

import (
	"log/slog"
	"sync"

	"github.com/c3i/globe/internal/queue"
	"github.com/c3i/globe/pkg/core"
)

// Broadcaster fans snapshots out to subscribers. Each subscriber owns a
// FIFO and a delivery goroutine, so a slow listener never blocks the
// writer and every listener sees snapshots in publish order.
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[uint64]*subscriber
	nextID    uint64
	latest    []core.Waypoint
	hasLatest bool
	closed    bool

	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster. A nil logger uses slog.Default().
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subs:   make(map[uint64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a listener. If a snapshot has already been published
// the listener receives it first; otherwise it waits for the first Publish.
func (b *Broadcaster) Subscribe(onChange Listener, opts ...SubscribeOption) Unsubscribe {
	cfg := applySubscribeOptions(opts)
	s := &subscriber{
		events:   queue.New[event](),
		done:     make(chan struct{}),
		onChange: onChange,
		onError:  cfg.onError,
		logger:   b.logger,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		if cfg.onError != nil {
			go cfg.onError(ErrClosed)
		}
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	if b.hasLatest {
		s.events.Push(event{snapshot: core.CloneWaypoints(b.latest)})
	}
	b.mu.Unlock()

	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.stop()
		})
	}
}

// Publish queues a snapshot for every subscriber. Callers publish while
// holding their own write lock so snapshot order matches write order.
func (b *Broadcaster) Publish(snapshot []core.Waypoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = core.CloneWaypoints(snapshot)
	b.hasLatest = true
	for _, s := range b.subs {
		s.events.Push(event{snapshot: core.CloneWaypoints(snapshot)})
	}
}

// Fail reports a subscription error to every subscriber.
func (b *Broadcaster) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		s.events.Push(event{err: err})
	}
}

// Latest returns the last published snapshot.
func (b *Broadcaster) Latest() ([]core.Waypoint, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return core.CloneWaypoints(b.latest), b.hasLatest
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops every delivery goroutine. Later subscriptions receive ErrClosed.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[uint64]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

type event struct {
	snapshot []core.Waypoint
	err      error
}

type subscriber struct {
	events   *queue.Queue[event]
	done     chan struct{}
	stopOnce sync.Once
	onChange Listener
	onError  ErrorListener
	logger   *slog.Logger
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.events.Ready():
		}

		for {
			select {
			case <-s.done:
				return
			default:
			}
			ev, ok := s.events.Pop()
			if !ok {
				break
			}
			s.deliver(ev)
		}
	}
}

func (s *subscriber) deliver(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Waypoint listener panicked", "panic", r)
		}
	}()

	if ev.err != nil {
		if s.onError != nil {
			s.onError(ev.err)
		} else {
			s.logger.Warn("Subscription error", "error", ev.err)
		}
		return
	}
	if s.onChange != nil {
		s.onChange(ev.snapshot)
	}
}

func (s *subscriber) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}
