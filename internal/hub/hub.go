// Package hub serves the shared waypoint collection to websocket clients
// and exposes read-only REST, GeoJSON and metrics endpoints.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c3i/globe/internal/audit"
	"github.com/c3i/globe/internal/cache"
	"github.com/c3i/globe/internal/dispatcher"
	"github.com/c3i/globe/internal/metrics"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/go-chi/chi/v5"
	ws "github.com/gorilla/websocket"
)

const (
	defaultSendQueue    = 256
	defaultPingInterval = 30 * time.Second
	defaultWriteWait    = 10 * time.Second
	maxMessageSize      = 64 << 10
	readyTimeout        = 10 * time.Second
)

// Config holds hub settings.
type Config struct {
	Secret       string
	SendQueue    int
	PingInterval time.Duration
	WriteWait    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendQueue <= 0 {
		c.SendQueue = defaultSendQueue
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	return c
}

// Dependencies are the collaborators the hub works with. Store is owned
// by the caller and is not closed by the hub.
type Dependencies struct {
	Store          storage.Store
	Cache          *cache.WaypointCache
	Recorder       *audit.Recorder
	Metrics        *metrics.Hub
	Logger         *slog.Logger
	DispatchLogger dispatcher.Logger
}

// Hub accepts websocket clients and routes their requests to the store.
type Hub struct {
	cfg      Config
	store    storage.Store
	cache    *cache.WaypointCache
	rec      *audit.Recorder
	metrics  *metrics.Hub
	logger   *slog.Logger
	disp     *dispatcher.Dispatcher
	upgrader ws.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*client
	nextID  atomic.Uint64
	unsub   storage.Unsubscribe
	closed  bool
}

// New creates a hub. Call Start before serving.
func New(cfg Config, deps Dependencies) (*Hub, error) {
	if deps.Store == nil {
		return nil, errors.New("hub requires a store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewWaypointCache()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewHub(false)
	}
	if deps.DispatchLogger == nil {
		deps.DispatchLogger = slogDispatchLogger{deps.Logger}
	}

	disp, err := dispatcher.New(deps.DispatchLogger)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:     cfg.withDefaults(),
		store:   deps.Store,
		cache:   deps.Cache,
		rec:     deps.Recorder,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		disp:    disp,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	h.registerHandlers()
	return h, nil
}

// Start subscribes the hub's own cache to the store and waits for the
// first snapshot so REST readers never see an empty collection by mistake.
func (h *Hub) Start(ctx context.Context) error {
	ready := make(chan struct{})
	var once sync.Once

	unsub := h.store.Subscribe(func(wps []core.Waypoint) {
		h.cache.Replace(wps)
		h.metrics.SnapshotSize.Set(float64(len(wps)))
		once.Do(func() { close(ready) })
	}, storage.WithErrorListener(func(err error) {
		h.logger.Warn("Store subscription error", "error", err)
	}))

	h.mu.Lock()
	h.unsub = unsub
	h.mu.Unlock()

	timer := time.NewTimer(readyTimeout)
	defer timer.Stop()
	select {
	case <-ready:
		h.logger.Info("Hub ready", "waypoints", h.cache.Len())
		return nil
	case <-timer.C:
		return errors.New("timed out waiting for the first store snapshot")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects every client and drops the cache subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	unsub := h.unsub
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		c.shutdown(ws.CloseGoingAway, "hub shutting down")
	}
	if unsub != nil {
		unsub()
	}
	return nil
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Cache returns the hub's view of the collection.
func (h *Hub) Cache() *cache.WaypointCache { return h.cache }

// Router mounts every endpoint.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", h.serveWS)
	r.Get("/healthcheck", h.serveHealthcheck)
	r.Route("/api", func(r chi.Router) {
		r.Use(h.requireSecret)
		r.Get("/waypoints", h.serveWaypoints)
		r.Get("/waypoints.geojson", h.serveGeoJSON)
	})
	r.Handle("/metrics", h.metrics.Handler())
	return r
}

// ListenAndServe serves Router on addr until ctx is cancelled.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("Hub listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.cfg.Secret != "" && q.Get("secret") != h.cfg.Secret {
		h.metrics.RejectedClients.Inc()
		h.logger.Warn("Rejected websocket client", "remote", r.RemoteAddr)
		http.Error(w, "invalid secret", http.StatusUnauthorized)
		return
	}

	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "hub closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	id := strconv.FormatUint(h.nextID.Add(1), 10)
	c := newClient(h, id, q.Get("user"), conn)
	if !h.register(c) {
		c.shutdown(ws.CloseGoingAway, "hub shutting down")
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	h.metrics.ConnectedClients.Inc()
	h.logger.Info("Client connected", "client", c.id, "user", c.user, "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.metrics.ConnectedClients.Dec()
		h.logger.Info("Client disconnected", "client", c.id, "user", c.user, "clients", n)
	}
}

// storeFor returns the store view used for writes by user.
func (h *Hub) storeFor(user string) storage.Store {
	if h.rec == nil {
		return h.store
	}
	return audit.Wrap(h.store, h.rec, audit.Actor{Operator: user, UserID: user})
}

type slogDispatchLogger struct{ l *slog.Logger }

func (s slogDispatchLogger) Debug(msg string, kv ...any) { s.l.Debug(msg, kv...) }
func (s slogDispatchLogger) Info(msg string, kv ...any)  { s.l.Info(msg, kv...) }
func (s slogDispatchLogger) Error(msg string, kv ...any) { s.l.Error(msg, kv...) }
