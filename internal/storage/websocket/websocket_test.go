package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/internal/hub"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/internal/storage/memory"
	"github.com/c3i/globe/internal/storage/storagetest"
	"github.com/c3i/globe/pkg/core"
	"github.com/c3i/globe/pkg/streaming"
	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func startHub(t *testing.T, store storage.Store, cfg hub.Config) *hub.Hub {
	t.Helper()
	h, err := hub.New(cfg, hub.Dependencies{Store: store})
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// testHub runs a hub over an in-memory store.
func testHub(t *testing.T, cfg hub.Config) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New(memory.Config{})
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })

	h := startHub(t, store, cfg)
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return srv, store
}

func connect(t *testing.T, cfg Config) *Store {
	t.Helper()
	s := New(cfg, nil)
	require.NoError(t, s.Init())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		srv, _ := testHub(t, hub.Config{})
		return connect(t, Config{URL: wsURL(srv), User: "user-1"})
	})
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{URL: "ws://localhost:1/ws"}, nil)
	assert.Equal(t, defaultAckTimeout, s.cfg.AckTimeout)
}

func TestInit_BadSecret(t *testing.T) {
	srv, _ := testHub(t, hub.Config{Secret: "s3cret"})

	s := New(Config{URL: wsURL(srv), Secret: "wrong"}, nil)
	assert.Error(t, s.Init())

	ok := connect(t, Config{URL: wsURL(srv), Secret: "s3cret"})
	_, err := ok.Add(context.Background(), storagetest.Sample())
	assert.NoError(t, err)
}

func TestInit_Unreachable(t *testing.T) {
	s := New(Config{URL: "ws://127.0.0.1:1/ws"}, nil)
	assert.Error(t, s.Init())
}

func TestAdd_WritesReachTheHubStore(t *testing.T) {
	srv, store := testHub(t, hub.Config{})
	s := connect(t, Config{URL: wsURL(srv), User: "kestrel"})

	wp := storagetest.Sample()
	wp.CreatedBy = ""
	wp.ID = "ignored"
	id, err := s.Add(context.Background(), wp)
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", id)

	stored := store.List()
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].ID)
	assert.Equal(t, "kestrel", stored[0].CreatedBy)
}

func TestWrites_ErrorCodesMapToSentinels(t *testing.T) {
	srv, _ := testHub(t, hub.Config{})
	s := connect(t, Config{URL: wsURL(srv)})
	ctx := context.Background()

	assert.ErrorIs(t, s.Update(ctx, "missing", core.LabelPatch("x")), storage.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "missing", core.WaypointPatch{}), core.ErrEmptyPatch)

	bad := storagetest.Sample()
	bad.Coords.Lon = 400
	_, err := s.Add(ctx, bad)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
	assert.Contains(t, err.Error(), "hub rejected request", "the hub's message is kept")
}

func TestWrites_AfterClose(t *testing.T) {
	srv, _ := testHub(t, hub.Config{})
	s := connect(t, Config{URL: wsURL(srv)})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Add(context.Background(), storagetest.Sample())
	assert.ErrorIs(t, err, storage.ErrClosed)
}

func TestWrites_CancelledContext(t *testing.T) {
	srv, _ := testHub(t, hub.Config{})
	s := connect(t, Config{URL: wsURL(srv)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Add(ctx, storagetest.Sample())
	assert.ErrorIs(t, err, context.Canceled)
}

// silentHub answers subscribe with an empty snapshot when snapshot is true
// and never acknowledges anything.
func silentHub(t *testing.T, snapshot bool) *httptest.Server {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}
			var env streaming.Envelope
			if json.Unmarshal(msg, &env) != nil {
				continue
			}
			if env.Type == streaming.TypeSubscribe && snapshot {
				data, _ := streaming.MarshalEnvelope(streaming.TypeSnapshot, streaming.SnapshotPayload{})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInit_NoSnapshotTimesOut(t *testing.T) {
	srv := silentHub(t, false)
	s := New(Config{URL: wsURL(srv), AckTimeout: 200 * time.Millisecond}, nil)
	assert.ErrorIs(t, s.Init(), ErrAckTimeout)
}

func TestWrites_AckTimeout(t *testing.T) {
	srv := silentHub(t, true)
	s := connect(t, Config{URL: wsURL(srv), AckTimeout: 200 * time.Millisecond})

	rec := storagetest.NewRecorder()
	defer s.Subscribe(rec.Listener())()
	assert.Empty(t, rec.Next(t), "a null waypoint list is delivered as empty")

	_, err := s.Add(context.Background(), storagetest.Sample())
	assert.ErrorIs(t, err, ErrAckTimeout)
}

// switchable lets a test move clients from one hub to another.
type switchable struct {
	h atomic.Pointer[http.Handler]
}

func (s *switchable) set(h http.Handler) { s.h.Store(&h) }

func (s *switchable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.h.Load()).ServeHTTP(w, r)
}

func TestReconnect_ResubscribesAfterHubRestart(t *testing.T) {
	store := memory.New(memory.Config{})
	require.NoError(t, store.Init())
	t.Cleanup(func() { _ = store.Close() })

	first := startHub(t, store, hub.Config{})
	second := startHub(t, store, hub.Config{})

	sw := &switchable{}
	sw.set(first.Router())
	srv := httptest.NewServer(sw)
	t.Cleanup(srv.Close)

	s := connect(t, Config{URL: wsURL(srv)})
	rec := storagetest.NewRecorder()
	defer s.Subscribe(rec.Listener(), storage.WithErrorListener(rec.ErrorListener()))()
	rec.Next(t)

	ctx := context.Background()
	_, err := s.Add(ctx, storagetest.Sample())
	require.NoError(t, err)
	last := rec.WaitFor(t, storagetest.Len(1))

	sw.set(second.Router())
	require.NoError(t, first.Close())

	assert.ErrorIs(t, rec.NextError(t), ErrDisconnected)
	_, err = s.Add(ctx, storagetest.Sample())
	assert.ErrorIs(t, err, ErrDisconnected, "writes fail fast while disconnected")
	assert.Len(t, last, 1, "the last snapshot stays valid")

	// the replayed subscribe brings a fresh snapshot from the second hub
	rec.WaitFor(t, storagetest.Len(1))
	require.Eventually(t, func() bool {
		_, err := s.Add(ctx, storagetest.Sample())
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	rec.WaitFor(t, storagetest.Len(2))
}
