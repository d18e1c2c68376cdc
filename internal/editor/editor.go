// Package editor presents the selected waypoint and forwards edits to
// the store. The panel never reflects an edit until the store confirms
// it through a new snapshot.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	colorful "github.com/lucasb-eyer/go-colorful"
)

const writeTimeout = 15 * time.Second

// Lookup reads waypoints by id. *cache.WaypointCache satisfies it.
type Lookup interface {
	Get(id string) (core.Waypoint, bool)
}

// Panel is the editor's view of the selected waypoint.
type Panel struct {
	ID     string
	Label  string
	Color  string
	Coords core.LatLon
}

// Empty reports whether nothing is selected.
func (p Panel) Empty() bool { return p.ID == "" }

// Editor owns the panel for one view.
type Editor struct {
	store  storage.Store
	cache  Lookup
	status *StatusLine
	logger *slog.Logger

	mu    sync.Mutex
	panel Panel

	wg sync.WaitGroup
}

// New creates an editor. status and logger may be nil.
func New(store storage.Store, cache Lookup, status *StatusLine, logger *slog.Logger) *Editor {
	if status == nil {
		status = NewStatusLine(0, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{store: store, cache: cache, status: status, logger: logger}
}

// Open selects id. It reports false and leaves the panel unchanged when
// the cache does not know the id.
func (e *Editor) Open(id string) bool {
	wp, ok := e.cache.Get(id)
	if !ok {
		return false
	}
	p := panelFor(wp)
	e.mu.Lock()
	e.panel = p
	e.mu.Unlock()
	e.status.Setf("Selected waypoint: %s", p.Label)
	return true
}

// Close clears the panel.
func (e *Editor) Close() {
	e.mu.Lock()
	e.panel = Panel{}
	e.mu.Unlock()
}

// Panel returns the current panel.
func (e *Editor) Panel() Panel {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panel
}

// Status returns the editor's status line.
func (e *Editor) Status() *StatusLine { return e.status }

// SetLabel requests a label change for the selected waypoint.
func (e *Editor) SetLabel(label string) {
	id := e.selected()
	if id == "" {
		return
	}
	e.write("update label", id, func(ctx context.Context) error {
		return e.store.Update(ctx, id, core.LabelPatch(label))
	})
}

// SetColor requests a color change. Colors that do not parse as hex are
// rejected locally.
func (e *Editor) SetColor(color string) {
	id := e.selected()
	if id == "" {
		return
	}
	c, err := colorful.Hex(color)
	if err != nil {
		e.status.Setf("Invalid color %q", color)
		return
	}
	hex := c.Hex()
	e.write("update color", id, func(ctx context.Context) error {
		return e.store.Update(ctx, id, core.ColorPatch(hex))
	})
}

// Delete requests deletion and clears the panel at once.
func (e *Editor) Delete() {
	id := e.selected()
	if id == "" {
		return
	}
	e.Close()
	e.write("delete", id, func(ctx context.Context) error {
		return e.store.Delete(ctx, id)
	})
}

// Refresh re-reads the selected waypoint after a snapshot. A waypoint that
// vanished was deleted elsewhere.
func (e *Editor) Refresh() {
	e.mu.Lock()
	id := e.panel.ID
	if id == "" {
		e.mu.Unlock()
		return
	}
	wp, ok := e.cache.Get(id)
	if ok {
		e.panel = panelFor(wp)
	} else {
		e.panel = Panel{}
	}
	e.mu.Unlock()

	if !ok {
		e.status.Setf("Waypoint %s was removed", id)
	}
}

// Wait blocks until every write issued so far has finished.
func (e *Editor) Wait() {
	e.wg.Wait()
}

func (e *Editor) selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panel.ID
}

// write runs op in the background. Failures go to the log and the status
// line; nothing is retried.
func (e *Editor) write(action, id string, op func(context.Context) error) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			e.logger.Warn("Waypoint write failed", "action", action, "id", id, "error", err)
			e.status.Setf("Failed to %s: %v", action, err)
		}
	}()
}

func panelFor(wp core.Waypoint) Panel {
	color := wp.Color
	if color == "" {
		color = core.DefaultColor
	}
	return Panel{
		ID:     wp.ID,
		Label:  wp.DisplayLabel(),
		Color:  color,
		Coords: wp.Coords,
	}
}
