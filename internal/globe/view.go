// Package globe wires a waypoint store to the scene, the editor and the
// pointer router for one viewer.
package globe

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c3i/globe/internal/cache"
	"github.com/c3i/globe/internal/editor"
	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/internal/interaction"
	"github.com/c3i/globe/internal/scene"
	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultRadius is the globe radius in scene units.
	DefaultRadius = 5.0

	addTimeout = 15 * time.Second
)

// Config holds per-view settings.
type Config struct {
	Radius    float64
	User      string
	StatusTTL time.Duration
	Clock     func() time.Time
	Logger    *slog.Logger
	// OnRender is called after every applied snapshot. Optional.
	OnRender func(wps []core.Waypoint)
}

// View owns the dependency graph of one viewer. Only the store is shared.
type View struct {
	cfg       Config
	store     storage.Store
	cache     *cache.WaypointCache
	projector *scene.Projector
	status    *editor.StatusLine
	editor    *editor.Editor
	logger    *slog.Logger

	mu     sync.Mutex
	unsub  storage.Unsubscribe
	opened bool
	closed bool

	writes sync.WaitGroup
}

// New builds a view over store. The store must already be initialised.
func New(store storage.Store, cfg Config) *View {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := cache.NewWaypointCache()
	status := editor.NewStatusLine(cfg.StatusTTL, cfg.Clock)
	return &View{
		cfg:       cfg,
		store:     store,
		cache:     c,
		projector: scene.NewProjector(scene.NewGroup()),
		status:    status,
		editor:    editor.New(store, c, status, cfg.Logger),
		logger:    cfg.Logger,
	}
}

func (v *View) Cache() *cache.WaypointCache { return v.cache }
func (v *View) Markers() *scene.Group       { return v.projector.Group() }
func (v *View) Editor() *editor.Editor      { return v.editor }
func (v *View) Status() *editor.StatusLine  { return v.status }
func (v *View) Globe() scene.Globe          { return scene.Globe{Radius: v.cfg.Radius} }

// Open subscribes to the store. Calling it twice is a no-op.
func (v *View) Open() {
	v.mu.Lock()
	if v.opened || v.closed {
		v.mu.Unlock()
		return
	}
	v.opened = true
	v.mu.Unlock()

	// Some stores deliver the first snapshot from inside Subscribe.
	unsub := v.store.Subscribe(v.apply, storage.WithErrorListener(v.fail))

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		unsub()
		return
	}
	v.unsub = unsub
	v.mu.Unlock()
}

func (v *View) apply(wps []core.Waypoint) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cache.Replace(wps)
	all := v.cache.All()
	v.projector.Render(all)
	v.editor.Refresh()
	if v.cfg.OnRender != nil {
		v.cfg.OnRender(all)
	}
}

// fail keeps the last good snapshot on screen.
func (v *View) fail(err error) {
	v.logger.Error("Waypoint subscription failed", "error", err)
	v.status.Setf("Connection problem: %v", err)
}

// Close stops rendering and clears the markers. Writes already issued
// still run to completion.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	unsub := v.unsub
	v.unsub = nil
	v.projector.Release()
	v.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Wait blocks until every write issued through the view has finished.
func (v *View) Wait() {
	v.writes.Wait()
	v.editor.Wait()
}

// NewWaypoint builds a waypoint at a surface point with the default label
// and color.
func (v *View) NewWaypoint(hit mgl64.Vec3) core.Waypoint {
	return core.Waypoint{
		Label:     core.DefaultLabel(v.cfg.Clock()),
		Position:  core.FromVec(hit),
		Coords:    surfaceCoords(hit, v.cfg.Radius),
		Color:     core.DefaultColor,
		CreatedBy: v.cfg.User,
	}
}

// surfaceCoords is PointToLatLon with the x>0, z=0 meridian folded from
// -180 onto 180, matching typed entry.
func surfaceCoords(hit mgl64.Vec3, radius float64) core.LatLon {
	c := geo.PointToLatLon(hit, radius)
	c.Lon = geo.NormalizeLon(c.Lon)
	return c
}

// WaypointAt builds a waypoint from typed coordinates.
func (v *View) WaypointAt(lat, lon float64) (core.Waypoint, error) {
	if err := geo.ValidateLatLon(lat, lon); err != nil {
		return core.Waypoint{}, err
	}
	lon = geo.NormalizeLon(lon)
	wp := v.NewWaypoint(geo.LatLonToPoint(lat, lon, v.cfg.Radius))
	wp.Coords = core.LatLon{Lat: lat, Lon: lon}
	return wp, nil
}

// PlotAtSurface adds a waypoint where a ray met the globe.
func (v *View) PlotAtSurface(hit mgl64.Vec3) {
	v.add(v.NewWaypoint(hit))
}

// PlotAtCoords adds a waypoint from typed coordinates. Only validation
// errors are returned; the write itself reports through the status line.
func (v *View) PlotAtCoords(lat, lon float64) error {
	wp, err := v.WaypointAt(lat, lon)
	if err != nil {
		return err
	}
	v.add(wp)
	return nil
}

func (v *View) add(wp core.Waypoint) {
	v.writes.Add(1)
	go func() {
		defer v.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), addTimeout)
		defer cancel()
		if _, err := v.store.Add(ctx, wp); err != nil {
			v.logger.Warn("Failed to plot waypoint", "label", wp.Label, "coords", wp.Coords.String(), "error", err)
			v.status.Setf("Failed to plot %s: %v", wp.Label, err)
			return
		}
		v.status.Setf("Plotted %s at %s", wp.Label, wp.Coords)
	}()
}

// NewRouter builds the pointer router for this view. A primary click on a
// marker opens the editor; a secondary click on the globe plots.
func (v *View) NewRouter(camera *scene.Camera) *interaction.Router {
	return interaction.NewRouter(interaction.Config{
		Camera:   camera,
		Control:  interaction.NewOrbit(camera),
		Markers:  v.projector.Group(),
		Globe:    v.Globe(),
		OnSelect: func(id string) { v.editor.Open(id) },
		OnCreate: v.PlotAtSurface,
		Logger:   v.logger,
	})
}
