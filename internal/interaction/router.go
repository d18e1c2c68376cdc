// Package interaction turns pointer gestures on the globe surface into
// select and create actions.
package interaction

import (
	"log/slog"
	"math"
	"sync"

	"github.com/c3i/globe/internal/scene"
	"github.com/go-gl/mathgl/mgl64"
)

// DragThreshold is the pointer travel, in pixels, beyond which a press
// becomes a camera drag.
const DragThreshold = 5.0

// Button identifies a pointer button.
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
)

// PointerEvent is a pointer position in viewport pixels, origin top-left.
type PointerEvent struct {
	X, Y   float64
	Button Button
}

// State is the gesture state.
type State int

const (
	StateIdle State = iota
	StatePressed
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePressed:
		return "pressed"
	case StateDragging:
		return "dragging"
	}
	return "unknown"
}

// RayCaster produces pick rays through viewport positions.
type RayCaster interface {
	Ray(x, y float64) (scene.Ray, error)
}

// CameraControl receives drag deltas.
type CameraControl interface {
	Drag(dx, dy float64)
}

// Config wires a Router to its collaborators. OnSelect and OnCreate are
// called on the goroutine delivering pointer events.
type Config struct {
	Camera   RayCaster
	Control  CameraControl
	Markers  *scene.Group
	Globe    scene.Globe
	OnSelect func(id string)
	OnCreate func(hit mgl64.Vec3)
	Logger   *slog.Logger
}

// Router is the per-surface gesture state machine.
type Router struct {
	cfg Config

	mu     sync.Mutex
	state  State
	button Button
	press  mgl64.Vec2
	last   mgl64.Vec2
}

// NewRouter creates an idle router.
func NewRouter(cfg Config) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{cfg: cfg}
}

// State returns the current gesture state.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// PointerDown starts a gesture.
func (r *Router) PointerDown(ev PointerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StatePressed
	r.button = ev.Button
	r.press = mgl64.Vec2{ev.X, ev.Y}
	r.last = r.press
}

// PointerMove tracks a held button. Moves with no button held are ignored.
func (r *Router) PointerMove(ev PointerEvent) {
	r.mu.Lock()
	pos := mgl64.Vec2{ev.X, ev.Y}
	switch r.state {
	case StateIdle:
		r.mu.Unlock()
		return
	case StatePressed:
		if pos.Sub(r.press).Len() <= DragThreshold {
			r.mu.Unlock()
			return
		}
		r.state = StateDragging
	}
	delta := pos.Sub(r.last)
	r.last = pos
	r.mu.Unlock()

	if r.cfg.Control != nil {
		r.cfg.Control.Drag(delta.X(), delta.Y())
	}
}

// PointerUp ends the gesture. A release that never crossed the drag
// threshold is a click.
func (r *Router) PointerUp(ev PointerEvent) {
	r.mu.Lock()
	state, button := r.state, r.button
	r.state = StateIdle
	r.mu.Unlock()

	if state != StatePressed {
		return
	}
	switch button {
	case ButtonPrimary:
		r.selectAt(ev.X, ev.Y)
	case ButtonSecondary:
		r.createAt(ev.X, ev.Y)
	}
}

// ContextMenu reports whether the platform menu must be suppressed. It
// always is on the globe surface.
func (r *Router) ContextMenu() bool { return true }

func (r *Router) ray(x, y float64) (scene.Ray, bool) {
	ray, err := r.cfg.Camera.Ray(x, y)
	if err != nil {
		r.cfg.Logger.Debug("Pick ray failed", "x", x, "y", y, "error", err)
		return scene.Ray{}, false
	}
	if math.IsNaN(ray.Direction.Len()) {
		return scene.Ray{}, false
	}
	return ray, true
}

// selectAt tests markers only; a primary click never creates.
func (r *Router) selectAt(x, y float64) {
	ray, ok := r.ray(x, y)
	if !ok || r.cfg.Markers == nil {
		return
	}
	m, hit := r.cfg.Markers.Pick(ray)
	if !hit || m.ID == "" {
		return
	}
	if r.cfg.OnSelect != nil {
		r.cfg.OnSelect(m.ID)
	}
}

// createAt tests the sphere only.
func (r *Router) createAt(x, y float64) {
	ray, ok := r.ray(x, y)
	if !ok {
		return
	}
	hit, ok := r.cfg.Globe.Intersect(ray)
	if !ok {
		return
	}
	if r.cfg.OnCreate != nil {
		r.cfg.OnCreate(hit)
	}
}
