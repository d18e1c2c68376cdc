package interaction

import (
	"math"
	"sync"

	"github.com/c3i/globe/internal/scene"
	"github.com/go-gl/mathgl/mgl64"
)

// Orbit distance limits around the globe.
const (
	MinDistance = 6.0
	MaxDistance = 20.0
)

const (
	minPolar = 1e-3
	maxPolar = math.Pi - 1e-3
)

// Orbit rotates a camera around the origin. It implements CameraControl.
type Orbit struct {
	mu     sync.Mutex
	camera *scene.Camera

	azimuth  float64
	polar    float64
	distance float64

	// RotateSpeed scales drag deltas; AutoRotateSpeed is in degrees per second.
	RotateSpeed     float64
	AutoRotate      bool
	AutoRotateSpeed float64
}

// NewOrbit takes its initial angles and distance from the camera position.
func NewOrbit(cam *scene.Camera) *Orbit {
	o := &Orbit{camera: cam, RotateSpeed: 1, AutoRotateSpeed: 1.2}
	p := cam.Position.Sub(cam.Target)
	o.distance = clamp(p.Len(), MinDistance, MaxDistance)
	if p.Len() > 0 {
		o.polar = math.Acos(clamp(p.Y()/p.Len(), -1, 1))
		o.azimuth = math.Atan2(p.X(), p.Z())
	} else {
		o.polar = math.Pi / 2
	}
	o.polar = clamp(o.polar, minPolar, maxPolar)
	o.apply()
	return o
}

// Drag orbits by a pointer delta in pixels. A drag across the full
// viewport height turns the camera once around.
func (o *Orbit) Drag(dx, dy float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h := float64(o.camera.Height)
	if h <= 0 {
		h = 1
	}
	o.azimuth -= 2 * math.Pi * dx / h * o.RotateSpeed
	o.polar = clamp(o.polar-2*math.Pi*dy/h*o.RotateSpeed, minPolar, maxPolar)
	o.apply()
}

// Zoom multiplies the distance by factor, within the orbit limits.
func (o *Orbit) Zoom(factor float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.distance = clamp(o.distance*factor, MinDistance, MaxDistance)
	o.apply()
}

// Tick advances auto-rotation by dt seconds.
func (o *Orbit) Tick(dt float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.AutoRotate {
		return
	}
	o.azimuth += mgl64.DegToRad(o.AutoRotateSpeed) * dt
	o.apply()
}

// Distance returns the camera distance from the target.
func (o *Orbit) Distance() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.distance
}

// Polar returns the polar angle in radians, 0 looking down from +Y.
func (o *Orbit) Polar() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.polar
}

func (o *Orbit) apply() {
	sinP := math.Sin(o.polar)
	offset := mgl64.Vec3{
		o.distance * sinP * math.Sin(o.azimuth),
		o.distance * math.Cos(o.polar),
		o.distance * sinP * math.Cos(o.azimuth),
	}
	o.camera.Position = o.camera.Target.Add(offset)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
