package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Ray is a half-line used for picking. Direction is unit length.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// NewRay normalises dir.
func NewRay(origin, dir mgl64.Vec3) Ray {
	return Ray{Origin: origin, Direction: dir.Normalize()}
}

// At returns the point at distance t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// intersectSphere returns the smallest non-negative t at which r meets the
// sphere, or false when it misses or the sphere is behind the origin.
func intersectSphere(r Ray, center mgl64.Vec3, radius float64) (float64, bool) {
	oc := r.Origin.Sub(center)
	b := oc.Dot(r.Direction)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	if t := -b - sq; t >= 0 {
		return t, true
	}
	if t := -b + sq; t >= 0 {
		return t, true
	}
	return 0, false
}

// Globe is the pickable sphere waypoints sit on.
type Globe struct {
	Center mgl64.Vec3
	Radius float64
}

// Intersect returns the nearest surface point hit by r.
func (g Globe) Intersect(r Ray) (mgl64.Vec3, bool) {
	t, ok := intersectSphere(r, g.Center, g.Radius)
	if !ok {
		return mgl64.Vec3{}, false
	}
	return r.At(t), true
}

// Camera is a perspective camera looking at Target. It is not safe for
// concurrent use; the pointer event loop owns it.
type Camera struct {
	Position mgl64.Vec3
	Target   mgl64.Vec3
	Up       mgl64.Vec3
	FovY     float64 // degrees
	Near     float64
	Far      float64
	Width    int
	Height   int
}

// DefaultCamera matches the globe view: 75° field of view, ten units out on +Z.
func DefaultCamera(width, height int) *Camera {
	return &Camera{
		Position: mgl64.Vec3{0, 0, 10},
		Up:       mgl64.Vec3{0, 1, 0},
		FovY:     75,
		Near:     0.1,
		Far:      1000,
		Width:    width,
		Height:   height,
	}
}

// View returns the view matrix.
func (c *Camera) View() mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, c.Target, c.Up)
}

// Projection returns the perspective matrix.
func (c *Camera) Projection() mgl64.Mat4 {
	aspect := 1.0
	if c.Height > 0 {
		aspect = float64(c.Width) / float64(c.Height)
	}
	return mgl64.Perspective(mgl64.DegToRad(c.FovY), aspect, c.Near, c.Far)
}

// Ray casts a pick ray through the pointer at (x, y), measured in pixels
// from the top-left corner of the viewport.
func (c *Camera) Ray(x, y float64) (Ray, error) {
	view, proj := c.View(), c.Projection()
	winY := float64(c.Height) - y
	near, err := mgl64.UnProject(mgl64.Vec3{x, winY, 0}, view, proj, 0, 0, c.Width, c.Height)
	if err != nil {
		return Ray{}, err
	}
	far, err := mgl64.UnProject(mgl64.Vec3{x, winY, 1}, view, proj, 0, 0, c.Width, c.Height)
	if err != nil {
		return Ray{}, err
	}
	return NewRay(near, far.Sub(near)), nil
}
