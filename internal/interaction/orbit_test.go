package interaction

import (
	"math"
	"testing"

	"github.com/c3i/globe/internal/scene"
	"github.com/stretchr/testify/assert"
)

func TestOrbit_StartsFromCamera(t *testing.T) {
	cam := scene.DefaultCamera(width, height)
	o := NewOrbit(cam)

	assert.InDelta(t, 10, o.Distance(), 1e-9)
	assert.InDelta(t, math.Pi/2, o.Polar(), 1e-9)
	assert.InDelta(t, 10, cam.Position.Z(), 1e-9)
}

func TestOrbit_DistanceClamped(t *testing.T) {
	cam := scene.DefaultCamera(width, height)
	o := NewOrbit(cam)

	o.Zoom(0.1)
	assert.Equal(t, MinDistance, o.Distance())
	assert.InDelta(t, MinDistance, cam.Position.Len(), 1e-9)

	o.Zoom(100)
	assert.Equal(t, MaxDistance, o.Distance())

	far := scene.DefaultCamera(width, height)
	far.Position[2] = 50
	assert.Equal(t, MaxDistance, NewOrbit(far).Distance())
}

func TestOrbit_DragRotatesAroundOrigin(t *testing.T) {
	cam := scene.DefaultCamera(width, height)
	o := NewOrbit(cam)

	// a quarter of the viewport height turns a quarter circle
	o.Drag(-height/4, 0)
	assert.InDelta(t, 10, cam.Position.X(), 1e-9)
	assert.InDelta(t, 0, cam.Position.Z(), 1e-9)
	assert.InDelta(t, 10, cam.Position.Len(), 1e-9)
}

func TestOrbit_PolarClamped(t *testing.T) {
	cam := scene.DefaultCamera(width, height)
	o := NewOrbit(cam)

	o.Drag(0, 10*height)
	assert.Greater(t, o.Polar(), 0.0)
	assert.Greater(t, cam.Position.Y(), 9.99, "camera stops just short of the pole")

	o.Drag(0, -10*height)
	assert.Less(t, o.Polar(), math.Pi)
	assert.Less(t, cam.Position.Y(), -9.99)
}

func TestOrbit_AutoRotate(t *testing.T) {
	cam := scene.DefaultCamera(width, height)
	o := NewOrbit(cam)

	o.Tick(1)
	assert.InDelta(t, 10, cam.Position.Z(), 1e-12, "auto-rotate is off by default")

	o.AutoRotate = true
	o.AutoRotateSpeed = 90
	o.Tick(1)
	assert.InDelta(t, 10, cam.Position.X(), 1e-9)
}

func TestOrbit_IsCameraControl(t *testing.T) {
	var _ CameraControl = NewOrbit(scene.DefaultCamera(width, height))
}
