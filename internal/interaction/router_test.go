package interaction

import (
	"errors"
	"testing"

	"github.com/c3i/globe/internal/scene"
	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	width  = 800
	height = 600
	cx     = width / 2
	cy     = height / 2
)

type recordingControl struct {
	deltas [][2]float64
}

func (c *recordingControl) Drag(dx, dy float64) {
	c.deltas = append(c.deltas, [2]float64{dx, dy})
}

type harness struct {
	router   *Router
	control  *recordingControl
	selected []string
	created  []mgl64.Vec3
}

func newHarness(t *testing.T, markers ...core.Waypoint) *harness {
	t.Helper()
	group := scene.NewGroup()
	scene.NewProjector(group).Render(markers)

	h := &harness{control: &recordingControl{}}
	h.router = NewRouter(Config{
		Camera:   scene.DefaultCamera(width, height),
		Control:  h.control,
		Markers:  group,
		Globe:    scene.Globe{Radius: 5},
		OnSelect: func(id string) { h.selected = append(h.selected, id) },
		OnCreate: func(hit mgl64.Vec3) { h.created = append(h.created, hit) },
	})
	return h
}

func (h *harness) click(x, y float64, b Button) {
	h.router.PointerDown(PointerEvent{X: x, Y: y, Button: b})
	h.router.PointerUp(PointerEvent{X: x, Y: y, Button: b})
}

func facingMarker() core.Waypoint {
	return core.Waypoint{ID: "front", Position: core.Vec3{Z: 5}}
}

func TestPrimaryClick_SelectsMarker(t *testing.T) {
	h := newHarness(t, facingMarker())
	h.click(cx, cy, ButtonPrimary)

	assert.Equal(t, []string{"front"}, h.selected)
	assert.Empty(t, h.created)
	assert.Equal(t, StateIdle, h.router.State())
}

func TestPrimaryClick_OnBareSurfaceDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.click(cx, cy, ButtonPrimary)

	assert.Empty(t, h.selected)
	assert.Empty(t, h.created, "primary click never creates")
}

func TestSecondaryClick_CreatesOnSurface(t *testing.T) {
	h := newHarness(t, facingMarker())
	h.click(cx, cy, ButtonSecondary)

	require.Len(t, h.created, 1)
	assert.InDelta(t, 0, h.created[0].X(), 1e-6)
	assert.InDelta(t, 0, h.created[0].Y(), 1e-6)
	assert.InDelta(t, 5, h.created[0].Z(), 1e-6)
	assert.Empty(t, h.selected, "secondary click tests the sphere only")
}

func TestSecondaryClick_MissingGlobeDoesNothing(t *testing.T) {
	h := newHarness(t)
	h.click(0, 0, ButtonSecondary)
	assert.Empty(t, h.created)
}

func TestDrag_SuppressesClick(t *testing.T) {
	for _, b := range []Button{ButtonPrimary, ButtonSecondary} {
		h := newHarness(t, facingMarker())

		h.router.PointerDown(PointerEvent{X: cx, Y: cy, Button: b})
		h.router.PointerMove(PointerEvent{X: cx + 20, Y: cy, Button: b})
		assert.Equal(t, StateDragging, h.router.State())
		h.router.PointerMove(PointerEvent{X: cx, Y: cy, Button: b})
		// released back over the marker
		h.router.PointerUp(PointerEvent{X: cx, Y: cy, Button: b})

		assert.Empty(t, h.selected)
		assert.Empty(t, h.created)
		assert.Equal(t, [][2]float64{{20, 0}, {-20, 0}}, h.control.deltas)
		assert.Equal(t, StateIdle, h.router.State())
	}
}

func TestSmallMovementIsStillAClick(t *testing.T) {
	h := newHarness(t, facingMarker())

	h.router.PointerDown(PointerEvent{X: cx, Y: cy})
	h.router.PointerMove(PointerEvent{X: cx + 3, Y: cy + 3})
	assert.Equal(t, StatePressed, h.router.State())
	h.router.PointerUp(PointerEvent{X: cx + 3, Y: cy + 3})

	assert.Equal(t, []string{"front"}, h.selected)
	assert.Empty(t, h.control.deltas)
}

func TestMoveWithoutPressIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.router.PointerMove(PointerEvent{X: 10, Y: 10})
	h.router.PointerUp(PointerEvent{X: 10, Y: 10})
	assert.Equal(t, StateIdle, h.router.State())
	assert.Empty(t, h.control.deltas)
	assert.Empty(t, h.created)
}

func TestContextMenuSuppressed(t *testing.T) {
	assert.True(t, newHarness(t).router.ContextMenu())
}

type brokenCamera struct{}

func (brokenCamera) Ray(float64, float64) (scene.Ray, error) {
	return scene.Ray{}, errors.New("singular matrix")
}

func TestRayFailureIsNoOp(t *testing.T) {
	called := false
	r := NewRouter(Config{
		Camera:   brokenCamera{},
		Globe:    scene.Globe{Radius: 5},
		Markers:  scene.NewGroup(),
		OnSelect: func(string) { called = true },
		OnCreate: func(mgl64.Vec3) { called = true },
	})
	r.PointerDown(PointerEvent{Button: ButtonSecondary})
	r.PointerUp(PointerEvent{Button: ButtonSecondary})
	r.PointerDown(PointerEvent{})
	r.PointerUp(PointerEvent{})
	assert.False(t, called)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pressed", StatePressed.String())
	assert.Equal(t, "dragging", StateDragging.String())
}
