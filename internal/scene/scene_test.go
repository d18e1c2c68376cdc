package scene

import (
	"sync"
	"testing"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const radius = 5.0

func vecInDelta(t *testing.T, want, got mgl64.Vec3, delta float64) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], delta, "component %d of %v vs %v", i, want, got)
	}
}

func waypointAt(id string, lat, lon float64) core.Waypoint {
	return core.Waypoint{
		ID:       id,
		Label:    "WP-" + id,
		Position: core.FromVec(geo.LatLonToPoint(lat, lon, radius)),
		Coords:   core.LatLon{Lat: lat, Lon: lon},
		Color:    "#00ff00",
	}
}

func TestGlobe_Intersect(t *testing.T) {
	g := Globe{Radius: radius}

	hit, ok := g.Intersect(NewRay(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, -1}))
	require.True(t, ok)
	vecInDelta(t, mgl64.Vec3{0, 0, 5}, hit, 1e-9)

	_, ok = g.Intersect(NewRay(mgl64.Vec3{0, 10, 10}, mgl64.Vec3{0, 0, -1}))
	assert.False(t, ok, "ray passes above the globe")

	_, ok = g.Intersect(NewRay(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, 1}))
	assert.False(t, ok, "globe is behind the ray")

	hit, ok = g.Intersect(NewRay(mgl64.Vec3{}, mgl64.Vec3{1, 0, 0}))
	require.True(t, ok, "from inside, the exit point is returned")
	vecInDelta(t, mgl64.Vec3{5, 0, 0}, hit, 1e-9)
}

func TestProjector_RenderReplacesMarkers(t *testing.T) {
	p := NewProjector(NewGroup())

	p.Render([]core.Waypoint{waypointAt("a", 10, 20), waypointAt("b", -30, 100)})
	require.Equal(t, 2, p.Group().Len())

	p.Render([]core.Waypoint{waypointAt("c", 0, 0)})
	markers := p.Group().Markers()
	require.Len(t, markers, 1)
	assert.Equal(t, "c", markers[0].ID)
	_, ok := p.Group().Get("a")
	assert.False(t, ok)

	p.Release()
	assert.Zero(t, p.Group().Len())
}

func TestProjector_RenderOverlappingSnapshots(t *testing.T) {
	p := NewProjector(NewGroup())

	p.Render([]core.Waypoint{waypointAt("1", 0, 0), waypointAt("2", 10, 10), waypointAt("3", 20, 20)})
	p.Render([]core.Waypoint{waypointAt("2", 10, 10), waypointAt("3", 20, 20), waypointAt("4", 30, 30)})

	ids := map[string]int{}
	for _, m := range p.Group().Markers() {
		ids[m.ID]++
	}
	assert.Equal(t, map[string]int{"2": 1, "3": 1, "4": 1}, ids, "kept waypoints are not duplicated")
}

func TestProjector_RenderIsIdempotent(t *testing.T) {
	p := NewProjector(NewGroup())
	snap := []core.Waypoint{waypointAt("a", 10, 20), waypointAt("b", -30, 100)}

	p.Render(snap)
	first := p.Group().Markers()
	p.Render(snap)

	assert.Equal(t, first, p.Group().Markers())
	assert.Equal(t, 2, p.Group().Len())
}

func TestProjector_MarkerAttributes(t *testing.T) {
	p := NewProjector(NewGroup())
	wp := waypointAt("a", 45, -60)
	unnamed := waypointAt("b", 0, 0)
	unnamed.Label = ""
	unnamed.Color = "not-a-color"
	p.Render([]core.Waypoint{wp, unnamed})

	m, ok := p.Group().Get("a")
	require.True(t, ok)
	assert.Equal(t, wp.Position.Vec(), m.Position, "marker sits exactly at the stored position")
	assert.Equal(t, "#00ff00", m.Hex())
	assert.Equal(t, "WP-a", m.Label)
	assert.Equal(t, DefaultHitRadius, m.HitRadius)

	toCenter := m.Position.Mul(-1).Normalize()
	vecInDelta(t, toCenter, m.Axis(), 1e-9)

	b, _ := p.Group().Get("b")
	assert.Equal(t, core.DefaultColor, b.Hex())
	assert.Equal(t, core.UnnamedLabel, b.Label)
}

func TestProjector_PoleMarkerPointsDown(t *testing.T) {
	p := NewProjector(NewGroup())
	p.Render([]core.Waypoint{waypointAt("n", 90, 0)})
	m, _ := p.Group().Get("n")
	vecInDelta(t, mgl64.Vec3{0, -1, 0}, m.Axis(), 1e-9)
}

func TestParseColor(t *testing.T) {
	assert.Equal(t, "#ff0000", ParseColor("#FF0000").Hex())
	assert.Equal(t, "#ffffff", ParseColor("#fff").Hex())
	assert.Equal(t, core.DefaultColor, ParseColor("").Hex())
	assert.Equal(t, core.DefaultColor, ParseColor("red").Hex())
}

func TestGroup_PickNearest(t *testing.T) {
	p := NewProjector(NewGroup())
	p.Render([]core.Waypoint{
		{ID: "near", Position: core.Vec3{Z: 5}},
		{ID: "far", Position: core.Vec3{Z: -5}},
		{ID: "side", Position: core.Vec3{X: 5}},
	})

	m, ok := p.Group().Pick(NewRay(mgl64.Vec3{0, 0, 10}, mgl64.Vec3{0, 0, -1}))
	require.True(t, ok)
	assert.Equal(t, "near", m.ID)

	m, ok = p.Group().Pick(NewRay(mgl64.Vec3{0, 0, -10}, mgl64.Vec3{0, 0, 1}))
	require.True(t, ok)
	assert.Equal(t, "far", m.ID)

	_, ok = p.Group().Pick(NewRay(mgl64.Vec3{0, 3, 10}, mgl64.Vec3{0, 0, -1}))
	assert.False(t, ok)
}

func TestCamera_RayThroughCenter(t *testing.T) {
	cam := DefaultCamera(800, 600)
	r, err := cam.Ray(400, 300)
	require.NoError(t, err)
	vecInDelta(t, mgl64.Vec3{0, 0, -1}, r.Direction, 1e-6)
	assert.InDelta(t, 10-cam.Near, r.Origin.Z(), 1e-6)

	hit, ok := Globe{Radius: radius}.Intersect(r)
	require.True(t, ok)
	vecInDelta(t, mgl64.Vec3{0, 0, 5}, hit, 1e-6)
}

func TestCamera_RayFollowsPointer(t *testing.T) {
	cam := DefaultCamera(800, 600)

	up, err := cam.Ray(400, 0)
	require.NoError(t, err)
	assert.Greater(t, up.Direction.Y(), 0.0, "top of the viewport looks up")

	right, err := cam.Ray(800, 300)
	require.NoError(t, err)
	assert.Greater(t, right.Direction.X(), 0.0)
}

func TestGroup_ConcurrentReadersDuringRender(t *testing.T) {
	p := NewProjector(NewGroup())
	wps := []core.Waypoint{waypointAt("a", 0, 0), waypointAt("b", 10, 10)}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				n := len(p.Group().Markers())
				assert.True(t, n == 0 || n == 2)
			}
		}()
	}
	for j := 0; j < 200; j++ {
		p.Render(wps)
		p.Release()
	}
	wg.Wait()
}
