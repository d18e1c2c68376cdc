// Package scene holds the waypoint markers placed on the globe and the
// geometry used to pick them.
package scene

import (
	"math"
	"sync"

	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// DefaultHitRadius bounds a marker cone of radius 0.1 and height 0.8.
const DefaultHitRadius = 0.42

// markerAxis is the cone's apex direction in marker space.
var markerAxis = mgl64.Vec3{0, 1, 0}

// Marker is one rendered waypoint.
type Marker struct {
	ID          string
	Label       string
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Color       colorful.Color
	HitRadius   float64
}

// Axis returns the direction the cone apex points in world space.
func (m Marker) Axis() mgl64.Vec3 {
	return m.Orientation.Rotate(markerAxis)
}

// Hex returns the marker color as #rrggbb.
func (m Marker) Hex() string {
	return m.Color.Hex()
}

// Group is the parent node of all waypoint markers.
type Group struct {
	mu      sync.RWMutex
	markers []Marker
	byID    map[string]int
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{byID: map[string]int{}}
}

func (g *Group) replace(ms []Marker) {
	byID := make(map[string]int, len(ms))
	for i, m := range ms {
		byID[m.ID] = i
	}
	g.mu.Lock()
	g.markers = ms
	g.byID = byID
	g.mu.Unlock()
}

// Len returns the number of markers.
func (g *Group) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.markers)
}

// Markers returns a copy of every marker.
func (g *Group) Markers() []Marker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Marker, len(g.markers))
	copy(out, g.markers)
	return out
}

// Get returns the marker tagged with id.
func (g *Group) Get(id string) (Marker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.byID[id]
	if !ok {
		return Marker{}, false
	}
	return g.markers[i], true
}

// Pick returns the nearest marker whose bounding sphere r crosses.
func (g *Group) Pick(r Ray) (Marker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	best := math.Inf(1)
	var hit Marker
	found := false
	for _, m := range g.markers {
		t, ok := intersectSphere(r, m.Position, m.HitRadius)
		if ok && t < best {
			best, hit, found = t, m, true
		}
	}
	return hit, found
}

// Projector turns snapshots into markers. It is the only writer of its group.
type Projector struct {
	group     *Group
	center    mgl64.Vec3
	hitRadius float64
}

// NewProjector creates a projector writing into group, with markers
// pointing at the origin.
func NewProjector(group *Group) *Projector {
	return &Projector{group: group, hitRadius: DefaultHitRadius}
}

// Group returns the projector's marker group.
func (p *Projector) Group() *Group { return p.group }

// Render replaces every marker with one per waypoint.
func (p *Projector) Render(wps []core.Waypoint) {
	ms := make([]Marker, 0, len(wps))
	for _, wp := range wps {
		pos := wp.Position.Vec()
		ms = append(ms, Marker{
			ID:          wp.ID,
			Label:       wp.DisplayLabel(),
			Position:    pos,
			Orientation: orientToward(pos, p.center),
			Color:       ParseColor(wp.Color),
			HitRadius:   p.hitRadius,
		})
	}
	p.group.replace(ms)
}

// Release removes every marker.
func (p *Projector) Release() {
	p.group.replace(nil)
}

// orientToward rotates the marker axis onto the direction from pos to target.
func orientToward(pos, target mgl64.Vec3) mgl64.Quat {
	dir := target.Sub(pos)
	if dir.Len() < 1e-12 {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatBetweenVectors(markerAxis, dir.Normalize())
}

// ParseColor reads a #rrggbb or #rgb color, falling back to
// core.DefaultColor when s is empty or malformed.
func ParseColor(s string) colorful.Color {
	if c, err := colorful.Hex(s); err == nil {
		return c
	}
	c, _ := colorful.Hex(core.DefaultColor)
	return c
}
