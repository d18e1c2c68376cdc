// Package core holds the shared waypoint types exchanged between stores,
// the hub and clients.
package core

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// DefaultColor is the accent color given to new waypoints and used
	// whenever a stored color is missing or unreadable.
	DefaultColor = "#f5a623"

	// UnnamedLabel is shown for documents that carry no label.
	UnnamedLabel = "WP-????"
)

// ErrEmptyPatch is returned when an update carries no fields.
var ErrEmptyPatch = errors.New("waypoint patch has no fields")

// Vec3 is a point in the globe's local space.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec converts to a mathgl vector.
func (v Vec3) Vec() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// FromVec converts a mathgl vector.
func FromVec(v mgl64.Vec3) Vec3 {
	return Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// LatLon is a geographic coordinate in degrees.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c LatLon) String() string {
	return fmt.Sprintf("[%.2f, %.2f]", c.Lat, c.Lon)
}

// Waypoint is a user-created marker anchored to a point on the globe.
// Position and Coords describe the same point and are fixed at creation.
type Waypoint struct {
	ID        string    `json:"id,omitempty"`
	Label     string    `json:"label"`
	Position  Vec3      `json:"position"`
	Coords    LatLon    `json:"coords"`
	Color     string    `json:"color"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// DisplayLabel returns the label, or UnnamedLabel when it is empty.
func (w Waypoint) DisplayLabel() string {
	if w.Label == "" {
		return UnnamedLabel
	}
	return w.Label
}

// DefaultLabel derives the placeholder label for a waypoint created at t:
// "WP-" followed by the last four digits of the epoch milliseconds.
func DefaultLabel(t time.Time) string {
	return fmt.Sprintf("WP-%04d", t.UnixMilli()%10000)
}

// WaypointPatch is a partial update. Only label and color are mutable.
type WaypointPatch struct {
	Label *string `json:"label,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Validate rejects patches that change nothing.
func (p WaypointPatch) Validate() error {
	if p.Label == nil && p.Color == nil {
		return ErrEmptyPatch
	}
	return nil
}

// Apply returns w with the patch merged in.
func (p WaypointPatch) Apply(w Waypoint) Waypoint {
	if p.Label != nil {
		w.Label = *p.Label
	}
	if p.Color != nil {
		w.Color = *p.Color
	}
	return w
}

// LabelPatch builds a patch that only changes the label.
func LabelPatch(label string) WaypointPatch {
	return WaypointPatch{Label: &label}
}

// ColorPatch builds a patch that only changes the color.
func ColorPatch(color string) WaypointPatch {
	return WaypointPatch{Color: &color}
}

// SortWaypoints orders a snapshot newest first, ties broken by id.
func SortWaypoints(wps []Waypoint) {
	sort.SliceStable(wps, func(i, j int) bool {
		if !wps[i].CreatedAt.Equal(wps[j].CreatedAt) {
			return wps[i].CreatedAt.After(wps[j].CreatedAt)
		}
		return wps[i].ID < wps[j].ID
	})
}

// CloneWaypoints copies a snapshot so receivers can't alias each other.
func CloneWaypoints(wps []Waypoint) []Waypoint {
	out := make([]Waypoint, len(wps))
	copy(out, wps)
	return out
}
