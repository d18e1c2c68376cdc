package geo

import (
	"math"

	"github.com/c3i/globe/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// The globe is a sphere centred on the origin with +Y pointing at the north
// pole. Every stored waypoint position is relative to this convention.

// PointToLatLon converts a point on a sphere of the given radius to degrees.
func PointToLatLon(p mgl64.Vec3, radius float64) core.LatLon {
	ratio := mgl64.Clamp(p[1]/radius, -1, 1)
	lat := 90 - mgl64.RadToDeg(math.Acos(ratio))
	lon := math.Mod(270+mgl64.RadToDeg(math.Atan2(p[0], p[2])), 360) - 180
	return core.LatLon{Lat: lat, Lon: lon}
}

// LatLonToPoint is the inverse of PointToLatLon.
func LatLonToPoint(lat, lon, radius float64) mgl64.Vec3 {
	phi := mgl64.DegToRad(90 - lat)
	theta := mgl64.DegToRad(lon)
	return mgl64.Vec3{
		-radius * math.Sin(phi) * math.Cos(theta),
		radius * math.Cos(phi),
		radius * math.Sin(phi) * math.Sin(theta),
	}
}
