package geo

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

const tolerance = 1e-6

// lonDiff measures the signed angular distance so that 180 and -180 compare equal.
func lonDiff(a, b float64) float64 {
	return math.Mod(a-b+540, 360) - 180
}

func TestRoundTrip(t *testing.T) {
	for _, r := range []float64{1, 5, 100} {
		for lat := -90.0; lat <= 90; lat += 5 {
			for lon := -175.0; lon <= 180; lon += 5 {
				got := PointToLatLon(LatLonToPoint(lat, lon, r), r)

				if math.Abs(got.Lat-lat) > tolerance {
					t.Fatalf("r=%v lat=%v lon=%v: got lat %v", r, lat, lon, got.Lat)
				}
				// longitude is undefined at the poles
				if math.Abs(lat) == 90 {
					continue
				}
				if d := lonDiff(got.Lon, lon); math.Abs(d) > tolerance {
					t.Fatalf("r=%v lat=%v lon=%v: got lon %v", r, lat, lon, got.Lon)
				}
			}
		}
	}
}

func TestLatLonToPoint_OnSphere(t *testing.T) {
	for _, c := range [][2]float64{{0, 0}, {45, 90}, {-30, -120}, {89, 179}} {
		p := LatLonToPoint(c[0], c[1], 5)
		assert.InDelta(t, 5, p.Len(), tolerance)
	}
}

func TestPointToLatLon_Axes(t *testing.T) {
	north := PointToLatLon(mgl64.Vec3{0, 5, 0}, 5)
	assert.InDelta(t, 90, north.Lat, tolerance)

	south := PointToLatLon(mgl64.Vec3{0, -5, 0}, 5)
	assert.InDelta(t, -90, south.Lat, tolerance)

	// +Z sits on the equator at longitude 90, +X at longitude 180.
	z := PointToLatLon(mgl64.Vec3{0, 0, 5}, 5)
	assert.InDelta(t, 0, z.Lat, tolerance)
	assert.InDelta(t, 90, z.Lon, tolerance)

	x := PointToLatLon(mgl64.Vec3{5, 0, 0}, 5)
	assert.InDelta(t, 0, lonDiff(x.Lon, 180), tolerance)

	negX := PointToLatLon(mgl64.Vec3{-5, 0, 0}, 5)
	assert.InDelta(t, 0, negX.Lon, tolerance)
}

func TestPointToLatLon_ClampsOffSurface(t *testing.T) {
	// slightly outside the sphere must not yield NaN
	got := PointToLatLon(mgl64.Vec3{0, 5.0000001, 0}, 5)
	assert.False(t, math.IsNaN(got.Lat))
	assert.InDelta(t, 90, got.Lat, tolerance)
}
