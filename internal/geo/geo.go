package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/c3i/globe/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// GEO POINTS
// Waypoints keep their authoritative position in globe space. For spatial
// consumers we additionally store a WGS84 (EPSG:4326) point as WKB, and web
// map exports reproject to EPSG:3857.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ValidateLatLon checks manual coordinate input before it reaches the transform.
func ValidateLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return ErrInvalidCoordinates
	}
	if lat < -90 || lat > 90 {
		return ErrInvalidCoordinates
	}
	if lon < -180 || lon > 180 {
		return ErrInvalidCoordinates
	}
	return nil
}

// NormalizeLon folds -180 onto 180 so stored longitudes stay in (-180, 180].
func NormalizeLon(lon float64) float64 {
	if lon == -180 {
		return 180
	}
	return lon
}

// ParseLatLon parses "lat,lon" into a validated coordinate.
func ParseLatLon(s string) (core.LatLon, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.LatLon{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.LatLon{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.LatLon{}, ErrInvalidCoordinates
	}
	if err := ValidateLatLon(lat, lon); err != nil {
		return core.LatLon{}, err
	}
	return core.LatLon{Lat: lat, Lon: NormalizeLon(lon)}, nil
}

// Point4326 builds a WGS84 point (x = longitude, y = latitude).
func Point4326(c core.LatLon) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: c.Lon, Y: c.Lat},
		},
	)
}

// Coords3857From4326 creates a web mercator point from a longitude and latitude
func Coords3857From4326(
	longitude float64,
	latitude float64,
) (
	point geom.Point,
	err error,
) {
	if err := ValidateLatLon(latitude, longitude); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	point = geom.NewPoint(
		geom.Coordinates{
			XY: geom.XY{X: x, Y: y},
		},
	)
	return point, nil
}
