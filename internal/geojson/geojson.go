// Package geojson exports waypoints as GeoJSON feature collections.
package geojson

import (
	"fmt"
	"strings"
	"time"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// CRS identifies the coordinate reference system of exported points.
type CRS string

const (
	CRS4326 CRS = "4326"
	CRS3857 CRS = "3857"
)

// Web mercator is undefined at the poles.
const mercatorMaxLat = 85.05112878

// ParseCRS accepts "4326", "3857" and their EPSG-prefixed forms. An empty
// string is EPSG:4326.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "EPSG:")
	switch s {
	case "", string(CRS4326):
		return CRS4326, nil
	case string(CRS3857):
		return CRS3857, nil
	}
	return "", fmt.Errorf("unsupported crs %q", s)
}

// FeatureCollection builds one Point feature per waypoint.
func FeatureCollection(wps []core.Waypoint, crs CRS) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for _, wp := range wps {
		pt, err := project(wp.Coords, crs)
		if err != nil {
			return nil, fmt.Errorf("waypoint %s: %w", wp.ID, err)
		}
		f := geojson.NewFeature(pt)
		f.ID = wp.ID
		f.Properties["id"] = wp.ID
		f.Properties["label"] = wp.DisplayLabel()
		f.Properties["color"] = wp.Color
		f.Properties["createdBy"] = wp.CreatedBy
		if !wp.CreatedAt.IsZero() {
			f.Properties["createdAt"] = wp.CreatedAt.UTC().Format(time.RFC3339)
		}
		fc.Append(f)
	}
	if crs != CRS4326 {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]any{
				"type":       "name",
				"properties": map[string]any{"name": "urn:ogc:def:crs:EPSG::" + string(crs)},
			},
		}
	}
	return fc, nil
}

// Marshal renders the collection as JSON.
func Marshal(wps []core.Waypoint, crs CRS) ([]byte, error) {
	fc, err := FeatureCollection(wps, crs)
	if err != nil {
		return nil, err
	}
	return fc.MarshalJSON()
}

func project(c core.LatLon, crs CRS) (orb.Point, error) {
	switch crs {
	case CRS4326:
		if err := geo.ValidateLatLon(c.Lat, c.Lon); err != nil {
			return orb.Point{}, err
		}
		return orb.Point{c.Lon, c.Lat}, nil
	case CRS3857:
		lat := max(-mercatorMaxLat, min(mercatorMaxLat, c.Lat))
		p, err := geo.Coords3857From4326(c.Lon, lat)
		if err != nil {
			return orb.Point{}, err
		}
		xy, ok := p.XY()
		if !ok {
			return orb.Point{}, geo.ErrInvalidCoordinates
		}
		return orb.Point{xy.X, xy.Y}, nil
	}
	return orb.Point{}, fmt.Errorf("unsupported crs %q", crs)
}
