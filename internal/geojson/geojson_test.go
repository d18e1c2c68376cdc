package geojson

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []core.Waypoint {
	return []core.Waypoint{
		{
			ID:        "a",
			Label:     "Rally",
			Coords:    core.LatLon{Lat: 10, Lon: 20},
			Color:     "#ff0000",
			CreatedBy: "user-1",
			CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		{ID: "b", Coords: core.LatLon{Lat: 90, Lon: 0}, Color: core.DefaultColor},
	}
}

func TestParseCRS(t *testing.T) {
	tests := []struct {
		in      string
		want    CRS
		wantErr bool
	}{
		{"", CRS4326, false},
		{"4326", CRS4326, false},
		{"EPSG:3857", CRS3857, false},
		{"epsg:3857", CRS3857, false},
		{"27700", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCRS(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeatureCollection_4326(t *testing.T) {
	fc, err := FeatureCollection(sample(), CRS4326)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	f := fc.Features[0]
	assert.Equal(t, orb.Point{20, 10}, f.Geometry)
	assert.Equal(t, "a", f.ID)
	assert.Equal(t, "Rally", f.Properties["label"])
	assert.Equal(t, "#ff0000", f.Properties["color"])
	assert.Equal(t, "2024-05-01T12:00:00Z", f.Properties["createdAt"])
	assert.Nil(t, fc.ExtraMembers)

	assert.Equal(t, core.UnnamedLabel, fc.Features[1].Properties["label"])
	_, hasCreatedAt := fc.Features[1].Properties["createdAt"]
	assert.False(t, hasCreatedAt)
}

func TestFeatureCollection_3857(t *testing.T) {
	fc, err := FeatureCollection(sample(), CRS3857)
	require.NoError(t, err)

	want, err := geo.Coords3857From4326(20, 10)
	require.NoError(t, err)
	xy, _ := want.XY()
	got := fc.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, xy.X, got[0], 1e-6)
	assert.InDelta(t, xy.Y, got[1], 1e-6)

	pole := fc.Features[1].Geometry.(orb.Point)
	assert.False(t, math.IsInf(pole[1], 0), "poles are clamped")
	assert.NotNil(t, fc.ExtraMembers["crs"])
}

func TestFeatureCollection_InvalidCoords(t *testing.T) {
	_, err := FeatureCollection([]core.Waypoint{{ID: "x", Coords: core.LatLon{Lat: 120}}}, CRS4326)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)
}

func TestMarshal(t *testing.T) {
	data, err := Marshal(sample(), CRS4326)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "FeatureCollection", raw["type"])
}
