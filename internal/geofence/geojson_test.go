package geofence_test

import (
	"encoding/json"
	"testing"

	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type geometryDoc struct {
	Type        string         `json:"type"`
	Coordinates [][][2]float64 `json:"coordinates"`
}

func TestGeoJSON_Polygon(t *testing.T) {
	t.Parallel()

	p := mustPolygon(t,
		geo.GeoPoint{Latitude: 1, Longitude: 10},
		geo.GeoPoint{Latitude: 2, Longitude: 10},
		geo.GeoPoint{Latitude: 2, Longitude: 11},
	)
	f, err := geofence.GeoJSON("gf-1", p, map[string]interface{}{"name": "depot"})
	require.NoError(t, err)

	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "gf-1", f.ID)
	assert.Equal(t, "depot", f.Properties["name"])
	assert.Equal(t, "POLYGON", f.Properties["geofenceType"])

	var g geometryDoc
	require.NoError(t, json.Unmarshal(f.Geometry, &g))
	assert.Equal(t, "Polygon", g.Type)
	require.Len(t, g.Coordinates, 1)
	ring := g.Coordinates[0]
	require.Len(t, ring, 4)
	// positions are [lon, lat] and the ring is closed
	assert.Equal(t, [2]float64{10, 1}, ring[0])
	assert.Equal(t, ring[0], ring[3])
}

func TestGeoJSON_CircleRingStaysOnRadius(t *testing.T) {
	t.Parallel()

	c := mustCircle(t, singapore, 1000)
	f, err := geofence.GeoJSON("gf-2", c, nil)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, f.Properties["radius"])

	var g geometryDoc
	require.NoError(t, json.Unmarshal(f.Geometry, &g))
	ring := g.Coordinates[0]
	require.Len(t, ring, geofence.CircleSegments+1)
	for _, pos := range ring {
		d := geo.HaversineDistance(singapore, geo.GeoPoint{Latitude: pos[1], Longitude: pos[0]})
		assert.InDelta(t, 1000, d, 0.5)
	}
}
