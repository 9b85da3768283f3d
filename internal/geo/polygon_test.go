package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// triangle is the reference polygon used across the geofence tests.
var triangle = []GeoPoint{
	{Latitude: 1.3521, Longitude: 103.8198},
	{Latitude: 1.3541, Longitude: 103.8218},
	{Latitude: 1.3501, Longitude: 103.8238},
}

func TestPointInPolygon_Square(t *testing.T) {
	t.Parallel()

	square := []GeoPoint{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 0},
	}

	assert.True(t, PointInPolygon(GeoPoint{Latitude: 5, Longitude: 5}, square))
	assert.True(t, PointInPolygon(GeoPoint{Latitude: 0.5, Longitude: 9.5}, square))
	assert.False(t, PointInPolygon(GeoPoint{Latitude: 15, Longitude: 5}, square))
	assert.False(t, PointInPolygon(GeoPoint{Latitude: 5, Longitude: -1}, square))
}

func TestPointInPolygon_ClosedRingIsImplied(t *testing.T) {
	t.Parallel()

	open := triangle
	closed := append(append([]GeoPoint{}, triangle...), triangle[0])
	probes := []GeoPoint{
		{Latitude: 1.3525, Longitude: 103.8220},
		{Latitude: 1.3600, Longitude: 103.9000},
		{Latitude: 1.3521, Longitude: 103.8218},
	}

	for _, p := range probes {
		assert.Equal(t, PointInPolygon(p, open), PointInPolygon(p, closed), "probe %v", p)
	}
}

func TestPointInPolygon_ReferenceTriangle(t *testing.T) {
	t.Parallel()

	assert.True(t, PointInPolygon(GeoPoint{Latitude: 1.3525, Longitude: 103.8220}, triangle))
	assert.True(t, PointInPolygon(GeoPoint{Latitude: 1.3521, Longitude: 103.8218}, triangle))
	assert.False(t, PointInPolygon(GeoPoint{Latitude: 1.3600, Longitude: 103.9000}, triangle))
}

// A probe sitting exactly on the first vertex: the horizontal edge test
// produces no crossing, so the vertex evaluates outside.
func TestPointInPolygon_VertexIsStableAndOutside(t *testing.T) {
	t.Parallel()

	vertex := triangle[0]
	first := PointInPolygon(vertex, triangle)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, PointInPolygon(vertex, triangle))
	}
	assert.False(t, first)
}

func TestPointInPolygon_AxisConvention(t *testing.T) {
	t.Parallel()

	// A thin band that spans latitudes 0..1 and longitudes 0..50.
	band := []GeoPoint{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 50},
		{Latitude: 1, Longitude: 50},
		{Latitude: 1, Longitude: 0},
	}
	assert.True(t, PointInPolygon(GeoPoint{Latitude: 0.5, Longitude: 25}, band))
	// Swapping the axes of the probe must fall outside.
	assert.False(t, PointInPolygon(GeoPoint{Latitude: 25, Longitude: 0.5}, band))
}

func TestPointInPolygon_DegenerateInput(t *testing.T) {
	t.Parallel()

	withDuplicates := []GeoPoint{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 10},
		{Latitude: 10, Longitude: 0},
	}
	assert.True(t, PointInPolygon(GeoPoint{Latitude: 5, Longitude: 5}, withDuplicates))

	assert.False(t, PointInPolygon(GeoPoint{Latitude: 1, Longitude: 1}, nil))
	assert.NotPanics(t, func() {
		PointInPolygon(GeoPoint{}, []GeoPoint{{Latitude: 1, Longitude: 1}, {Latitude: 1, Longitude: 1}})
	})
}
