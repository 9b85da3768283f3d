package geofence

import (
	"encoding/json"
	"fmt"

	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
)

// CircleSegments is the number of ring vertices used to approximate a
// circle when exporting GeoJSON.
const CircleSegments = 64

// Feature is a GeoJSON Feature with a raw geometry member.
type Feature struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// GeoJSON renders s as a Feature. GeoJSON positions are [longitude,
// latitude]; circles become a closed CircleSegments-gon with the center and
// radius kept in properties.
func GeoJSON(id string, s Shape, properties map[string]interface{}) (*Feature, error) {
	props := make(map[string]interface{}, len(properties)+3)
	for k, v := range properties {
		props[k] = v
	}
	props["geofenceType"] = string(s.Kind())

	var ring []geo.GeoPoint
	switch v := s.(type) {
	case Circle:
		ring = make([]geo.GeoPoint, 0, CircleSegments)
		for i := 0; i < CircleSegments; i++ {
			bearing := float64(i) * 360 / CircleSegments
			ring = append(ring, geo.Destination(v.Center, bearing, v.RadiusMeters))
		}
		props["center"] = v.Center
		props["radius"] = v.RadiusMeters
	case Polygon:
		ring = v.Vertices()
	default:
		return nil, fmt.Errorf("geojson: unsupported shape %T", s)
	}

	poly := geojson.NewPolygon(geometry.NewPoly(closeRing(ring), nil, nil))
	return &Feature{
		Type:       "Feature",
		ID:         id,
		Geometry:   json.RawMessage(poly.JSON()),
		Properties: props,
	}, nil
}

func closeRing(ring []geo.GeoPoint) []geometry.Point {
	pts := make([]geometry.Point, 0, len(ring)+1)
	for _, p := range ring {
		pts = append(pts, geometry.Point{X: p.Longitude, Y: p.Latitude})
	}
	if len(pts) > 0 && pts[0] != pts[len(pts)-1] {
		pts = append(pts, pts[0])
	}
	return pts
}
