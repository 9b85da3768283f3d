package geofence

import (
	"fmt"
	"strings"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/geo"
)

// PointPayload is a coordinate as submitted by clients. Pointers let the
// parser tell a missing coordinate from 0.
type PointPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ShapePayload is the loosely typed "shape" object of geofence requests:
// circles carry center+radius, polygons carry coordinates.
type ShapePayload struct {
	Type        string         `json:"type,omitempty"`
	Center      *PointPayload  `json:"center,omitempty"`
	Radius      *float64       `json:"radius,omitempty"`
	Coordinates []PointPayload `json:"coordinates,omitempty"`
}

// Empty reports whether no shape data was submitted at all.
func (p ShapePayload) Empty() bool {
	return p.Type == "" && p.Center == nil && p.Radius == nil && p.Coordinates == nil
}

// ParseKind normalises a geofence type string.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case KindCircle:
		return KindCircle, nil
	case KindPolygon:
		return KindPolygon, nil
	case "":
		return "", apperr.Invalid("type", "is required")
	default:
		return "", apperr.Invalid("type", "unsupported geofence type %q", s)
	}
}

// Parse builds a validated Shape. kind is the request's top-level type; when
// empty, payload.Type is used instead.
func Parse(kind string, payload ShapePayload) (Shape, error) {
	if kind == "" {
		kind = payload.Type
	}
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}

	switch k {
	case KindCircle:
		if payload.Center == nil {
			return nil, apperr.Invalid("shape.center", "is required")
		}
		center, err := payload.Center.point("shape.center")
		if err != nil {
			return nil, err
		}
		if payload.Radius == nil {
			return nil, apperr.Invalid("shape.radius", "is required")
		}
		return NewCircle(center, *payload.Radius)

	default:
		if payload.Coordinates == nil {
			return nil, apperr.Invalid("shape.coordinates", "is required")
		}
		vertices := make([]geo.GeoPoint, 0, len(payload.Coordinates))
		for i, c := range payload.Coordinates {
			p, err := c.point(fmt.Sprintf("shape.coordinates[%d]", i))
			if err != nil {
				return nil, err
			}
			vertices = append(vertices, p)
		}
		return NewPolygon(vertices)
	}
}

// ToPayload renders a Shape back into its API form.
func ToPayload(s Shape) ShapePayload {
	switch v := s.(type) {
	case Circle:
		r := v.RadiusMeters
		return ShapePayload{
			Type:   string(KindCircle),
			Center: pointPayload(v.Center),
			Radius: &r,
		}
	case Polygon:
		coords := make([]PointPayload, 0, len(v.vertices))
		for _, p := range v.vertices {
			coords = append(coords, *pointPayload(p))
		}
		return ShapePayload{Type: string(KindPolygon), Coordinates: coords}
	default:
		return ShapePayload{}
	}
}

func (p PointPayload) point(field string) (geo.GeoPoint, error) {
	if p.Latitude == nil {
		return geo.GeoPoint{}, apperr.Invalid(field+".latitude", "is required")
	}
	if p.Longitude == nil {
		return geo.GeoPoint{}, apperr.Invalid(field+".longitude", "is required")
	}
	return geo.GeoPoint{Latitude: *p.Latitude, Longitude: *p.Longitude}, nil
}

func pointPayload(p geo.GeoPoint) *PointPayload {
	lat, lng := p.Latitude, p.Longitude
	return &PointPayload{Latitude: &lat, Longitude: &lng}
}
