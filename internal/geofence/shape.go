// Package geofence models geofence boundaries (circle or polygon) and the
// geometric questions asked of them: does it contain a point, does it cover a
// cell sector.
package geofence

import (
	"errors"
	"fmt"
	"math"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
)

// Kind identifies the shape variant. The values match the persisted
// geofence_type column and the "type" field of API payloads.
type Kind string

const (
	KindCircle  Kind = "CIRCLE"
	KindPolygon Kind = "POLYGON"
)

// Overlap classifies how a sector relates to a shape.
type Overlap int

const (
	OverlapNone Overlap = iota
	OverlapFull
	// OverlapPartial is reserved for boundary-straddling coverage. No shape
	// produces it yet.
	OverlapPartial
)

func (o Overlap) String() string {
	switch o {
	case OverlapFull:
		return "FULL"
	case OverlapPartial:
		return "PARTIAL"
	default:
		return "NONE"
	}
}

// Shape is the closed set of geofence boundaries: Circle and Polygon.
// Implementations are immutable and safe for concurrent use.
type Shape interface {
	Kind() Kind
	Contains(p geo.GeoPoint) bool
	OverlapsSector(s sectors.Sector) Overlap
	sealed()
}

// Circle is a center point plus a radius in meters.
type Circle struct {
	Center       geo.GeoPoint
	RadiusMeters float64
}

// NewCircle validates the center and radius.
func NewCircle(center geo.GeoPoint, radiusMeters float64) (Circle, error) {
	if err := validatePoint("shape.center", center); err != nil {
		return Circle{}, err
	}
	if math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return Circle{}, apperr.Invalid("shape.radius", "must be a finite number")
	}
	if radiusMeters <= 0 {
		return Circle{}, apperr.Invalid("shape.radius", "must be greater than 0")
	}
	return Circle{Center: center, RadiusMeters: radiusMeters}, nil
}

func (Circle) Kind() Kind { return KindCircle }
func (Circle) sealed()    {}

// Contains reports whether p is within RadiusMeters of the center. The
// center itself is always inside.
func (c Circle) Contains(p geo.GeoPoint) bool {
	return geo.HaversineDistance(c.Center, p) <= c.RadiusMeters
}

// OverlapsSector is FULL when the sector's coverage disc touches the circle,
// i.e. the center distance is at most radius + coverage radius.
func (c Circle) OverlapsSector(s sectors.Sector) Overlap {
	if geo.HaversineDistance(c.Center, s.Location) <= c.RadiusMeters+s.CoverageRadiusMeters {
		return OverlapFull
	}
	return OverlapNone
}

// Polygon is an implicitly closed ring of at least three vertices. Self
// intersection is not checked.
type Polygon struct {
	vertices []geo.GeoPoint
}

// NewPolygon validates and copies the vertices.
func NewPolygon(vertices []geo.GeoPoint) (Polygon, error) {
	if len(vertices) < 3 {
		return Polygon{}, apperr.Invalid("shape.coordinates", "polygon must have at least 3 points, got %d", len(vertices))
	}
	for i, v := range vertices {
		if err := validatePoint(fmt.Sprintf("shape.coordinates[%d]", i), v); err != nil {
			return Polygon{}, err
		}
	}
	owned := make([]geo.GeoPoint, len(vertices))
	copy(owned, vertices)
	return Polygon{vertices: owned}, nil
}

func (Polygon) Kind() Kind { return KindPolygon }
func (Polygon) sealed()    {}

// Vertices returns a copy of the ring in order.
func (p Polygon) Vertices() []geo.GeoPoint {
	out := make([]geo.GeoPoint, len(p.vertices))
	copy(out, p.vertices)
	return out
}

func (p Polygon) Contains(pt geo.GeoPoint) bool {
	return geo.PointInPolygon(pt, p.vertices)
}

// OverlapsSector only tests the sector's location; the coverage radius is
// ignored for polygons.
func (p Polygon) OverlapsSector(s sectors.Sector) Overlap {
	if geo.PointInPolygon(s.Location, p.vertices) {
		return OverlapFull
	}
	return OverlapNone
}

func validatePoint(field string, p geo.GeoPoint) error {
	err := p.Validate()
	if err == nil {
		return nil
	}
	var ce *geo.CoordinateError
	if errors.As(err, &ce) {
		return apperr.Invalid(field+"."+ce.Axis, "%s", ce.Reason)
	}
	return apperr.Invalid(field, "%v", err)
}
