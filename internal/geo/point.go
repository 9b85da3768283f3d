// Package geo holds the spherical-earth primitives used by geofence matching.
package geo

import (
	"fmt"
	"math"
)

// GeoPoint is a WGS-84 coordinate in degrees. No datum conversion is applied.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CoordinateError names the axis of a point that failed validation.
type CoordinateError struct {
	Axis   string // "latitude" or "longitude"
	Reason string
}

func (e *CoordinateError) Error() string {
	return fmt.Sprintf("%s %s", e.Axis, e.Reason)
}

// Validate checks that both coordinates are finite and within range.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsInf(p.Latitude, 0) {
		return &CoordinateError{Axis: "latitude", Reason: "must be a finite number"}
	}
	if math.IsNaN(p.Longitude) || math.IsInf(p.Longitude, 0) {
		return &CoordinateError{Axis: "longitude", Reason: "must be a finite number"}
	}
	if p.Latitude < -90 || p.Latitude > 90 {
		return &CoordinateError{Axis: "latitude", Reason: "must be between -90 and 90"}
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return &CoordinateError{Axis: "longitude", Reason: "must be between -180 and 180"}
	}
	return nil
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}
