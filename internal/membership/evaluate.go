// Package membership classifies device locations against a geofence shape.
package membership

import (
	"time"

	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
)

// Classification of a device relative to a geofence.
type Classification string

const (
	Inside  Classification = "INSIDE"
	Outside Classification = "OUTSIDE"
	Unknown Classification = "UNKNOWN"
)

// Flag renders the classification the way verify-device responses report
// it: "TRUE", "FALSE" or "UNKNOWN".
func (c Classification) Flag() string {
	switch c {
	case Inside:
		return "TRUE"
	case Outside:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

// DeviceLocation is the latest known position of a device. Location is nil
// when the device has never reported.
type DeviceLocation struct {
	DeviceID string
	Location *geo.GeoPoint
	LastSeen *time.Time
}

// Result is the classification of one device.
type Result struct {
	DeviceID       string
	Classification Classification
	Location       *geo.GeoPoint
	LastSeen       *time.Time
}

// Evaluate classifies each device against shape, one result per input in the
// same order. A missing or invalid location is UNKNOWN.
func Evaluate(shape geofence.Shape, devices []DeviceLocation) []Result {
	out := make([]Result, len(devices))
	for i, d := range devices {
		r := Result{DeviceID: d.DeviceID, Classification: Unknown, LastSeen: d.LastSeen}
		if d.Location != nil && d.Location.Validate() == nil {
			loc := *d.Location
			r.Location = &loc
			if shape.Contains(loc) {
				r.Classification = Inside
			} else {
				r.Classification = Outside
			}
		}
		out[i] = r
	}
	return out
}
