package membership

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sectorwatch/fleet-backend/internal/geofence"
)

// GeofenceSource resolves a geofence's shape and its registered devices.
// Both return an error wrapping apperr.ErrNotFound for unknown geofences.
type GeofenceSource interface {
	GeofenceShape(ctx context.Context, geofenceID string) (geofence.Shape, error)
	GeofenceDeviceIDs(ctx context.Context, geofenceID string) ([]string, error)
}

// LocationFeed returns the latest location of each requested device that has
// one. Devices without a location may be omitted.
type LocationFeed interface {
	DeviceLocations(ctx context.Context, deviceIDs []string) ([]DeviceLocation, error)
}

// Recorder counts membership classifications.
type Recorder interface {
	ObserveMembership(classification string)
}

// DeviceReport is one entry of a verify-device response.
type DeviceReport struct {
	DeviceID  string     `json:"deviceId"`
	Inside    string     `json:"inside"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	LastSeen  *time.Time `json:"lastSeen"`
}

// Report is the membership of every device registered to a geofence.
type Report struct {
	GeofenceID string         `json:"geofenceId"`
	Devices    []DeviceReport `json:"devices"`
}

// Service answers membership questions for stored geofences.
type Service struct {
	geofences GeofenceSource
	locations LocationFeed
	recorder  Recorder
	tracer    trace.Tracer
}

// NewService wires a Service. recorder may be nil.
func NewService(geofences GeofenceSource, locations LocationFeed, recorder Recorder) *Service {
	return &Service{
		geofences: geofences,
		locations: locations,
		recorder:  recorder,
		tracer:    otel.Tracer("github.com/sectorwatch/fleet-backend/internal/membership"),
	}
}

// EvaluateMembership classifies every device registered to geofenceID, in
// registration order.
func (s *Service) EvaluateMembership(ctx context.Context, geofenceID string) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "membership.Evaluate",
		trace.WithAttributes(attribute.String("geofence.id", geofenceID)))
	defer span.End()

	report, err := s.evaluate(ctx, geofenceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("devices", len(report.Devices)))
	return report, nil
}

func (s *Service) evaluate(ctx context.Context, geofenceID string) (*Report, error) {
	shape, err := s.geofences.GeofenceShape(ctx, geofenceID)
	if err != nil {
		return nil, fmt.Errorf("load geofence shape: %w", err)
	}
	deviceIDs, err := s.geofences.GeofenceDeviceIDs(ctx, geofenceID)
	if err != nil {
		return nil, fmt.Errorf("load geofence devices: %w", err)
	}

	report := &Report{GeofenceID: geofenceID, Devices: make([]DeviceReport, 0, len(deviceIDs))}
	if len(deviceIDs) == 0 {
		return report, nil
	}

	known, err := s.locations.DeviceLocations(ctx, deviceIDs)
	if err != nil {
		return nil, fmt.Errorf("load device locations: %w", err)
	}
	byID := make(map[string]DeviceLocation, len(known))
	for _, l := range known {
		byID[l.DeviceID] = l
	}

	inputs := make([]DeviceLocation, len(deviceIDs))
	for i, id := range deviceIDs {
		loc, ok := byID[id]
		if !ok {
			loc = DeviceLocation{DeviceID: id}
		}
		inputs[i] = loc
	}

	for _, r := range Evaluate(shape, inputs) {
		entry := DeviceReport{
			DeviceID: r.DeviceID,
			Inside:   r.Classification.Flag(),
			LastSeen: r.LastSeen,
		}
		if r.Location != nil {
			lat, lng := r.Location.Latitude, r.Location.Longitude
			entry.Latitude, entry.Longitude = &lat, &lng
		}
		if s.recorder != nil {
			s.recorder.ObserveMembership(string(r.Classification))
		}
		report.Devices = append(report.Devices, entry)
	}
	return report, nil
}
