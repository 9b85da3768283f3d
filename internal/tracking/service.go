package tracking

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/sectorwatch/fleet-backend/internal/membership"
)

// Geofence priorities.
const (
	PriorityLow      = "LOW"
	PriorityMedium   = "MEDIUM"
	PriorityHigh     = "HIGH"
	PriorityCritical = "CRITICAL"
)

var upper = cases.Upper(language.Und)

// GeofenceInput is the body of a create request.
type GeofenceInput struct {
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	Description string                `json:"description"`
	Priority    string                `json:"priority"`
	Active      *bool                 `json:"active"`
	Shape       geofence.ShapePayload `json:"shape"`
}

// GeofencePatch is the body of an update request. Absent fields are kept;
// a shape triggers an association recompute.
type GeofencePatch struct {
	Name        *string                `json:"name"`
	Type        string                 `json:"type"`
	Description *string                `json:"description"`
	Priority    *string                `json:"priority"`
	Active      *bool                  `json:"active"`
	Shape       *geofence.ShapePayload `json:"shape"`
}

// GeofenceView is a geofence with its shape, as returned to clients.
type GeofenceView struct {
	Geofence
	Shape geofence.ShapePayload `json:"shape"`
}

// Service implements the geofence and device operations on top of the
// repository, the association engine and the membership service.
type Service struct {
	repo       *Repository
	engine     *association.Engine
	membership *membership.Service
}

func NewService(repo *Repository, engine *association.Engine, members *membership.Service) *Service {
	return &Service{repo: repo, engine: engine, membership: members}
}

// NormalizePriority upper-cases p and checks it against the known levels.
// Empty means MEDIUM.
func NormalizePriority(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return PriorityMedium, nil
	}
	switch v := upper.String(p); v {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return v, nil
	default:
		return "", apperr.Invalid("priority", "must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
}

// CreateGeofence validates the input, stores the geofence and computes its
// sector association. The geofence row and shape are only written once the
// sector snapshot has been read.
func (s *Service) CreateGeofence(ctx context.Context, in GeofenceInput) (*association.Result, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	priority, err := NormalizePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	shape, err := geofence.Parse(in.Type, in.Shape)
	if err != nil {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}
	g := &Geofence{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Priority:    priority,
		Active:      active,
	}

	res, err := s.engine.RecomputeAfter(ctx, g.ID, shape, func(ctx context.Context) error {
		return s.repo.CreateGeofence(ctx, g, shape)
	})
	if err != nil {
		return nil, err
	}
	logEvent("created geofence %s type=%s matched=%d", g.ID, shape.Kind(), res.MatchedCount)
	return res, nil
}

// UpdateGeofence applies a patch. Without a shape only metadata changes and
// no recompute runs; the returned result is nil in that case. A type without
// a shape is rejected.
func (s *Service) UpdateGeofence(ctx context.Context, id string, patch GeofencePatch) (*association.Result, error) {
	changes := GeofenceChanges{
		Description: patch.Description,
		Active:      patch.Active,
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, apperr.Invalid("name", "must not be empty")
		}
		changes.Name = &name
	}
	if patch.Priority != nil {
		p, err := NormalizePriority(*patch.Priority)
		if err != nil {
			return nil, err
		}
		changes.Priority = &p
	}

	if patch.Shape == nil || patch.Shape.Empty() {
		if strings.TrimSpace(patch.Type) != "" {
			return nil, apperr.Invalid("shape", "is required when type is set")
		}
		return nil, s.repo.UpdateGeofence(ctx, id, changes, nil)
	}

	shape, err := geofence.Parse(patch.Type, *patch.Shape)
	if err != nil {
		return nil, err
	}
	return s.engine.RecomputeAfter(ctx, id, shape, func(ctx context.Context) error {
		return s.repo.UpdateGeofence(ctx, id, changes, shape)
	})
}

// DeleteGeofence removes a geofence while holding its recompute lock.
func (s *Service) DeleteGeofence(ctx context.Context, id string) error {
	return s.engine.WithLock(ctx, id, func(ctx context.Context) error {
		return s.repo.DeleteGeofence(ctx, id)
	})
}

// RecomputeGeofence recomputes the association of a stored geofence from
// its persisted shape.
func (s *Service) RecomputeGeofence(ctx context.Context, id string) (*association.Result, error) {
	return s.engine.RecomputeStored(ctx, id, s.repo)
}

// RecomputeAll recomputes every geofence, continuing past failures. It
// returns the number of successful recomputes and the first error seen.
func (s *Service) RecomputeAll(ctx context.Context, activeOnly bool) (int, error) {
	ids, err := s.repo.ListGeofenceIDs(ctx, activeOnly)
	if err != nil {
		return 0, err
	}

	var firstErr error
	ok := 0
	for _, id := range ids {
		if _, err := s.RecomputeGeofence(ctx, id); err != nil {
			logError("recompute", id, err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
			continue
		}
		ok++
	}
	return ok, firstErr
}

func (s *Service) GetGeofence(ctx context.Context, id string) (*GeofenceView, error) {
	g, err := s.repo.GetGeofence(ctx, id)
	if err != nil {
		return nil, err
	}
	shape, err := s.repo.loadShape(ctx, g)
	if err != nil {
		return nil, err
	}
	return &GeofenceView{Geofence: *g, Shape: geofence.ToPayload(shape)}, nil
}

func (s *Service) ListGeofences(ctx context.Context) ([]GeofenceView, error) {
	list, err := s.repo.ListGeofences(ctx)
	if err != nil {
		return nil, err
	}
	shapes, err := s.repo.GeofenceShapes(ctx, list)
	if err != nil {
		return nil, err
	}
	out := make([]GeofenceView, 0, len(list))
	for _, g := range list {
		out = append(out, GeofenceView{Geofence: g, Shape: geofence.ToPayload(shapes[g.ID])})
	}
	return out, nil
}

// GeofenceFeature renders a stored geofence as a GeoJSON Feature.
func (s *Service) GeofenceFeature(ctx context.Context, id string) (*geofence.Feature, error) {
	g, err := s.repo.GetGeofence(ctx, id)
	if err != nil {
		return nil, err
	}
	shape, err := s.repo.loadShape(ctx, g)
	if err != nil {
		return nil, err
	}
	return geofence.GeoJSON(g.ID, shape, map[string]interface{}{
		"name":     g.Name,
		"priority": g.Priority,
		"active":   g.Active,
	})
}

func (s *Service) Associations(ctx context.Context, id string) ([]association.Match, error) {
	return s.repo.ListAssociations(ctx, id)
}

func (s *Service) VerifyDevices(ctx context.Context, id string) (*membership.Report, error) {
	return s.membership.EvaluateMembership(ctx, id)
}

// ---- devices ----

// DeviceInput is the body of a device create request.
type DeviceInput struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Service) CreateDevice(ctx context.Context, in DeviceInput) (*Device, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	d := &Device{
		ID:          id,
		Name:        name,
		Type:        in.Type,
		Status:      in.Status,
		PhoneNumber: in.PhoneNumber,
	}
	if err := s.repo.CreateDevice(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListDevices(ctx context.Context) ([]Device, error) {
	return s.repo.ListDevices(ctx)
}

// LocationInput is a reported device fix.
type LocationInput struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Accuracy  *float64   `json:"accuracy"`
	Timestamp *time.Time `json:"timestamp"`
}

// ReportLocation stores the latest location of a device. Both coordinates
// are required and must be in range.
func (s *Service) ReportLocation(ctx context.Context, deviceID string, in LocationInput) (*DeviceLocation, error) {
	if in.Latitude == nil {
		return nil, apperr.Invalid("latitude", "is required")
	}
	if in.Longitude == nil {
		return nil, apperr.Invalid("longitude", "is required")
	}
	if err := validateFix(*in.Latitude, *in.Longitude); err != nil {
		return nil, err
	}
	if in.Accuracy != nil && *in.Accuracy < 0 {
		return nil, apperr.Invalid("accuracy", "must not be negative")
	}

	ts := time.Now().UTC()
	if in.Timestamp != nil {
		ts = in.Timestamp.UTC()
	}
	loc := &DeviceLocation{
		DeviceID:    deviceID,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		Accuracy:    in.Accuracy,
		LastUpdated: &ts,
	}
	if err := s.repo.SaveDeviceLocation(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func validateFix(lat, lng float64) error {
	err := geo.GeoPoint{Latitude: lat, Longitude: lng}.Validate()
	var ce *geo.CoordinateError
	if errors.As(err, &ce) {
		return apperr.Invalid(ce.Axis, "%s", ce.Reason)
	}
	return err
}

// Location status values of a device location lookup.
const (
	LocationValid       = "VALID"
	LocationUnavailable = "LOCATION_UNAVAILABLE"
)

// LocationFix is the location member of a DeviceLocationData entry.
type LocationFix struct {
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Accuracy  *float64   `json:"accuracy,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type DeviceLocationData struct {
	DeviceID string       `json:"deviceId"`
	Location *LocationFix `json:"location,omitempty"`
	Status   string       `json:"status"`
}

type DeviceLocationResponse struct {
	DeviceLocations []DeviceLocationData `json:"deviceLocations"`
	RequestID       string               `json:"requestId"`
	Timestamp       time.Time            `json:"timestamp"`
}

// LookupLocations reports the stored location of each requested device in
// request order.
func (s *Service) LookupLocations(ctx context.Context, deviceIDs []string) (*DeviceLocationResponse, error) {
	rows, err := s.repo.LocationRows(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]DeviceLocation, len(rows))
	for _, row := range rows {
		byID[row.DeviceID] = row
	}

	resp := &DeviceLocationResponse{
		DeviceLocations: make([]DeviceLocationData, 0, len(deviceIDs)),
		RequestID:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
	}
	for _, id := range deviceIDs {
		entry := DeviceLocationData{DeviceID: id, Status: LocationUnavailable}
		if row, ok := byID[id]; ok && row.Latitude != nil && row.Longitude != nil {
			entry.Status = LocationValid
			entry.Location = &LocationFix{
				Latitude:  *row.Latitude,
				Longitude: *row.Longitude,
				Accuracy:  row.Accuracy,
				Timestamp: row.LastUpdated,
			}
		}
		resp.DeviceLocations = append(resp.DeviceLocations, entry)
	}
	return resp, nil
}

func (s *Service) RegisterDevice(ctx context.Context, geofenceID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperr.Invalid("deviceId", "is required")
	}
	return s.repo.RegisterDevice(ctx, geofenceID, deviceID)
}

func (s *Service) UnregisterDevice(ctx context.Context, geofenceID, deviceID string) error {
	if strings.TrimSpace(deviceID) == "" {
		return apperr.Invalid("deviceId", "is required")
	}
	return s.repo.UnregisterDevice(ctx, geofenceID, deviceID)
}

// RegisteredDevices returns the devices registered to a geofence.
func (s *Service) RegisteredDevices(ctx context.Context, geofenceID string) ([]Device, error) {
	ids, err := s.repo.GeofenceDeviceIDs(ctx, geofenceID)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(ids))
	for _, id := range ids {
		d, err := s.repo.GetDevice(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}
