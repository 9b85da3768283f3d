package tracking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func circleInput(name string, radius float64) tracking.GeofenceInput {
	return tracking.GeofenceInput{
		Name:     name,
		Type:     "CIRCLE",
		Priority: "Medium",
		Shape: geofence.ShapePayload{
			Center: &geofence.PointPayload{Latitude: f64(center.Latitude), Longitude: f64(center.Longitude)},
			Radius: f64(radius),
		},
	}
}

func TestNormalizePriority(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{"": "MEDIUM", "Medium": "MEDIUM", "critical": "CRITICAL", " low ": "LOW"} {
		got, err := tracking.NormalizePriority(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := tracking.NormalizePriority("urgent")
	assert.True(t, apperr.IsValidation(err))
}

func TestService_CreateGeofenceRecomputes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)
	assert.Equal(t, 2, res.MatchedCount)

	view, err := f.svc.GetGeofence(ctx, res.GeofenceID)
	require.NoError(t, err)
	assert.Equal(t, "depot", view.Name)
	assert.Equal(t, "MEDIUM", view.Priority)
	assert.True(t, view.Active)
	assert.Equal(t, "CIRCLE", view.Type)
	assert.Equal(t, 500.0, *view.Shape.Radius)

	matches, err := f.svc.Associations(ctx, res.GeofenceID)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestService_CreateGeofenceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := circleInput("", 500)
	_, err := f.svc.CreateGeofence(ctx, in)
	assert.True(t, apperr.IsValidation(err))

	in = circleInput("depot", -1)
	_, err = f.svc.CreateGeofence(ctx, in)
	assert.True(t, apperr.IsValidation(err))

	list, err := f.svc.ListGeofences(ctx)
	require.NoError(t, err)
	assert.Empty(t, list, "rejected input leaves no rows")
}

func TestService_UpdateGeofence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)
	id := res.GeofenceID

	// metadata only: no recompute, associations untouched
	upd, err := f.svc.UpdateGeofence(ctx, id, tracking.GeofencePatch{Name: str("yard"), Priority: str("high")})
	require.NoError(t, err)
	assert.Nil(t, upd)
	view, err := f.svc.GetGeofence(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "yard", view.Name)
	assert.Equal(t, "HIGH", view.Priority)
	matches, err := f.svc.Associations(ctx, id)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	// shrinking the shape drops the edge sector
	shape := geofence.ShapePayload{
		Center: &geofence.PointPayload{Latitude: f64(center.Latitude), Longitude: f64(center.Longitude)},
		Radius: f64(10),
	}
	upd, err = f.svc.UpdateGeofence(ctx, id, tracking.GeofencePatch{Type: "CIRCLE", Shape: &shape})
	require.NoError(t, err)
	require.NotNil(t, upd)
	assert.Equal(t, 1, upd.MatchedCount)

	matches, err = f.svc.Associations(ctx, id)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "near", matches[0].SectorID)

	_, err = f.svc.UpdateGeofence(ctx, "ghost", tracking.GeofencePatch{Type: "CIRCLE", Shape: &shape})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_CreateGeofenceRollsBackWhenReplaceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.db.Migrator().DropTable(&tracking.GeofenceCell{}))

	_, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.ErrorIs(t, err, apperr.ErrPersistenceFailure)

	list, err := f.svc.ListGeofences(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	var circles int64
	require.NoError(t, f.db.Model(&tracking.GeofenceCircle{}).Count(&circles).Error)
	assert.Zero(t, circles)
}

func TestService_UpdateGeofenceRollsBackWhenReplaceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)
	require.NoError(t, f.db.Migrator().DropTable(&tracking.GeofenceCell{}))

	shape := geofence.ShapePayload{
		Center: &geofence.PointPayload{Latitude: f64(center.Latitude), Longitude: f64(center.Longitude)},
		Radius: f64(10),
	}
	_, err = f.svc.UpdateGeofence(ctx, res.GeofenceID, tracking.GeofencePatch{Name: str("yard"), Type: "CIRCLE", Shape: &shape})
	require.ErrorIs(t, err, apperr.ErrPersistenceFailure)

	view, err := f.svc.GetGeofence(ctx, res.GeofenceID)
	require.NoError(t, err)
	assert.Equal(t, "depot", view.Name)
	assert.Equal(t, 500.0, *view.Shape.Radius)
}

func TestService_UpdateGeofenceTypeNeedsShape(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)

	_, err = f.svc.UpdateGeofence(ctx, res.GeofenceID, tracking.GeofencePatch{Type: "POLYGON"})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "shape", ve.Field)

	view, err := f.svc.GetGeofence(ctx, res.GeofenceID)
	require.NoError(t, err)
	assert.Equal(t, "CIRCLE", view.Type)
}

func TestService_RecomputeAfterCatalogChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)

	moved := testSectors[0]
	moved.Location = center
	_, err = f.repo.UpsertSectors(ctx, []sectors.Sector{moved})
	require.NoError(t, err)

	again, err := f.svc.RecomputeGeofence(ctx, res.GeofenceID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.MatchedCount)

	n, err := f.svc.RecomputeAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_DeleteGeofence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteGeofence(ctx, res.GeofenceID))
	_, err = f.svc.GetGeofence(ctx, res.GeofenceID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.RecomputeGeofence(ctx, res.GeofenceID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_VerifyDevices(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.svc.CreateGeofence(ctx, circleInput("depot", 500))
	require.NoError(t, err)
	id := res.GeofenceID

	for _, name := range []string{"inside", "outside", "silent"} {
		_, err := f.svc.CreateDevice(ctx, tracking.DeviceInput{ID: name, Name: name})
		require.NoError(t, err)
		require.NoError(t, f.svc.RegisterDevice(ctx, id, name))
	}
	_, err = f.svc.ReportLocation(ctx, "inside", tracking.LocationInput{Latitude: f64(center.Latitude), Longitude: f64(center.Longitude)})
	require.NoError(t, err)
	_, err = f.svc.ReportLocation(ctx, "outside", tracking.LocationInput{Latitude: f64(1.45), Longitude: f64(103.8198)})
	require.NoError(t, err)

	report, err := f.svc.VerifyDevices(ctx, id)
	require.NoError(t, err)
	require.Len(t, report.Devices, 3)
	got := map[string]string{}
	for _, d := range report.Devices {
		got[d.DeviceID] = d.Inside
	}
	assert.Equal(t, map[string]string{"inside": "TRUE", "outside": "FALSE", "silent": "UNKNOWN"}, got)
	assert.Nil(t, report.Devices[2].Latitude)
}

func TestService_ReportLocationValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ReportLocation(ctx, "dev", tracking.LocationInput{Longitude: f64(1)})
	assert.True(t, apperr.IsValidation(err))
	_, err = f.svc.ReportLocation(ctx, "dev", tracking.LocationInput{Latitude: f64(95), Longitude: f64(1)})
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "latitude", ve.Field)
	_, err = f.svc.ReportLocation(ctx, "ghost", tracking.LocationInput{Latitude: f64(1), Longitude: f64(1)})
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_LookupLocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateDevice(ctx, tracking.DeviceInput{ID: "dev-1", Name: "van"})
	require.NoError(t, err)
	_, err = f.svc.ReportLocation(ctx, "dev-1", tracking.LocationInput{Latitude: f64(1), Longitude: f64(2), Accuracy: f64(15)})
	require.NoError(t, err)

	resp, err := f.svc.LookupLocations(ctx, []string{"dev-2", "dev-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	require.Len(t, resp.DeviceLocations, 2)
	assert.Equal(t, tracking.LocationUnavailable, resp.DeviceLocations[0].Status)
	assert.Nil(t, resp.DeviceLocations[0].Location)
	assert.Equal(t, tracking.LocationValid, resp.DeviceLocations[1].Status)
	assert.Equal(t, 15.0, *resp.DeviceLocations[1].Location.Accuracy)
}
