package tracking_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func newServer(t *testing.T) http.Handler {
	t.Helper()
	f := newFixture(t)
	return tracking.SetupRoutes(tracking.NewHandlers(f.svc), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

const createCircle = `{
	"name": "depot",
	"type": "CIRCLE",
	"priority": "Medium",
	"shape": {"center": {"latitude": 1.3521, "longitude": 103.8198}, "radius": 500}
}`

func TestHandlers_GeofenceLifecycle(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/geofences", createCircle)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID           string `json:"id"`
		MatchedCount int    `json:"matchedCount"`
	}
	decodeBody(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 2, created.MatchedCount)

	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]interface{}
	decodeBody(t, rec, &view)
	assert.Equal(t, "depot", view["name"])
	assert.Equal(t, "CIRCLE", view["type"])

	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID+"/sectors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sectorsBody struct {
		Sectors []struct {
			SectorID string `json:"sectorId"`
			Validity string `json:"validity"`
		} `json:"sectors"`
	}
	decodeBody(t, rec, &sectorsBody)
	require.Len(t, sectorsBody.Sectors, 2)
	assert.Equal(t, "FULL", sectorsBody.Sectors[0].Validity)

	rec = do(t, h, http.MethodPatch, "/geofences/"+created.ID+"/update",
		`{"type":"CIRCLE","shape":{"center":{"latitude":1.3521,"longitude":103.8198},"radius":10}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated map[string]interface{}
	decodeBody(t, rec, &updated)
	assert.Equal(t, true, updated["recomputed"])
	assert.Equal(t, float64(1), updated["matchedCount"])

	rec = do(t, h, http.MethodPost, "/geofences/"+created.ID+"/recompute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID+"/geojson", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodDelete, "/geofences/"+created.ID+"/delete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlers_CreateGeofenceErrors(t *testing.T) {
	h := newServer(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing type", `{"name":"x","shape":{}}`, "type"},
		{"bad radius", `{"name":"x","type":"CIRCLE","shape":{"center":{"latitude":1,"longitude":2},"radius":0}}`, "shape.radius"},
		{"short polygon", `{"name":"x","type":"POLYGON","shape":{"coordinates":[{"latitude":1,"longitude":1}]}}`, "shape.coordinates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/geofences", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Equal(t, tt.field, body["field"])
		})
	}

	rec := do(t, h, http.MethodPost, "/geofences", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_OversizedBodyIsRejected(t *testing.T) {
	h := newServer(t)

	var b strings.Builder
	b.WriteString(`{"name":"big","type":"POLYGON","shape":{"coordinates":[`)
	for int64(b.Len()) <= tracking.MaxBodyBytes {
		b.WriteString(`{"latitude":1.3521,"longitude":103.8198},`)
	}
	b.WriteString(`{"latitude":1.3521,"longitude":103.8198}]}}`)

	rec := do(t, h, http.MethodPost, "/geofences", b.String())
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, h, http.MethodGet, "/geofences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHandlers_PatchTypeWithoutShape(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/geofences",
		`{"name":"depot","type":"CIRCLE","shape":{"center":{"latitude":1.3521,"longitude":103.8198},"radius":500}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	rec = do(t, h, http.MethodPatch, "/geofences/"+created.ID, `{"type":"POLYGON"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "shape", body["field"])
}

func TestHandlers_VerifyDevice(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/geofences", createCircle)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)

	rec = do(t, h, http.MethodPost, "/devices", `{"id":"dev-1","name":"van","type":"truck","status":"active","phone_number":"+6590000000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = do(t, h, http.MethodPost, "/devices", `{"id":"dev-2","name":"bike"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/devices", `{"id":"dev-2","name":"bike"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	for _, id := range []string{"dev-1", "dev-2"} {
		rec = do(t, h, http.MethodPost, "/geofences/"+created.ID+"/register-device", `{"deviceId":"`+id+`"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPut, "/devices/dev-1/location", `{"latitude":1.3521,"longitude":103.8198,"accuracy":8}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID+"/verify-device", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"geofenceId": "`+created.ID+`",
		"devices": [
			{"deviceId":"dev-1","inside":"TRUE","latitude":1.3521,"longitude":103.8198,"lastSeen":`+lastSeen(t, rec)+`},
			{"deviceId":"dev-2","inside":"UNKNOWN","latitude":null,"longitude":null,"lastSeen":null}
		]}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/geofences/"+created.ID+"/register-device", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var registered struct {
		Devices []tracking.Device `json:"devices"`
	}
	decodeBody(t, rec, &registered)
	assert.Len(t, registered.Devices, 2)

	rec = do(t, h, http.MethodDelete, "/geofences/"+created.ID+"/register-device", `{"deviceId":"dev-2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/geofences/ghost/verify-device", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// lastSeen pulls the first device's lastSeen out of a verify-device body so
// the JSON comparison does not depend on the clock.
func lastSeen(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Devices []struct {
			LastSeen json.RawMessage `json:"lastSeen"`
		} `json:"devices"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Devices)
	return string(body.Devices[0].LastSeen)
}

func TestHandlers_DeviceLocation(t *testing.T) {
	h := newServer(t)

	rec := do(t, h, http.MethodPost, "/device-location", `{"deviceIds":"dev-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/device-location", `{"deviceIds":["dev-1"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp tracking.DeviceLocationResponse
	decodeBody(t, rec, &resp)
	require.Len(t, resp.DeviceLocations, 1)
	assert.Equal(t, "LOCATION_UNAVAILABLE", resp.DeviceLocations[0].Status)
}

func TestHandlers_RecomputeRoutesAreLimited(t *testing.T) {
	f := newFixture(t)
	blocked := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	h := tracking.SetupRoutes(tracking.NewHandlers(f.svc), blocked)

	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/geofences", createCircle).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/geofences/x/recompute", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/geofences", "").Code)
}
