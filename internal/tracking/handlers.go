package tracking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sectorwatch/fleet-backend/internal/httputil"
)

// Handlers exposes Service over HTTP.
type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// MaxBodyBytes caps request bodies; larger payloads get 413.
var MaxBodyBytes int64 = 1 << 20

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func badBody(w http.ResponseWriter, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.WriteJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	httputil.BadRequest(w, msg)
}

func (h *Handlers) ListGeofences(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListGeofences(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, list)
}

func (h *Handlers) CreateGeofence(w http.ResponseWriter, r *http.Request) {
	var in GeofenceInput
	if err := decode(w, r, &in); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}

	res, err := h.svc.CreateGeofence(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"id":           res.GeofenceID,
		"matchedCount": res.MatchedCount,
	})
}

func (h *Handlers) GetGeofence(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetGeofence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, view)
}

func (h *Handlers) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch GeofencePatch
	if err := decode(w, r, &patch); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}

	res, err := h.svc.UpdateGeofence(r.Context(), id, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	body := map[string]interface{}{"id": id, "recomputed": res != nil}
	if res != nil {
		body["matchedCount"] = res.MatchedCount
	}
	httputil.WriteJSONOK(w, body)
}

func (h *Handlers) DeleteGeofence(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteGeofence(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"success": true})
}

func (h *Handlers) RecomputeGeofence(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RecomputeGeofence(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"id":           res.GeofenceID,
		"matchedCount": res.MatchedCount,
		"scanned":      res.Scanned,
	})
}

func (h *Handlers) ListSectors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	matches, err := h.svc.Associations(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"geofenceId": id, "sectors": matches})
}

func (h *Handlers) GeoJSON(w http.ResponseWriter, r *http.Request) {
	feature, err := h.svc.GeofenceFeature(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(feature); err != nil {
		logError("encode geojson", feature.ID, err)
	}
}

func (h *Handlers) VerifyDevices(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.VerifyDevices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, report)
}

type deviceRef struct {
	DeviceID string `json:"deviceId"`
}

func (h *Handlers) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var in deviceRef
	if err := decode(w, r, &in); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}
	if err := h.svc.RegisterDevice(r.Context(), chi.URLParam(r, "id"), in.DeviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"success": true})
}

func (h *Handlers) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	var in deviceRef
	if err := decode(w, r, &in); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}
	if err := h.svc.UnregisterDevice(r.Context(), chi.URLParam(r, "id"), in.DeviceID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"success": true})
}

func (h *Handlers) RegisteredDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.RegisteredDevices(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"devices": devices})
}

func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.svc.ListDevices(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, devices)
}

func (h *Handlers) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var in DeviceInput
	if err := decode(w, r, &in); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}
	d, err := h.svc.CreateDevice(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handlers) ReportLocation(w http.ResponseWriter, r *http.Request) {
	var in LocationInput
	if err := decode(w, r, &in); err != nil {
		badBody(w, err, "Invalid request body")
		return
	}
	loc, err := h.svc.ReportLocation(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, loc)
}

func (h *Handlers) LookupLocations(w http.ResponseWriter, r *http.Request) {
	var in struct {
		DeviceIDs []string `json:"deviceIds"`
	}
	if err := decode(w, r, &in); err != nil || in.DeviceIDs == nil {
		badBody(w, err, "deviceIds must be an array")
		return
	}
	resp, err := h.svc.LookupLocations(r.Context(), in.DeviceIDs)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, resp)
}
