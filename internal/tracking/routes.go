package tracking

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// SetupRoutes builds the geofence and device API. limit wraps the routes
// that trigger an association recompute; nil leaves them unthrottled.
func SetupRoutes(h *Handlers, limit func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Get("/geofences", h.ListGeofences)
	r.Get("/geofences/{id}", h.GetGeofence)
	r.Delete("/geofences/{id}", h.DeleteGeofence)
	r.Delete("/geofences/{id}/delete", h.DeleteGeofence)
	r.Get("/geofences/{id}/sectors", h.ListSectors)
	r.Get("/geofences/{id}/geojson", h.GeoJSON)
	r.Get("/geofences/{id}/verify-device", h.VerifyDevices)
	r.Post("/geofences/{id}/register-device", h.RegisterDevice)
	r.Delete("/geofences/{id}/register-device", h.UnregisterDevice)
	r.Get("/geofences/{id}/register-device", h.RegisteredDevices)

	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/geofences", h.CreateGeofence)
		r.Patch("/geofences/{id}", h.UpdateGeofence)
		r.Patch("/geofences/{id}/update", h.UpdateGeofence)
		r.Post("/geofences/{id}/recompute", h.RecomputeGeofence)
	})

	r.Get("/devices", h.ListDevices)
	r.Post("/devices", h.CreateDevice)
	r.Put("/devices/{id}/location", h.ReportLocation)
	r.Post("/device-location", h.LookupLocations)

	return r
}
