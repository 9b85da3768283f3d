package association

import (
	"log"
	"time"
)

const component = "association"

func logRecompute(geofenceID string, scanned, matched int, duration time.Duration) {
	log.Printf("[%s] recomputed geofence=%s scanned=%d matched=%d in %dms",
		component, geofenceID, scanned, matched, duration.Milliseconds())
}

func logError(operation, geofenceID string, err error) {
	log.Printf("[%s] %s geofence=%s error: %v", component, operation, geofenceID, err)
}
