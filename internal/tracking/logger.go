package tracking

import (
	"log"
	"time"
)

const component = "tracking"

// logUpsert logs database upsert operations.
func logUpsert(table string, count int, duration time.Duration) {
	log.Printf("[%s] upserted %d %s rows in %dms", component, count, table, duration.Milliseconds())
}

// logError logs a failed operation.
func logError(operation, id string, err error) {
	log.Printf("[%s] %s %s error: %v", component, operation, id, err)
}

func logEvent(format string, args ...interface{}) {
	log.Printf("[%s] "+format, append([]interface{}{component}, args...)...)
}
