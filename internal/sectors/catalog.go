// Package sectors describes cell sectors and the read-only catalog they come from.
package sectors

import (
	"context"

	"github.com/sectorwatch/fleet-backend/internal/geo"
)

// Sector is a cellular sector used as a coverage proxy for devices without GPS.
// ID is the sector's ECI (E-UTRAN cell identifier) and is unique in the catalog.
type Sector struct {
	ID                   string       `json:"id"`
	Location             geo.GeoPoint `json:"location"`
	CoverageRadiusMeters float64      `json:"coverageRadiusMeters,omitempty"`
}

// Catalog is the external source of sectors. Snapshot returns every sector
// known at call time; a failure must wrap apperr.ErrCatalogUnavailable.
type Catalog interface {
	Snapshot(ctx context.Context) ([]Sector, error)
}

// StaticCatalog serves a fixed slice of sectors.
type StaticCatalog []Sector

// Snapshot returns a copy so callers cannot mutate the catalog.
func (c StaticCatalog) Snapshot(ctx context.Context) ([]Sector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Sector, len(c))
	copy(out, c)
	return out, nil
}
