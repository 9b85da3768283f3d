// Package association keeps the persisted geofence/sector association in
// step with a geofence's shape.
package association

import (
	"sort"

	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
)

// Validity is the degree of overlap recorded for an associated sector.
type Validity string

const (
	ValidityFull    Validity = "FULL"
	ValidityPartial Validity = "PARTIAL"
)

// Match is one associated sector.
type Match struct {
	SectorID string   `json:"sectorId"`
	Validity Validity `json:"validity"`
}

// ComputeMatches evaluates every sector in snapshot against shape. The result
// is a set keyed by sector id (a repeated id keeps its first classification)
// returned sorted by id so that equal inputs give equal slices regardless of
// snapshot order.
func ComputeMatches(shape geofence.Shape, snapshot []sectors.Sector) []Match {
	seen := make(map[string]struct{}, len(snapshot))
	matches := make([]Match, 0)

	for _, s := range snapshot {
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}

		switch shape.OverlapsSector(s) {
		case geofence.OverlapFull:
			matches = append(matches, Match{SectorID: s.ID, Validity: ValidityFull})
		case geofence.OverlapPartial:
			matches = append(matches, Match{SectorID: s.ID, Validity: ValidityPartial})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].SectorID < matches[j].SectorID })
	return matches
}
