package sectors

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/geo"
)

// catalogFile is the on-disk layout consumed by cmd/import-sectors:
//
//	sectors:
//	  - eci: "525010012345601"
//	    latitude: 1.3521
//	    longitude: 103.8198
//	    coverageRadius: 250
type catalogFile struct {
	Sectors []fileSector `yaml:"sectors"`
}

type fileSector struct {
	ECI            string   `yaml:"eci"`
	Latitude       *float64 `yaml:"latitude"`
	Longitude      *float64 `yaml:"longitude"`
	CoverageRadius float64  `yaml:"coverageRadius"`
}

// LoadFile reads a YAML sector catalog from path.
func LoadFile(path string) ([]Sector, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sector file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML sector catalog. Every entry needs a
// unique ECI, a valid location and a non-negative coverage radius.
func Parse(raw []byte) ([]Sector, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode sector file: %w", err)
	}

	out := make([]Sector, 0, len(f.Sectors))
	seen := make(map[string]int, len(f.Sectors))
	for i, fs := range f.Sectors {
		field := fmt.Sprintf("sectors[%d]", i)

		id := strings.TrimSpace(fs.ECI)
		if id == "" {
			return nil, apperr.Invalid(field+".eci", "is required")
		}
		if prev, ok := seen[id]; ok {
			return nil, apperr.Invalid(field+".eci", "duplicates sectors[%d]", prev)
		}
		seen[id] = i

		if fs.Latitude == nil {
			return nil, apperr.Invalid(field+".latitude", "is required")
		}
		if fs.Longitude == nil {
			return nil, apperr.Invalid(field+".longitude", "is required")
		}
		loc := geo.GeoPoint{Latitude: *fs.Latitude, Longitude: *fs.Longitude}
		if err := loc.Validate(); err != nil {
			var ce *geo.CoordinateError
			if errors.As(err, &ce) {
				return nil, apperr.Invalid(field+"."+ce.Axis, "%s", ce.Reason)
			}
			return nil, err
		}

		if fs.CoverageRadius < 0 || math.IsNaN(fs.CoverageRadius) || math.IsInf(fs.CoverageRadius, 0) {
			return nil, apperr.Invalid(field+".coverageRadius", "must be a finite number >= 0")
		}

		out = append(out, Sector{ID: id, Location: loc, CoverageRadiusMeters: fs.CoverageRadius})
	}
	return out, nil
}
