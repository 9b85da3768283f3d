package tracking_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/db"
	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/membership"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

var center = geo.GeoPoint{Latitude: 1.3521, Longitude: 103.8198}

// testSectors: "near" sits on the center, "edge" ~500m north with 250m
// coverage, "far" ~10km north.
var testSectors = []sectors.Sector{
	{ID: "far", Location: geo.GeoPoint{Latitude: 1.3521 + 0.09, Longitude: 103.8198}},
	{ID: "near", Location: center},
	{ID: "edge", Location: geo.GeoPoint{Latitude: 1.3521 + 0.0045, Longitude: 103.8198}, CoverageRadiusMeters: 250},
}

type fixture struct {
	db     *gorm.DB
	repo   *tracking.Repository
	engine *association.Engine
	svc    *tracking.Service
}

func openDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "fleet.db") + "?_pragma=busy_timeout(5000)"
	gdb, err := db.Open(db.Options{Driver: db.DriverSQLite, DSN: dsn, LogLevel: "silent"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

func newRepository(t *testing.T) *tracking.Repository {
	t.Helper()

	repo := tracking.NewRepository(openDB(t))
	require.NoError(t, repo.Migrate())
	return repo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb := openDB(t)
	repo := tracking.NewRepository(gdb)
	require.NoError(t, repo.Migrate())
	_, err := repo.UpsertSectors(context.Background(), testSectors)
	require.NoError(t, err)

	engine := association.NewEngine(repo, repo)
	members := membership.NewService(repo, repo, nil)
	return &fixture{db: gdb, repo: repo, engine: engine, svc: tracking.NewService(repo, engine, members)}
}

func f64(v float64) *float64 { return &v }
func str(v string) *string    { return &v }
