package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/geo"
	"github.com/sectorwatch/fleet-backend/internal/geofence"
	"github.com/sectorwatch/fleet-backend/internal/membership"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
)

const batchSize = 500

// Repository is the gorm-backed store for geofences, sectors, associations
// and devices. It satisfies sectors.Catalog, association.Store,
// membership.GeofenceSource and membership.LocationFeed.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type txKey struct{}

// conn returns the transaction carried by ctx, if any, so writes handed to
// ReplaceAssociations join its transaction.
func (r *Repository) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Migrate creates or updates every tracking table.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&Geofence{},
		&GeofenceCircle{},
		&GeofencePolygonPoint{},
		&GeofenceCell{},
		&CellSector{},
		&Device{},
		&DeviceLocation{},
		&GeofenceDevice{},
	)
}

// ---- sector catalog ----

// Snapshot returns every cell sector ordered by ECI from a single read.
func (r *Repository) Snapshot(ctx context.Context) ([]sectors.Sector, error) {
	var rows []CellSector
	if err := r.conn(ctx).Order("eci").Find(&rows).Error; err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrCatalogUnavailable, err)
	}

	out := make([]sectors.Sector, 0, len(rows))
	for _, row := range rows {
		out = append(out, sectors.Sector{
			ID:                   row.ECI,
			Location:             geo.GeoPoint{Latitude: row.Latitude, Longitude: row.Longitude},
			CoverageRadiusMeters: row.CoverageRadius,
		})
	}
	return out, nil
}

// UpsertSectors inserts or refreshes sectors keyed by ECI.
func (r *Repository) UpsertSectors(ctx context.Context, list []sectors.Sector) (int, error) {
	if len(list) == 0 {
		return 0, nil
	}

	start := time.Now()
	now := start.UTC()
	rows := make([]CellSector, 0, len(list))
	for _, s := range list {
		rows = append(rows, CellSector{
			ECI:            s.ID,
			Latitude:       s.Location.Latitude,
			Longitude:      s.Location.Longitude,
			CoverageRadius: s.CoverageRadiusMeters,
			UpdatedAt:      now,
		})
	}

	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "eci"}},
		DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "coverage_radius", "updated_at"}),
	}).CreateInBatches(&rows, batchSize).Error
	if err != nil {
		return 0, fmt.Errorf("upsert cell sectors: %w", err)
	}

	logUpsert("cell_sectors", len(rows), time.Since(start))
	return len(rows), nil
}

// ---- associations ----

// ReplaceAssociations swaps the association set of a geofence inside one
// transaction. before runs first in that transaction (repository calls made
// with the context it receives join it), so a shape write and the new set
// commit or roll back together. The geofence row is then locked so
// concurrent writers on PostgreSQL queue behind each other.
func (r *Repository) ReplaceAssociations(
	ctx context.Context,
	geofenceID string,
	matches []association.Match,
	before func(ctx context.Context) error,
) error {
	var hookErr error
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if before != nil {
			if hookErr = before(context.WithValue(ctx, txKey{}, tx)); hookErr != nil {
				return hookErr
			}
		}
		if err := lockGeofence(tx, geofenceID); err != nil {
			return err
		}

		if err := tx.Where("geofence_id = ?", geofenceID).Delete(&GeofenceCell{}).Error; err != nil {
			return fmt.Errorf("delete associations: %w", err)
		}
		if len(matches) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows := make([]GeofenceCell, 0, len(matches))
		for _, m := range matches {
			rows = append(rows, GeofenceCell{
				GeofenceID: geofenceID,
				ECI:        m.SectorID,
				Validity:   string(m.Validity),
				CreatedAt:  now,
			})
		}
		if err := tx.CreateInBatches(&rows, batchSize).Error; err != nil {
			return fmt.Errorf("insert associations: %w", err)
		}
		return nil
	})

	if hookErr != nil || err == nil || errors.Is(err, apperr.ErrNotFound) || isContextErr(err) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrPersistenceFailure, err)
}

// ListAssociations returns the persisted association of a geofence ordered
// by sector id.
func (r *Repository) ListAssociations(ctx context.Context, geofenceID string) ([]association.Match, error) {
	if _, err := r.GetGeofence(ctx, geofenceID); err != nil {
		return nil, err
	}

	var rows []GeofenceCell
	if err := r.conn(ctx).Where("geofence_id = ?", geofenceID).Order("eci").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}

	out := make([]association.Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, association.Match{SectorID: row.ECI, Validity: association.Validity(row.Validity)})
	}
	return out, nil
}

// ---- geofences ----

// GeofenceChanges holds the metadata fields of an update. Nil means keep.
type GeofenceChanges struct {
	Name        *string
	Description *string
	Priority    *string
	Active      *bool
}

// CreateGeofence inserts the geofence row and its shape rows together.
func (r *Repository) CreateGeofence(ctx context.Context, g *Geofence, shape geofence.Shape) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		g.Type = string(shape.Kind())
		if err := tx.Create(g).Error; err != nil {
			return err
		}
		return writeShape(tx, g.ID, shape)
	})
	return mapError(err, "geofence", g.ID)
}

// UpdateGeofence applies changes and, when shape is non-nil, replaces the
// stored shape, all in one transaction.
func (r *Repository) UpdateGeofence(ctx context.Context, id string, changes GeofenceChanges, shape geofence.Shape) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGeofence(tx, id); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if changes.Name != nil {
			updates["name"] = *changes.Name
		}
		if changes.Description != nil {
			updates["description"] = *changes.Description
		}
		if changes.Priority != nil {
			updates["priority"] = *changes.Priority
		}
		if changes.Active != nil {
			updates["active"] = *changes.Active
		}
		if shape != nil {
			updates["geofence_type"] = string(shape.Kind())
		}
		if len(updates) > 0 {
			if err := tx.Model(&Geofence{ID: id}).Updates(updates).Error; err != nil {
				return err
			}
		}

		if shape == nil {
			return nil
		}
		return writeShape(tx, id, shape)
	})
	return mapError(err, "geofence", id)
}

func (r *Repository) GetGeofence(ctx context.Context, id string) (*Geofence, error) {
	var g Geofence
	if err := r.conn(ctx).Where("id = ?", id).Take(&g).Error; err != nil {
		return nil, mapError(err, "geofence", id)
	}
	return &g, nil
}

func (r *Repository) ListGeofences(ctx context.Context) ([]Geofence, error) {
	var out []Geofence
	if err := r.conn(ctx).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	return out, nil
}

// ListGeofenceIDs returns every geofence id, optionally only active ones.
func (r *Repository) ListGeofenceIDs(ctx context.Context, activeOnly bool) ([]string, error) {
	var ids []string
	q := r.conn(ctx).Model(&Geofence{}).Order("created_at, id")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list geofence ids: %w", err)
	}
	return ids, nil
}

// DeleteGeofence removes a geofence with its shape, associations and device
// registrations.
func (r *Repository) DeleteGeofence(ctx context.Context, id string) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockGeofence(tx, id); err != nil {
			return err
		}
		for _, model := range []interface{}{&GeofenceCell{}, &GeofenceDevice{}, &GeofenceCircle{}, &GeofencePolygonPoint{}} {
			if err := tx.Where("geofence_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Delete(&Geofence{}).Error
	})
	return mapError(err, "geofence", id)
}

// GeofenceShape rebuilds the stored shape of a geofence.
func (r *Repository) GeofenceShape(ctx context.Context, id string) (geofence.Shape, error) {
	g, err := r.GetGeofence(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.loadShape(ctx, g)
}

func (r *Repository) loadShape(ctx context.Context, g *Geofence) (geofence.Shape, error) {
	shapes, err := r.GeofenceShapes(ctx, []Geofence{*g})
	if err != nil {
		return nil, err
	}
	return shapes[g.ID], nil
}

// GeofenceShapes rebuilds the stored shapes of list with one query per
// shape table, keyed by geofence id.
func (r *Repository) GeofenceShapes(ctx context.Context, list []Geofence) (map[string]geofence.Shape, error) {
	out := make(map[string]geofence.Shape, len(list))
	if len(list) == 0 {
		return out, nil
	}

	var circleIDs, polygonIDs []string
	for _, g := range list {
		if kind, _ := geofence.ParseKind(g.Type); kind == geofence.KindCircle {
			circleIDs = append(circleIDs, g.ID)
		} else {
			polygonIDs = append(polygonIDs, g.ID)
		}
	}

	circles := make(map[string]GeofenceCircle, len(circleIDs))
	if len(circleIDs) > 0 {
		var rows []GeofenceCircle
		if err := r.conn(ctx).Where("geofence_id IN ?", circleIDs).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("load circles: %w", err)
		}
		for _, c := range rows {
			circles[c.GeofenceID] = c
		}
	}

	points := make(map[string][]GeofencePolygonPoint, len(polygonIDs))
	if len(polygonIDs) > 0 {
		var rows []GeofencePolygonPoint
		err := r.conn(ctx).Where("geofence_id IN ?", polygonIDs).
			Order("geofence_id, point_order").
			Find(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("load polygons: %w", err)
		}
		for _, p := range rows {
			points[p.GeofenceID] = append(points[p.GeofenceID], p)
		}
	}

	for _, g := range list {
		var c *GeofenceCircle
		if row, ok := circles[g.ID]; ok {
			c = &row
		}
		shape, err := buildShape(g, c, points[g.ID])
		if err != nil {
			return nil, err
		}
		out[g.ID] = shape
	}
	return out, nil
}

func buildShape(g Geofence, c *GeofenceCircle, points []GeofencePolygonPoint) (geofence.Shape, error) {
	kind, err := geofence.ParseKind(g.Type)
	if err != nil {
		return nil, corruptShape(g.ID, err)
	}

	var shape geofence.Shape
	switch kind {
	case geofence.KindCircle:
		if c == nil {
			return nil, corruptShape(g.ID, errors.New("circle row missing"))
		}
		shape, err = geofence.NewCircle(geo.GeoPoint{Latitude: c.CenterLatitude, Longitude: c.CenterLongitude}, c.Radius)

	default:
		vertices := make([]geo.GeoPoint, 0, len(points))
		for _, p := range points {
			vertices = append(vertices, geo.GeoPoint{Latitude: p.Latitude, Longitude: p.Longitude})
		}
		shape, err = geofence.NewPolygon(vertices)
	}
	if err != nil {
		return nil, corruptShape(g.ID, err)
	}
	return shape, nil
}

// ---- devices ----

// CreateDevice inserts a device, failing with apperr.ErrConflict when the id
// is taken.
func (r *Repository) CreateDevice(ctx context.Context, d *Device) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Device{}).Where("id = ?", d.ID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("device %q: %w", d.ID, apperr.ErrConflict)
		}
		return tx.Create(d).Error
	})
	return mapError(err, "device", d.ID)
}

func (r *Repository) ListDevices(ctx context.Context) ([]Device, error) {
	var out []Device
	if err := r.conn(ctx).Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

func (r *Repository) GetDevice(ctx context.Context, id string) (*Device, error) {
	var d Device
	if err := r.conn(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, mapError(err, "device", id)
	}
	return &d, nil
}

// SaveDeviceLocation stores the latest fix of a known device.
func (r *Repository) SaveDeviceLocation(ctx context.Context, loc *DeviceLocation) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Device{}, "id = ?", loc.DeviceID, "device"); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"latitude", "longitude", "radius", "last_updated"}),
		}).Create(loc).Error
	})
	return mapError(err, "device", loc.DeviceID)
}

// DeviceLocations returns the stored location of each listed device that
// has one. Rows missing either coordinate come back without a Location.
func (r *Repository) DeviceLocations(ctx context.Context, deviceIDs []string) ([]membership.DeviceLocation, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	var rows []DeviceLocation
	if err := r.conn(ctx).Where("device_id IN ?", deviceIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load device locations: %w", err)
	}

	out := make([]membership.DeviceLocation, 0, len(rows))
	for _, row := range rows {
		loc := membership.DeviceLocation{DeviceID: row.DeviceID, LastSeen: row.LastUpdated}
		if row.Latitude != nil && row.Longitude != nil {
			loc.Location = &geo.GeoPoint{Latitude: *row.Latitude, Longitude: *row.Longitude}
		}
		out = append(out, loc)
	}
	return out, nil
}

// LocationRows returns the raw location rows for the listed devices.
func (r *Repository) LocationRows(ctx context.Context, deviceIDs []string) ([]DeviceLocation, error) {
	if len(deviceIDs) == 0 {
		return nil, nil
	}
	var rows []DeviceLocation
	if err := r.conn(ctx).Where("device_id IN ?", deviceIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load device locations: %w", err)
	}
	return rows, nil
}

// ---- registrations ----

// RegisterDevice links a device to a geofence. Registering twice is a no-op.
func (r *Repository) RegisterDevice(ctx context.Context, geofenceID, deviceID string) error {
	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRow(tx, &Geofence{}, "id = ?", geofenceID, "geofence"); err != nil {
			return err
		}
		if err := requireRow(tx, &Device{}, "id = ?", deviceID, "device"); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&GeofenceDevice{GeofenceID: geofenceID, DeviceID: deviceID, CreatedAt: time.Now().UTC()}).Error
	})
	if isUniqueViolation(err) {
		return nil
	}
	return mapError(err, "geofence", geofenceID)
}

func (r *Repository) UnregisterDevice(ctx context.Context, geofenceID, deviceID string) error {
	res := r.conn(ctx).
		Where("geofence_id = ? AND device_id = ?", geofenceID, deviceID).
		Delete(&GeofenceDevice{})
	if res.Error != nil {
		return mapError(res.Error, "geofence", geofenceID)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("registration", geofenceID+"/"+deviceID)
	}
	return nil
}

// GeofenceDeviceIDs lists the devices registered to a geofence in
// registration order.
func (r *Repository) GeofenceDeviceIDs(ctx context.Context, geofenceID string) ([]string, error) {
	if _, err := r.GetGeofence(ctx, geofenceID); err != nil {
		return nil, err
	}

	var ids []string
	err := r.conn(ctx).Model(&GeofenceDevice{}).
		Where("geofence_id = ?", geofenceID).
		Order("created_at, device_id").
		Pluck("device_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list geofence devices: %w", err)
	}
	return ids, nil
}

// ---- helpers ----

func writeShape(tx *gorm.DB, id string, shape geofence.Shape) error {
	if err := tx.Where("geofence_id = ?", id).Delete(&GeofenceCircle{}).Error; err != nil {
		return err
	}
	if err := tx.Where("geofence_id = ?", id).Delete(&GeofencePolygonPoint{}).Error; err != nil {
		return err
	}

	switch s := shape.(type) {
	case geofence.Circle:
		return tx.Create(&GeofenceCircle{
			GeofenceID:      id,
			CenterLatitude:  s.Center.Latitude,
			CenterLongitude: s.Center.Longitude,
			Radius:          s.RadiusMeters,
		}).Error
	case geofence.Polygon:
		vertices := s.Vertices()
		points := make([]GeofencePolygonPoint, 0, len(vertices))
		for i, v := range vertices {
			points = append(points, GeofencePolygonPoint{
				GeofenceID: id,
				PointOrder: i,
				Latitude:   v.Latitude,
				Longitude:  v.Longitude,
			})
		}
		return tx.Create(&points).Error
	default:
		return fmt.Errorf("unsupported shape %T", shape)
	}
}

func lockGeofence(tx *gorm.DB, id string) error {
	var g Geofence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", id).
		Take(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("geofence", id)
	}
	return err
}

func requireRow(tx *gorm.DB, model interface{}, query string, id, kind string) error {
	var n int64
	if err := tx.Model(model).Where(query, id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(kind, id)
	}
	return nil
}

func corruptShape(id string, err error) error {
	return fmt.Errorf("%w: stored shape of geofence %s is invalid: %v", apperr.ErrPersistenceFailure, id, err)
}

// mapError folds gorm and PostgreSQL errors into the apperr taxonomy.
func mapError(err error, kind, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrConflict) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(kind, id)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s %q: %w", kind, id, apperr.ErrConflict)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s %q references a missing record: %w", kind, id, apperr.ErrNotFound)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
