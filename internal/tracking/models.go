package tracking

import "time"

type Geofence struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Type        string    `gorm:"column:geofence_type;size:16;not null" json:"type"`
	Description string    `json:"description"`
	Priority    string    `gorm:"size:16;not null" json:"priority"`
	Active      bool      `gorm:"not null" json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type GeofenceCircle struct {
	GeofenceID      string  `gorm:"primaryKey;size:64"`
	CenterLatitude  float64 `gorm:"not null"`
	CenterLongitude float64 `gorm:"not null"`
	Radius          float64 `gorm:"not null"`
}

type GeofencePolygonPoint struct {
	GeofenceID string  `gorm:"primaryKey;size:64"`
	PointOrder int     `gorm:"primaryKey;autoIncrement:false"`
	Latitude   float64 `gorm:"not null"`
	Longitude  float64 `gorm:"not null"`
}

// GeofenceCell links a geofence to a cell sector. Rows are owned by the
// association engine and only ever written through ReplaceAssociations.
type GeofenceCell struct {
	GeofenceID string    `gorm:"primaryKey;size:64"`
	ECI        string    `gorm:"column:eci;primaryKey;size:64"`
	Validity   string    `gorm:"size:8;not null"`
	CreatedAt  time.Time
}

type CellSector struct {
	ECI            string    `gorm:"column:eci;primaryKey;size:64" json:"eci"`
	Latitude       float64   `gorm:"not null" json:"latitude"`
	Longitude      float64   `gorm:"not null" json:"longitude"`
	CoverageRadius float64   `gorm:"column:coverage_radius;not null" json:"coverageRadius"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Device struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	PhoneNumber string    `json:"phoneNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DeviceLocation holds the latest fix of a device. Accuracy is stored in the
// legacy "radius" column.
type DeviceLocation struct {
	DeviceID    string     `gorm:"primaryKey;size:64" json:"deviceId"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	Accuracy    *float64   `gorm:"column:radius" json:"accuracy,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

// GeofenceDevice registers a device for membership checks against a
// geofence.
type GeofenceDevice struct {
	GeofenceID string `gorm:"primaryKey;size:64"`
	DeviceID   string `gorm:"primaryKey;size:64"`
	CreatedAt  time.Time
}

func (Geofence) TableName() string {
	return "geofences"
}

func (GeofenceCircle) TableName() string {
	return "geofence_circle"
}

func (GeofencePolygonPoint) TableName() string {
	return "geofence_polygon"
}

func (GeofenceCell) TableName() string {
	return "geofence_cells"
}

func (CellSector) TableName() string {
	return "cell_sectors"
}

func (Device) TableName() string {
	return "devices"
}

func (DeviceLocation) TableName() string {
	return "device_location"
}

func (GeofenceDevice) TableName() string {
	return "geofence_devices"
}
