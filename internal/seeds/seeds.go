// Package seeds loads a demo sector catalog, devices and geofences so a
// fresh database has something to associate and evaluate.
package seeds

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/sectorwatch/fleet-backend/internal/apperr"
	"github.com/sectorwatch/fleet-backend/internal/sectors"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

//go:embed data/sectors.yaml data/demo.json
var data embed.FS

// DeviceSeed is a demo device with an optional initial fix.
type DeviceSeed struct {
	tracking.DeviceInput
	Location *tracking.LocationInput `json:"location"`
}

// GeofenceSeed is a demo geofence and the devices registered to it.
type GeofenceSeed struct {
	tracking.GeofenceInput
	Devices []string `json:"devices"`
}

// Demo is the content of data/demo.json.
type Demo struct {
	Devices   []DeviceSeed   `json:"devices"`
	Geofences []GeofenceSeed `json:"geofences"`
}

// SeedAll imports the demo sectors, then devices, then geofences. Rows that
// already exist are skipped, so it can run repeatedly.
func SeedAll(ctx context.Context, repo *tracking.Repository, svc *tracking.Service) error {
	if err := SeedSectors(ctx, repo); err != nil {
		return err
	}

	demo, err := LoadDemo()
	if err != nil {
		return err
	}
	if err := SeedDevices(ctx, svc, demo.Devices); err != nil {
		return err
	}
	return SeedGeofences(ctx, svc, demo.Geofences)
}

// SeedSectors upserts the embedded sector catalog.
func SeedSectors(ctx context.Context, repo *tracking.Repository) error {
	raw, err := data.ReadFile("data/sectors.yaml")
	if err != nil {
		return fmt.Errorf("could not read sectors.yaml: %w", err)
	}
	list, err := sectors.Parse(raw)
	if err != nil {
		return fmt.Errorf("failed to parse sectors.yaml: %w", err)
	}
	n, err := repo.UpsertSectors(ctx, list)
	if err != nil {
		return fmt.Errorf("failed to upsert sectors: %w", err)
	}
	log.Printf("Seeded %d sectors", n)
	return nil
}

// LoadDemo decodes the embedded demo devices and geofences.
func LoadDemo() (*Demo, error) {
	raw, err := data.ReadFile("data/demo.json")
	if err != nil {
		return nil, fmt.Errorf("could not read demo.json: %w", err)
	}
	var demo Demo
	if err := json.Unmarshal(raw, &demo); err != nil {
		return nil, fmt.Errorf("failed to parse demo.json: %w", err)
	}
	return &demo, nil
}

func SeedDevices(ctx context.Context, svc *tracking.Service, devices []DeviceSeed) error {
	created := 0
	for _, d := range devices {
		_, err := svc.CreateDevice(ctx, d.DeviceInput)
		if errors.Is(err, apperr.ErrConflict) {
			log.Printf("Device exists, skipping: %s", d.ID)
			continue
		} else if err != nil {
			return fmt.Errorf("failed to create device %s: %w", d.ID, err)
		}
		created++

		if d.Location == nil {
			continue
		}
		if _, err := svc.ReportLocation(ctx, d.ID, *d.Location); err != nil {
			return fmt.Errorf("failed to report location of %s: %w", d.ID, err)
		}
	}

	log.Printf("Seeded %d devices", created)
	return nil
}

// SeedGeofences creates each geofence unless one with the same name exists,
// then registers its devices.
func SeedGeofences(ctx context.Context, svc *tracking.Service, geofences []GeofenceSeed) error {
	existing, err := svc.ListGeofences(ctx)
	if err != nil {
		return fmt.Errorf("failed to list geofences: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, g := range existing {
		byName[g.Name] = g.ID
	}

	created := 0
	for _, g := range geofences {
		id, ok := byName[g.Name]
		if ok {
			log.Printf("Geofence exists, skipping: %s", g.Name)
		} else {
			res, err := svc.CreateGeofence(ctx, g.GeofenceInput)
			if err != nil {
				return fmt.Errorf("failed to create geofence %s: %w", g.Name, err)
			}
			id = res.GeofenceID
			byName[g.Name] = id
			created++
		}

		for _, deviceID := range g.Devices {
			if err := svc.RegisterDevice(ctx, id, deviceID); err != nil {
				return fmt.Errorf("failed to register %s to %s: %w", deviceID, g.Name, err)
			}
		}
	}

	log.Printf("Seeded %d geofences", created)
	return nil
}
