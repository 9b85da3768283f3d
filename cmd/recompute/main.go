package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/config"
	"github.com/sectorwatch/fleet-backend/internal/db"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func main() {
	var (
		id         = flag.String("id", "", "recompute a single geofence")
		activeOnly = flag.Bool("active-only", false, "skip inactive geofences when recomputing all")
	)
	flag.Parse()

	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	repo := tracking.NewRepository(gdb)
	svc := tracking.NewService(repo, association.NewEngine(repo, repo), nil)

	if *id != "" {
		res, err := svc.RecomputeGeofence(ctx, *id)
		if err != nil {
			log.Fatalf("recompute %s failed: %v", *id, err)
		}
		log.Printf("geofence %s: %d sectors matched out of %d", res.GeofenceID, res.MatchedCount, res.Scanned)
		return
	}

	ok, err := svc.RecomputeAll(ctx, *activeOnly)
	log.Printf("recomputed %d geofences", ok)
	if err != nil {
		log.Fatalf("recompute failed: %v", err)
	}
}
