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
	"github.com/sectorwatch/fleet-backend/internal/sectors"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func main() {
	var (
		file       = flag.String("file", "", "path to a YAML sector catalog")
		recompute  = flag.Bool("recompute", false, "recompute every geofence after importing")
		activeOnly = flag.Bool("active-only", true, "with -recompute, skip inactive geofences")
	)
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	list, err := sectors.LoadFile(*file)
	if err != nil {
		log.Fatalf("load %s: %v", *file, err)
	}

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("DB connection error: %v", err)
	}
	defer db.Close(gdb)

	repo := tracking.NewRepository(gdb)
	if err := repo.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	n, err := repo.UpsertSectors(ctx, list)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	log.Printf("imported %d sectors from %s", n, *file)

	if !*recompute {
		return
	}

	svc := tracking.NewService(repo, association.NewEngine(repo, repo), nil)
	ok, err := svc.RecomputeAll(ctx, *activeOnly)
	log.Printf("recomputed %d geofences", ok)
	if err != nil {
		log.Fatalf("recompute failed: %v", err)
	}
}
