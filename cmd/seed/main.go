package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/config"
	"github.com/sectorwatch/fleet-backend/internal/db"
	"github.com/sectorwatch/fleet-backend/internal/membership"
	"github.com/sectorwatch/fleet-backend/internal/seeds"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func main() {
	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
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

	engine := association.NewEngine(repo, repo)
	svc := tracking.NewService(repo, engine, membership.NewService(repo, repo, nil))

	if err := seeds.SeedAll(context.Background(), repo, svc); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}
