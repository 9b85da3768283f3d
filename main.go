package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/sectorwatch/fleet-backend/internal/association"
	"github.com/sectorwatch/fleet-backend/internal/config"
	"github.com/sectorwatch/fleet-backend/internal/db"
	"github.com/sectorwatch/fleet-backend/internal/httputil"
	"github.com/sectorwatch/fleet-backend/internal/membership"
	"github.com/sectorwatch/fleet-backend/internal/middleware"
	"github.com/sectorwatch/fleet-backend/internal/observability"
	"github.com/sectorwatch/fleet-backend/internal/tracking"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	response := "Server is up!"
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, response)
}

func main() {
	_ = godotenv.Load(".env.local")

	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		log.Fatalf("tracing init failed: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close(gdb)

	repo := tracking.NewRepository(gdb)
	if err := repo.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Fatalf("metrics init failed: %v", err)
	}

	engine := association.NewEngine(repo, repo, association.WithRecorder(collector))
	members := membership.NewService(repo, repo, collector)
	svc := tracking.NewService(repo, engine, members)
	limiter := middleware.NewRateLimiter(cfg.RecomputeRateLimit, cfg.RecomputeBurst)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(collector.Middleware)

	r.Get("/", RootHandler)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := gdb.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", collector.Handler())
	r.Mount("/api", tracking.SetupRoutes(tracking.NewHandlers(svc), limiter.Middleware))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port :%s...", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
