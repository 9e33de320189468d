package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"logvault/internal/audit"
	"logvault/internal/config"
	"logvault/internal/database"
	"logvault/internal/handlers"
	"logvault/internal/locator"
	"logvault/internal/logging"
	"logvault/internal/pipeline"
	"logvault/internal/sweeper"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("WARNING: .env load: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config: %v", err)
	}

	closeLog, err := logging.Init(cfg.LogPath)
	if err != nil {
		log.Printf("WARNING: %v (logging to stdout only)", err)
	}
	defer closeLog()

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		log.Fatalf("Create temp dir: %v", err)
	}

	db, err := database.Open(cfg.ActivityDBPath)
	if err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close(db)

	auditor := audit.NewAuditor(db, cfg.AuditRetentionDays)

	strategy, err := locator.ForName(cfg.LocateStrategy)
	if err != nil {
		log.Fatalf("Locate strategy: %v", err)
	}
	log.Printf("Config: registry=%s strategy=%s zip_threshold=%dMiB connect_timeout=%s",
		cfg.RegistryPath, cfg.LocateStrategy, cfg.ZipThresholdMB, cfg.ConnectTimeout)

	svc := pipeline.New(pipeline.Options{
		RegistryPath:     cfg.RegistryPath,
		CredentialsPath:  cfg.CredentialsPath,
		TempDir:          cfg.TempDir,
		KeyPath:          cfg.SSHKeyPath,
		PreferKeyAuth:    cfg.PreferKeyAuth(),
		Strategy:         strategy,
		ConnectTimeout:   cfg.ConnectTimeout,
		ArchiveThreshold: cfg.ZipThresholdBytes(),
	})

	sw := sweeper.New(cfg.TempDir, cfg.TempMaxAge, auditor)
	if err := sw.Start(cfg.SweepSchedule); err != nil {
		log.Printf("WARNING: sweeper not started: %v", err)
	}

	api := &handlers.API{Svc: svc, Auditor: auditor}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", api.HealthCheck)
	r.Get("/projects", api.ListProjects)
	r.Get("/modules/{project}", api.ListModules)
	r.Get("/download", api.DownloadLog)
	r.Get("/activity", api.ListActivity)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	auditor.Log(audit.Entry{EventType: audit.EventServerStarted, Details: "ready to serve requests"})

	<-sigCtx.Done()
	log.Println("Shutting down...")

	sw.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
