// Package app wires configuration, the database, services, the scheduler,
// and the HTTP API into a runnable server.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mhollis/dedupd/internal/config"
	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/handlers"
	"github.com/mhollis/dedupd/internal/scheduler"
	"github.com/mhollis/dedupd/internal/services"
	"github.com/mhollis/dedupd/internal/storage"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// BindAddress is the address to bind to. Defaults to "" (all interfaces).
	BindAddress string
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	Scanner   *services.Scanner
	Scheduler *scheduler.Scheduler
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	// Load configuration from environment
	appCfg := config.Load()

	// Override port if specified
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}

	log.Printf("dedupd starting...")
	log.Printf("  Database: %s", appCfg.DBPath)
	log.Printf("  Port: %d", appCfg.Port)

	// Initialize database
	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Retention can be tuned at runtime through the settings table
	if val, err := database.GetSetting("retention_days"); err == nil && val != "" {
		if days, err := strconv.Atoi(val); err == nil && days >= 1 && days <= 365 {
			appCfg.RetentionDays = days
		}
	}
	log.Printf("  Retention: %d days", appCfg.RetentionDays)

	// Initialize storage backend and services
	backend := storage.NewLocal()
	scanner := services.NewScanner(database, backend, services.ScannerOptions{
		Workers:     appCfg.Workers,
		ChunkSize:   appCfg.ChunkSize,
		QueueDepth:  appCfg.QueueDepth,
		ScanTimeout: appCfg.ScanTimeout,
		Cache:       db.NewFingerprintCache(database),
	})
	deleter := services.NewDeleter(database, backend)

	// Initialize scheduler
	sched := scheduler.New(database, scanner)
	sched.Start()

	// Initialize handlers
	h := handlers.New(database, appCfg, scanner, deleter, sched)

	// Set up HTTP server
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Database:  database,
		Scanner:   scanner,
		Scheduler: sched,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Database != nil {
		s.Database.Close()
	}
}

// StartCleanupLoop starts a background goroutine that periodically cleans up old data.
// Returns a cancel function and a done channel.
func (s *Server) StartCleanupLoop() (cancel func(), done <-chan struct{}) {
	cleanupDone := make(chan struct{})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				log.Printf("Running cleanup (retention: %d days)", s.Config.RetentionDays)
				if err := s.Database.CleanupOldData(s.Config.RetentionDays); err != nil {
					log.Printf("Cleanup error: %v", err)
				}
			}
		}
	}()

	return cleanupCancel, cleanupDone
}
