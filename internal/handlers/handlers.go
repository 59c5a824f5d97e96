// Package handlers implements the JSON HTTP API.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/mhollis/dedupd/internal/config"
	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/scheduler"
	"github.com/mhollis/dedupd/internal/services"
)

// Handler holds all HTTP handlers
type Handler struct {
	db        *db.DB
	cfg       *config.Config
	scanner   *services.Scanner
	deleter   *services.Deleter
	scheduler *scheduler.Scheduler
}

// New creates a new Handler
func New(database *db.DB, cfg *config.Config, scanner *services.Scanner, deleter *services.Deleter, sched *scheduler.Scheduler) *Handler {
	return &Handler{
		db:        database,
		cfg:       cfg,
		scanner:   scanner,
		deleter:   deleter,
		scheduler: sched,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Scans
	mux.HandleFunc("/api/scans", h.Scans)
	mux.HandleFunc("/api/scans/", h.ScanRoutes)

	// Groups
	mux.HandleFunc("/api/groups/", h.GroupRoutes)

	// Deletion history
	mux.HandleFunc("/api/deletions", h.Deletions)

	// Jobs
	mux.HandleFunc("/api/jobs", h.Jobs)
	mux.HandleFunc("/api/jobs/", h.JobRoutes)

	// Stats
	mux.HandleFunc("/api/stats", h.Stats)

	// SSE
	mux.HandleFunc("/sse/scan/", h.ScanProgressSSE)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] failed to encode response: %v", err)
	}
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
