package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mhollis/dedupd/internal/config"
	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/services"
)

// CreateScanRequest is the body of POST /api/scans
type CreateScanRequest struct {
	Paths           []string `json:"paths"`
	MinSize         string   `json:"min_size,omitempty"` // human-readable, e.g. "1 MiB"
	MaxSize         string   `json:"max_size,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	IncludeHidden   bool     `json:"include_hidden,omitempty"`
}

// ScanRunView is the JSON representation of a scan run
type ScanRunView struct {
	ID              int64    `json:"id"`
	ScheduledJobID  *int64   `json:"scheduled_job_id,omitempty"`
	Paths           []string `json:"paths"`
	Status          string   `json:"status"`
	StartedAt       string   `json:"started_at"`
	CompletedAt     *string  `json:"completed_at,omitempty"`
	FilesScanned    int64    `json:"files_scanned"`
	BytesScanned    int64    `json:"bytes_scanned"`
	BytesScannedStr string   `json:"bytes_scanned_str"`
	DuplicateGroups int64    `json:"duplicate_groups"`
	DuplicateFiles  int64    `json:"duplicate_files"`
	WastedBytes     int64    `json:"wasted_bytes"`
	WastedBytesStr  string   `json:"wasted_bytes_str"`
	ErrorMessage    *string  `json:"error_message,omitempty"`
}

func scanRunView(run *db.ScanRun) *ScanRunView {
	v := &ScanRunView{
		ID:              run.ID,
		ScheduledJobID:  run.ScheduledJobID,
		Paths:           run.Paths,
		Status:          string(run.Status),
		StartedAt:       run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FilesScanned:    run.FilesScanned,
		BytesScanned:    run.BytesScanned,
		BytesScannedStr: humanize.IBytes(uint64(run.BytesScanned)),
		DuplicateGroups: run.DuplicateGroups,
		DuplicateFiles:  run.DuplicateFiles,
		WastedBytes:     run.WastedBytes,
		WastedBytesStr:  humanize.IBytes(uint64(run.WastedBytes)),
		ErrorMessage:    run.ErrorMessage,
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		v.CompletedAt = &s
	}
	return v
}

// Scans handles /api/scans: POST starts a scan, GET lists history.
func (h *Handler) Scans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createScan(w, r)
	case http.MethodGet:
		h.listScans(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) createScan(w http.ResponseWriter, r *http.Request) {
	var req CreateScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Paths) == 0 {
		respondError(w, http.StatusBadRequest, "at least one path is required")
		return
	}

	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		p = config.ExpandPath(p)
		if !h.cfg.IsPathAllowed(p) {
			respondError(w, http.StatusForbidden, "path not allowed: "+p)
			return
		}
		paths = append(paths, p)
	}

	cfg := &services.ScanConfig{
		Paths:           paths,
		IncludePatterns: req.IncludePatterns,
		ExcludePatterns: req.ExcludePatterns,
		IncludeHidden:   req.IncludeHidden,
	}
	if req.MinSize != "" {
		n, err := humanize.ParseBytes(req.MinSize)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid min_size")
			return
		}
		cfg.MinSize = int64(n)
	}
	if req.MaxSize != "" {
		n, err := humanize.ParseBytes(req.MaxSize)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid max_size")
			return
		}
		maxSize := int64(n)
		cfg.MaxSize = &maxSize
	}

	run, err := h.scanner.StartScan(r.Context(), cfg, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, scanRunView(run))
}

func (h *Handler) listScans(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	runs, err := h.db.ListScanRuns(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]*ScanRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, scanRunView(run))
	}
	respondJSON(w, http.StatusOK, views)
}

// ScanRoutes handles /api/scans/{id} and its subresources.
func (h *Handler) ScanRoutes(w http.ResponseWriter, r *http.Request) {
	// /api/scans/{id}[/action]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	runID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	action := ""
	if len(parts) > 3 {
		action = parts[3]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		h.getScan(w, r, runID)
	case action == "cancel" && r.Method == http.MethodPost:
		h.cancelScan(w, r, runID)
	case action == "groups" && r.Method == http.MethodGet:
		h.scanGroups(w, r, runID)
	case action == "errors" && r.Method == http.MethodGet:
		h.scanErrors(w, r, runID)
	case action == "events" && r.Method == http.MethodGet:
		h.streamScanProgress(w, r, runID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getScan(w http.ResponseWriter, _ *http.Request, runID int64) {
	run, err := h.db.GetScanRun(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}
	respondJSON(w, http.StatusOK, scanRunView(run))
}

func (h *Handler) cancelScan(w http.ResponseWriter, _ *http.Request, runID int64) {
	run, err := h.db.GetScanRun(runID)
	if err != nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}
	if run.Status != db.ScanRunStatusRunning {
		respondError(w, http.StatusConflict, "scan is not running")
		return
	}
	h.scanner.CancelScan(runID)
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

func (h *Handler) scanGroups(w http.ResponseWriter, r *http.Request, runID int64) {
	if _, err := h.db.GetScanRun(runID); err != nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	q := db.DuplicateGroupQuery{
		ScanRunID: runID,
		Status:    r.URL.Query().Get("status"),
		SortBy:    r.URL.Query().Get("sort"),
		SortOrder: r.URL.Query().Get("order"),
		Limit:     queryInt(r, "limit", 100),
		Offset:    queryInt(r, "offset", 0),
	}
	groups, err := h.db.ListDuplicateGroupsPaginated(q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]*GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView(g))
	}
	respondJSON(w, http.StatusOK, views)
}

func (h *Handler) scanErrors(w http.ResponseWriter, _ *http.Request, runID int64) {
	if _, err := h.db.GetScanRun(runID); err != nil {
		respondError(w, http.StatusNotFound, "scan not found")
		return
	}

	errs, err := h.db.ListScanErrors(runID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type errorView struct {
		Path    string `json:"path"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	views := make([]errorView, 0, len(errs))
	for _, e := range errs {
		views = append(views, errorView{Path: e.Path, Kind: e.Kind, Message: e.Message})
	}
	respondJSON(w, http.StatusOK, views)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if val := r.URL.Query().Get(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil && i >= 0 {
			return i
		}
	}
	return defaultVal
}
