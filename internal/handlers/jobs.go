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

func jobScanConfig(job *db.ScheduledJob) *services.ScanConfig {
	return &services.ScanConfig{
		Paths:           job.Paths,
		MinSize:         job.MinSize,
		MaxSize:         job.MaxSize,
		IncludePatterns: job.IncludePatterns,
		ExcludePatterns: job.ExcludePatterns,
		IncludeHidden:   job.IncludeHidden,
	}
}

// JobRequest is the body of POST /api/jobs and PUT /api/jobs/{id}
type JobRequest struct {
	Name            string   `json:"name"`
	Paths           []string `json:"paths"`
	MinSize         string   `json:"min_size,omitempty"`
	MaxSize         string   `json:"max_size,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	IncludeHidden   bool     `json:"include_hidden,omitempty"`
	CronExpression  string   `json:"cron_expression"`
	Enabled         bool     `json:"enabled"`
}

// JobView is the JSON representation of a scheduled job
type JobView struct {
	ID              int64    `json:"id"`
	Name            string   `json:"name"`
	Paths           []string `json:"paths"`
	MinSize         int64    `json:"min_size"`
	MaxSize         *int64   `json:"max_size,omitempty"`
	IncludePatterns []string `json:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`
	IncludeHidden   bool     `json:"include_hidden"`
	CronExpression  string   `json:"cron_expression"`
	Enabled         bool     `json:"enabled"`
	LastRunAt       *string  `json:"last_run_at,omitempty"`
	NextRunAt       *string  `json:"next_run_at,omitempty"`
}

func jobView(j *db.ScheduledJob) *JobView {
	v := &JobView{
		ID:              j.ID,
		Name:            j.Name,
		Paths:           j.Paths,
		MinSize:         j.MinSize,
		MaxSize:         j.MaxSize,
		IncludePatterns: j.IncludePatterns,
		ExcludePatterns: j.ExcludePatterns,
		IncludeHidden:   j.IncludeHidden,
		CronExpression:  j.CronExpression,
		Enabled:         j.Enabled,
	}
	if j.LastRunAt != nil {
		s := j.LastRunAt.Format("2006-01-02T15:04:05Z07:00")
		v.LastRunAt = &s
	}
	if j.NextRunAt != nil {
		s := j.NextRunAt.Format("2006-01-02T15:04:05Z07:00")
		v.NextRunAt = &s
	}
	return v
}

// applyJobRequest validates req and copies it onto job. Returns a non-empty
// message on validation failure.
func (h *Handler) applyJobRequest(req *JobRequest, job *db.ScheduledJob) string {
	if req.Name == "" {
		return "name is required"
	}
	if len(req.Paths) == 0 {
		return "at least one path is required"
	}
	if err := h.scheduler.ValidateCronExpression(req.CronExpression); err != nil {
		return "invalid cron expression: " + err.Error()
	}

	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		p = config.ExpandPath(p)
		if !h.cfg.IsPathAllowed(p) {
			return "path not allowed: " + p
		}
		paths = append(paths, p)
	}

	job.Name = req.Name
	job.Paths = paths
	job.IncludePatterns = req.IncludePatterns
	job.ExcludePatterns = req.ExcludePatterns
	job.IncludeHidden = req.IncludeHidden
	job.CronExpression = req.CronExpression
	job.Enabled = req.Enabled

	job.MinSize = 0
	if req.MinSize != "" {
		n, err := humanize.ParseBytes(req.MinSize)
		if err != nil {
			return "invalid min_size"
		}
		job.MinSize = int64(n)
	}
	job.MaxSize = nil
	if req.MaxSize != "" {
		n, err := humanize.ParseBytes(req.MaxSize)
		if err != nil {
			return "invalid max_size"
		}
		maxSize := int64(n)
		job.MaxSize = &maxSize
	}
	return ""
}

// Jobs handles /api/jobs: POST creates a job, GET lists them.
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createJob(w, r)
	case http.MethodGet:
		h.listJobs(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var job db.ScheduledJob
	if msg := h.applyJobRequest(&req, &job); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	created, err := h.db.CreateScheduledJob(&job)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := h.scheduler.UpdateNextRun(created); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, jobView(created))
}

func (h *Handler) listJobs(w http.ResponseWriter, _ *http.Request) {
	jobs, err := h.db.ListScheduledJobs()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]*JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobView(j))
	}
	respondJSON(w, http.StatusOK, views)
}

// JobRoutes handles /api/jobs/{id} and its subresources.
func (h *Handler) JobRoutes(w http.ResponseWriter, r *http.Request) {
	// /api/jobs/{id}[/action]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	jobID, err := strconv.ParseInt(parts[2], 10, 64)
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
		h.getJob(w, r, jobID)
	case action == "" && r.Method == http.MethodPut:
		h.updateJob(w, r, jobID)
	case action == "" && r.Method == http.MethodDelete:
		h.deleteJob(w, r, jobID)
	case action == "enable" && r.Method == http.MethodPost:
		h.setJobEnabled(w, r, jobID, true)
	case action == "disable" && r.Method == http.MethodPost:
		h.setJobEnabled(w, r, jobID, false)
	case action == "run" && r.Method == http.MethodPost:
		h.runJobNow(w, r, jobID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getJob(w http.ResponseWriter, _ *http.Request, jobID int64) {
	job, err := h.db.GetScheduledJob(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, jobView(job))
}

func (h *Handler) updateJob(w http.ResponseWriter, r *http.Request, jobID int64) {
	job, err := h.db.GetScheduledJob(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := h.applyJobRequest(&req, job); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.scheduler.UpdateNextRun(job); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, jobView(job))
}

func (h *Handler) deleteJob(w http.ResponseWriter, _ *http.Request, jobID int64) {
	if _, err := h.db.GetScheduledJob(jobID); err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := h.db.DeleteScheduledJob(jobID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) setJobEnabled(w http.ResponseWriter, _ *http.Request, jobID int64, enabled bool) {
	job, err := h.db.GetScheduledJob(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	if err := h.db.SetJobEnabled(jobID, enabled); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if enabled {
		job.Enabled = true
		if err := h.scheduler.UpdateNextRun(job); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (h *Handler) runJobNow(w http.ResponseWriter, r *http.Request, jobID int64) {
	job, err := h.db.GetScheduledJob(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	cfg := jobScanConfig(job)
	run, err := h.scanner.StartScan(r.Context(), cfg, &job.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, scanRunView(run))
}
