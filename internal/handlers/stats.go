package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"
)

// StatsView is the response of GET /api/stats
type StatsView struct {
	TotalFreed    int64          `json:"total_freed"`
	TotalFreedStr string         `json:"total_freed_str"`
	PendingGroups int            `json:"pending_groups"`
	RecentScans   int            `json:"recent_scans"`
	LatestRuns    []*ScanRunView `json:"latest_runs"`
}

// Stats handles GET /api/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	totalFreed, pendingGroups, recentScans, err := h.db.GetDashboardStats()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	runs, err := h.db.ListScanRuns(5, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	latest := make([]*ScanRunView, 0, len(runs))
	for _, run := range runs {
		latest = append(latest, scanRunView(run))
	}

	respondJSON(w, http.StatusOK, StatsView{
		TotalFreed:    totalFreed,
		TotalFreedStr: humanize.IBytes(uint64(totalFreed)),
		PendingGroups: pendingGroups,
		RecentScans:   recentScans,
		LatestRuns:    latest,
	})
}
