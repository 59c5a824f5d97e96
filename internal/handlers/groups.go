package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mhollis/dedupd/internal/db"
	"github.com/mhollis/dedupd/internal/engine"
)

// GroupView is the JSON representation of a duplicate group
type GroupView struct {
	ID             int64    `json:"id"`
	ScanRunID      int64    `json:"scan_run_id"`
	FileHash       string   `json:"file_hash"`
	FileSize       int64    `json:"file_size"`
	FileSizeStr    string   `json:"file_size_str"`
	FileCount      int      `json:"file_count"`
	WastedBytes    int64    `json:"wasted_bytes"`
	WastedBytesStr string   `json:"wasted_bytes_str"`
	Status         string   `json:"status"`
	Files          []string `json:"files"`
}

func groupView(g *db.DuplicateGroup) *GroupView {
	return &GroupView{
		ID:             g.ID,
		ScanRunID:      g.ScanRunID,
		FileHash:       g.FileHash,
		FileSize:       g.FileSize,
		FileSizeStr:    humanize.IBytes(uint64(g.FileSize)),
		FileCount:      g.FileCount,
		WastedBytes:    g.WastedBytes,
		WastedBytesStr: humanize.IBytes(uint64(g.WastedBytes)),
		Status:         string(g.Status),
		Files:          g.Files,
	}
}

// DeleteRequest is the body of POST /api/groups/{id}/delete
type DeleteRequest struct {
	Paths []string `json:"paths"`
}

// GroupRoutes handles /api/groups/{id} and its subresources.
func (h *Handler) GroupRoutes(w http.ResponseWriter, r *http.Request) {
	// /api/groups/{id}[/action]
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 {
		http.NotFound(w, r)
		return
	}
	groupID, err := strconv.ParseInt(parts[2], 10, 64)
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
		h.getGroup(w, r, groupID)
	case action == "delete" && r.Method == http.MethodPost:
		h.deleteFromGroup(w, r, groupID)
	case action == "ignore" && r.Method == http.MethodPost:
		h.setGroupStatus(w, r, groupID, db.DuplicateGroupStatusIgnored)
	case action == "restore" && r.Method == http.MethodPost:
		h.setGroupStatus(w, r, groupID, db.DuplicateGroupStatusPending)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) getGroup(w http.ResponseWriter, _ *http.Request, groupID int64) {
	group, err := h.db.GetDuplicateGroup(groupID)
	if err != nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	respondJSON(w, http.StatusOK, groupView(group))
}

func (h *Handler) deleteFromGroup(w http.ResponseWriter, r *http.Request, groupID int64) {
	var req DeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.deleter.DeleteFromGroup(r.Context(), groupID, req.Paths)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUnsafeDeletion):
			respondError(w, http.StatusConflict, "refusing to delete every copy in the group")
		case errors.Is(err, engine.ErrEmptyGroup):
			respondError(w, http.StatusConflict, "group no longer has duplicates")
		case errors.Is(err, engine.ErrUnknownMember):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusNotFound, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) setGroupStatus(w http.ResponseWriter, _ *http.Request, groupID int64, status db.DuplicateGroupStatus) {
	if _, err := h.db.GetDuplicateGroup(groupID); err != nil {
		respondError(w, http.StatusNotFound, "group not found")
		return
	}
	if err := h.db.UpdateDuplicateGroupStatus(groupID, status); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

// Deletions handles GET /api/deletions: the deletion audit log.
func (h *Handler) Deletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deletions, err := h.db.ListDeletions(queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type deletionView struct {
		ID             int64            `json:"id"`
		GroupID        int64            `json:"group_id"`
		ScanRunID      int64            `json:"scan_run_id"`
		FilesRequested int              `json:"files_requested"`
		FilesDeleted   int              `json:"files_deleted"`
		FilesFailed    int              `json:"files_failed"`
		BytesFreed     int64            `json:"bytes_freed"`
		BytesFreedStr  string           `json:"bytes_freed_str"`
		Results        []db.FileOutcome `json:"results"`
		CreatedAt      string           `json:"created_at"`
	}
	views := make([]deletionView, 0, len(deletions))
	for _, d := range deletions {
		views = append(views, deletionView{
			ID:             d.ID,
			GroupID:        d.GroupID,
			ScanRunID:      d.ScanRunID,
			FilesRequested: d.FilesRequested,
			FilesDeleted:   d.FilesDeleted,
			FilesFailed:    d.FilesFailed,
			BytesFreed:     d.BytesFreed,
			BytesFreedStr:  humanize.IBytes(uint64(d.BytesFreed)),
			Results:        d.Results,
			CreatedAt:      d.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	respondJSON(w, http.StatusOK, views)
}
