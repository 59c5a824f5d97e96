// Package types holds shared wire types used by services and handlers.
package types

// ScanProgress is a progress snapshot streamed to SSE subscribers.
type ScanProgress struct {
	FilesScanned int64  `json:"files_scanned"`
	BytesScanned int64  `json:"bytes_scanned"`
	GroupsFound  int64  `json:"groups_found"`
	WastedBytes  int64  `json:"wasted_bytes"`
	Status       string `json:"status"`
}
