package client

import "time"

// ProcessStatus is the desired-vs-observed view of one managed process.
type ProcessStatus struct {
	Name     string `json:"name"`
	Desired  string `json:"desired"`
	Observed string `json:"observed"`
	InSync   bool   `json:"in_sync"`
}

// Status is the supervisor's current view: calendar phase plus every
// managed process.
type Status struct {
	Now       time.Time       `json:"now"`
	Phase     string          `json:"phase"`
	Processes []ProcessStatus `json:"processes"`
}

// Calendar describes the active trading calendar.
type Calendar struct {
	Timezone     string   `json:"timezone"`
	Weekdays     []string `json:"weekdays"`
	SessionOpen  string   `json:"session_open"`
	SessionClose string   `json:"session_close"`
	Holidays     []string `json:"holidays"`
	Phase        string   `json:"phase"`
}

// AuditRecord is one audit-log entry as served by the supervisor.
type AuditRecord struct {
	ID      int64     `json:"ID"`
	Time    time.Time `json:"Time"`
	Trigger string    `json:"Trigger"`
	Target  string    `json:"Target"`
	Action  string    `json:"Action"`
	Outcome string    `json:"Outcome"`
	Detail  string    `json:"Detail"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}
