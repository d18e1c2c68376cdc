package core

import "time"

// Audit actions recorded after successful waypoint writes.
const (
	ActionPlotted = "Waypoint Plotted"
	ActionUpdated = "Waypoint Updated"
	ActionDeleted = "Waypoint Deleted"
)

// AuditEntry is one line of the operator action log.
type AuditEntry struct {
	ID       string    `json:"id"`
	Time     time.Time `json:"timestamp"`
	Operator string    `json:"operator"`
	UserID   string    `json:"userId"`
	Action   string    `json:"action"`
	Details  string    `json:"details"`
	Subject  *Waypoint `json:"subject,omitempty"`
}
