package model

import (
	"time"

	"github.com/c3i/globe/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Waypoint{},
	&AuditEntry{},
}

// Waypoint is one document of the shared collection.
// Position is authoritative; Location mirrors Coords as a WGS84 WKB point
// for spatial consumers and is never read back into core types.
type Waypoint struct {
	ID        string      `json:"id" gorm:"primaryKey;size:36"`
	Label     string      `json:"label" gorm:"size:256"`
	Position  core.Vec3   `json:"position" gorm:"embedded;embeddedPrefix:position_"`
	Coords    core.LatLon `json:"coords" gorm:"embedded;embeddedPrefix:coords_"`
	Color     string      `json:"color" gorm:"size:32"`
	CreatedBy string      `json:"createdBy" gorm:"size:128;index:idx_waypoint_created_by"`
	CreatedAt time.Time   `json:"createdAt" gorm:"index:idx_waypoint_created_at"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Location  geom.Point  `json:"location"`
}

func (*Waypoint) TableName() string {
	return "waypoints"
}

// AuditEntry is one row of the operator action log.
// Subject holds the waypoint as it was when the action was recorded.
type AuditEntry struct {
	ID       string         `json:"id" gorm:"primaryKey;size:36"`
	Time     time.Time      `json:"timestamp" gorm:"index:idx_audit_time"`
	Operator string         `json:"operator" gorm:"size:128"`
	UserID   string         `json:"userId" gorm:"size:128;index:idx_audit_user"`
	Action   string         `json:"action" gorm:"size:64"`
	Details  string         `json:"details" gorm:"size:512"`
	Subject  datatypes.JSON `json:"subject"`
}

func (*AuditEntry) TableName() string {
	return "audit_log"
}
