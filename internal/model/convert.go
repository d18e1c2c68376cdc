package model

import (
	"encoding/json"

	"github.com/c3i/globe/internal/geo"
	"github.com/c3i/globe/pkg/core"
	"gorm.io/datatypes"
)

// WaypointFromCore converts a core waypoint into its table row.
func WaypointFromCore(w core.Waypoint) Waypoint {
	return Waypoint{
		ID:        w.ID,
		Label:     w.Label,
		Position:  w.Position,
		Coords:    w.Coords,
		Color:     w.Color,
		CreatedBy: w.CreatedBy,
		CreatedAt: w.CreatedAt,
		Location:  geo.Point4326(w.Coords),
	}
}

// ToCore converts a row back into a core waypoint.
func (w Waypoint) ToCore() core.Waypoint {
	return core.Waypoint{
		ID:        w.ID,
		Label:     w.Label,
		Position:  w.Position,
		Coords:    w.Coords,
		Color:     w.Color,
		CreatedBy: w.CreatedBy,
		CreatedAt: w.CreatedAt.UTC(),
	}
}

// WaypointsToCore converts a result set.
func WaypointsToCore(rows []Waypoint) []core.Waypoint {
	out := make([]core.Waypoint, len(rows))
	for i, r := range rows {
		out[i] = r.ToCore()
	}
	return out
}

// AuditEntryFromCore converts an audit entry into its table row.
func AuditEntryFromCore(e core.AuditEntry) (AuditEntry, error) {
	row := AuditEntry{
		ID:       e.ID,
		Time:     e.Time,
		Operator: e.Operator,
		UserID:   e.UserID,
		Action:   e.Action,
		Details:  e.Details,
	}
	if e.Subject != nil {
		raw, err := json.Marshal(e.Subject)
		if err != nil {
			return AuditEntry{}, err
		}
		row.Subject = datatypes.JSON(raw)
	}
	return row, nil
}

// ToCore converts a row back into a core audit entry.
func (a AuditEntry) ToCore() (core.AuditEntry, error) {
	e := core.AuditEntry{
		ID:       a.ID,
		Time:     a.Time.UTC(),
		Operator: a.Operator,
		UserID:   a.UserID,
		Action:   a.Action,
		Details:  a.Details,
	}
	if len(a.Subject) > 0 {
		var wp core.Waypoint
		if err := json.Unmarshal(a.Subject, &wp); err != nil {
			return core.AuditEntry{}, err
		}
		e.Subject = &wp
	}
	return e, nil
}
