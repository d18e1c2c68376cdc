// Package audit records operator actions on waypoints and fans each entry
// out to the configured sinks.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/c3i/globe/pkg/core"
	"github.com/google/uuid"
)

// Sink persists audit entries.
type Sink interface {
	Name() string
	Write(ctx context.Context, e core.AuditEntry) error
	Close() error
}

// Actor identifies who performed an action.
type Actor struct {
	Operator string
	UserID   string
}

// Lookup resolves a waypoint id to its current document.
type Lookup func(id string) (core.Waypoint, bool)

// Recorder builds entries and hands them to every sink. Sink failures are
// logged and never surface to the caller.
type Recorder struct {
	sinks  []Sink
	logger *slog.Logger
	lookup Lookup
	now    func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLookup lets the recorder attach the waypoint to update and delete entries.
func WithLookup(fn Lookup) Option {
	return func(r *Recorder) { r.lookup = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder creates a Recorder writing to sinks.
func NewRecorder(logger *slog.Logger, sinks []Sink, opts ...Option) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		sinks:  sinks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes one entry to every sink.
func (r *Recorder) Record(ctx context.Context, actor Actor, action, details string, subject *core.Waypoint) core.AuditEntry {
	e := core.AuditEntry{
		ID:       uuid.NewString(),
		Time:     r.now(),
		Operator: actor.Operator,
		UserID:   actor.UserID,
		Action:   action,
		Details:  details,
		Subject:  subject,
	}
	for _, s := range r.sinks {
		if err := s.Write(ctx, e); err != nil {
			r.logger.Warn("Audit sink failed", "sink", s.Name(), "action", action, "error", err)
		}
	}
	return e
}

// Plotted records a new waypoint.
func (r *Recorder) Plotted(ctx context.Context, actor Actor, wp core.Waypoint) core.AuditEntry {
	return r.Record(ctx, actor, core.ActionPlotted, fmt.Sprintf("%s ID: %s", wp.Coords, wp.ID), &wp)
}

// Updated records a label or color change. A patch touching both fields
// produces two entries.
func (r *Recorder) Updated(ctx context.Context, actor Actor, id string, patch core.WaypointPatch) []core.AuditEntry {
	subject := r.find(id)
	if subject != nil {
		patched := patch.Apply(*subject)
		subject = &patched
	}

	var out []core.AuditEntry
	if patch.Label != nil {
		out = append(out, r.Record(ctx, actor, core.ActionUpdated, "Name changed for ID: "+id, subject))
	}
	if patch.Color != nil {
		out = append(out, r.Record(ctx, actor, core.ActionUpdated, "Color changed for ID: "+id, subject))
	}
	return out
}

// Deleted records a removal. subject is the document before deletion, if known.
func (r *Recorder) Deleted(ctx context.Context, actor Actor, id string, subject *core.Waypoint) core.AuditEntry {
	return r.Record(ctx, actor, core.ActionDeleted, "ID: "+id, subject)
}

func (r *Recorder) find(id string) *core.Waypoint {
	if r.lookup == nil {
		return nil
	}
	wp, ok := r.lookup(id)
	if !ok {
		return nil
	}
	return &wp
}

// Close closes every sink.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
