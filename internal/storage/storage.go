// Package storage defines the waypoint store contract shared by every
// backend, plus the subscriber fan-out they use to push snapshots.
package storage

import (
	"context"
	"errors"

	"github.com/c3i/globe/pkg/core"
)

var (
	// ErrNotFound is returned when a write targets an id that is not in the collection.
	ErrNotFound = errors.New("waypoint not found")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("store closed")
)

// Listener receives the complete current set of waypoints.
type Listener func([]core.Waypoint)

// ErrorListener receives subscription failures. The last delivered
// snapshot stays valid after an error.
type ErrorListener func(error)

// Unsubscribe cancels a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Store is the interface all waypoint backends must satisfy.
type Store interface {
	// Lifecycle
	Init() error
	Close() error

	// Subscribe fires once with the current set, then again after every
	// add, update or delete made by any client.
	Subscribe(onChange Listener, opts ...SubscribeOption) Unsubscribe

	// Add persists a new waypoint and returns its id. ID and CreatedAt
	// on the argument are ignored.
	Add(ctx context.Context, wp core.Waypoint) (string, error)

	// Update merges label and/or color into an existing waypoint.
	Update(ctx context.Context, id string, patch core.WaypointPatch) error

	// Delete removes a waypoint.
	Delete(ctx context.Context, id string) error
}

// SubscribeOption configures a subscription.
type SubscribeOption func(*subscribeConfig)

type subscribeConfig struct {
	onError ErrorListener
}

// WithErrorListener registers a callback for subscription failures.
func WithErrorListener(fn ErrorListener) SubscribeOption {
	return func(c *subscribeConfig) {
		c.onError = fn
	}
}

func applySubscribeOptions(opts []SubscribeOption) subscribeConfig {
	var cfg subscribeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
