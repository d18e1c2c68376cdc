package audit

import (
	"context"

	"github.com/c3i/globe/internal/storage"
	"github.com/c3i/globe/pkg/core"
)

// Store decorates a storage.Store and records every successful write on
// behalf of one actor. Lifecycle and subscriptions pass straight through,
// so several decorators may share one underlying store as long as only
// the owner calls Close.
type Store struct {
	storage.Store
	rec   *Recorder
	actor Actor
}

// Wrap returns inner decorated with auditing for actor.
func Wrap(inner storage.Store, rec *Recorder, actor Actor) *Store {
	return &Store{Store: inner, rec: rec, actor: actor}
}

func (s *Store) Add(ctx context.Context, wp core.Waypoint) (string, error) {
	id, err := s.Store.Add(ctx, wp)
	if err != nil {
		return "", err
	}
	wp.ID = id
	s.rec.Plotted(ctx, s.actor, wp)
	return id, nil
}

func (s *Store) Update(ctx context.Context, id string, patch core.WaypointPatch) error {
	if err := s.Store.Update(ctx, id, patch); err != nil {
		return err
	}
	s.rec.Updated(ctx, s.actor, id, patch)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	subject := s.rec.find(id)
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.rec.Deleted(ctx, s.actor, id, subject)
	return nil
}
