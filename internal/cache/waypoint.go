package cache

import (
	"sync/atomic"

	"github.com/c3i/globe/pkg/core"
)

// WaypointCache holds the last snapshot delivered by a store subscription.
// Replace swaps the whole snapshot at once, so readers never see a mix of
// two notifications.
type WaypointCache struct {
	current atomic.Pointer[snapshot]
}

type snapshot struct {
	list []core.Waypoint
	byID map[string]int
}

// NewWaypointCache creates an empty cache.
func NewWaypointCache() *WaypointCache {
	c := &WaypointCache{}
	c.current.Store(&snapshot{byID: map[string]int{}})
	return c
}

// Replace installs a new snapshot. The cache keeps its own copy.
func (c *WaypointCache) Replace(wps []core.Waypoint) {
	s := &snapshot{
		list: core.CloneWaypoints(wps),
		byID: make(map[string]int, len(wps)),
	}
	for i, w := range s.list {
		s.byID[w.ID] = i
	}
	c.current.Store(s)
}

// Get retrieves a waypoint by id
func (c *WaypointCache) Get(id string) (core.Waypoint, bool) {
	s := c.current.Load()
	i, ok := s.byID[id]
	if !ok {
		return core.Waypoint{}, false
	}
	return s.list[i], true
}

// All returns a copy of the current snapshot in delivery order.
func (c *WaypointCache) All() []core.Waypoint {
	return core.CloneWaypoints(c.current.Load().list)
}

// Len returns the number of cached waypoints
func (c *WaypointCache) Len() int {
	return len(c.current.Load().list)
}
