package room

import (
	"sync"

	"github.com/aolo2/desk/internal/db"
)

// Registry maps desk ids to their live rooms. Rooms are created lazily on
// the first connection that references a desk and stay resident for the
// life of the process; a desk's persisted strokes outlive every session
// either way.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]*Room
	store *db.Store
}

func NewRegistry(store *db.Store) *Registry {
	return &Registry{
		rooms: make(map[int64]*Room),
		store: store,
	}
}

// GetOrCreate returns the room for a desk, starting its run loop on first
// reference.
func (reg *Registry) GetOrCreate(deskID int64) *Room {
	reg.mu.RLock()
	r, ok := reg.rooms[deskID]
	reg.mu.RUnlock()
	if ok {
		return r
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r, ok := reg.rooms[deskID]; ok {
		return r
	}
	r = newRoom(deskID, reg.store)
	reg.rooms[deskID] = r
	return r
}

// ActiveDesks returns the session count of every desk that currently has
// at least one attached session.
func (reg *Registry) ActiveDesks() map[int64]int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	active := make(map[int64]int)
	for id, r := range reg.rooms {
		if n := r.SessionCount(); n > 0 {
			active[id] = n
		}
	}
	return active
}

// RoomCount returns the number of desks with attached sessions.
func (reg *Registry) RoomCount() int {
	return len(reg.ActiveDesks())
}

// SessionCount returns the total number of attached sessions across desks.
func (reg *Registry) SessionCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	total := 0
	for _, r := range reg.rooms {
		total += r.SessionCount()
	}
	return total
}
