package core

import (
	"sync"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomState holds one room's member set behind its own lock, so mutation in
// one room never contends with another.
type roomState struct {
	mu      sync.Mutex
	members map[SessionID]struct{}
	// dead marks a reaped room; a Join racing the reaper must retry.
	dead bool
}

func (r *roomState) snapshotLocked() []SessionID {
	out := make([]SessionID, 0, len(r.members))
	for sid := range r.members {
		out = append(out, sid)
	}
	return out
}

// RoomRegistry maps room ids to the set of currently-connected sessions.
// Rooms are created on first join and reaped when the last member leaves.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[domain.RoomID]*roomState)}
}

// Join adds sid to the room and returns the other members as they were
// immediately before the join. Joins and leaves on the same room are
// totally ordered by the room lock.
func (reg *RoomRegistry) Join(roomID domain.RoomID, sid SessionID) []SessionID {
	for {
		rm := reg.getOrCreate(roomID)

		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			continue
		}
		others := rm.snapshotLocked()
		rm.members[sid] = struct{}{}
		rm.mu.Unlock()

		log.Debug().Str("module", "core.registry").Str("room", string(roomID)).Str("sid", string(sid)).Int("others", len(others)).Msg("joined")
		return others
	}
}

// Leave removes sid and returns the remaining members. Leaving twice, or
// leaving a room that was never joined, is a no-op.
func (reg *RoomRegistry) Leave(roomID domain.RoomID, sid SessionID) []SessionID {
	reg.mu.RLock()
	rm, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	if _, member := rm.members[sid]; !member {
		remaining := rm.snapshotLocked()
		rm.mu.Unlock()
		return remaining
	}
	delete(rm.members, sid)
	remaining := rm.snapshotLocked()
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		reg.reap(roomID, rm)
	}
	log.Debug().Str("module", "core.registry").Str("room", string(roomID)).Str("sid", string(sid)).Int("remaining", len(remaining)).Msg("left")
	return remaining
}

// Members returns a read-only snapshot of the room's member set.
func (reg *RoomRegistry) Members(roomID domain.RoomID) []SessionID {
	reg.mu.RLock()
	rm, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked()
}

// Contains reports whether sid is currently a member of the room.
func (reg *RoomRegistry) Contains(roomID domain.RoomID, sid SessionID) bool {
	reg.mu.RLock()
	rm, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	_, member := rm.members[sid]
	return member
}

// Rooms lists the ids of all live rooms.
func (reg *RoomRegistry) Rooms() []domain.RoomID {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(reg.rooms))
	for id := range reg.rooms {
		out = append(out, id)
	}
	return out
}

func (reg *RoomRegistry) getOrCreate(roomID domain.RoomID) *roomState {
	reg.mu.RLock()
	rm, ok := reg.rooms[roomID]
	reg.mu.RUnlock()
	if ok {
		return rm
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if rm, ok = reg.rooms[roomID]; ok {
		return rm
	}
	rm = &roomState{members: make(map[SessionID]struct{})}
	reg.rooms[roomID] = rm
	log.Info().Str("module", "core.registry").Str("room", string(roomID)).Msg("room created")
	return rm
}

// reap deletes the room if it is still empty. Lock order is registry then
// room, matching getOrCreate.
func (reg *RoomRegistry) reap(roomID domain.RoomID, rm *roomState) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[roomID] != rm {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if len(rm.members) == 0 {
		rm.dead = true
		delete(reg.rooms, roomID)
		log.Info().Str("module", "core.registry").Str("room", string(roomID)).Msg("room reaped")
	}
}
