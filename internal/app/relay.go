package app

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
)

type connEntry struct {
	room   domain.RoomID
	caller *domain.Caller
	conn   core.SignalConnection
}

// Relay binds room membership to point-to-point message delivery over
// long-lived connections, one per participant. It never inspects handshake
// payloads.
type Relay struct {
	registry *core.RoomRegistry

	mu    sync.RWMutex
	conns map[core.SessionID]*connEntry
}

func NewRelay(registry *core.RoomRegistry) *Relay {
	return &Relay{
		registry: registry,
		conns:    make(map[core.SessionID]*connEntry),
	}
}

// Connect admits a new participant: assigns a fresh session id, joins the
// room and tells the joiner (only) who was already there. Existing members
// learn of the newcomer when its first handshake arrives.
func (r *Relay) Connect(roomID domain.RoomID, caller *domain.Caller, conn core.SignalConnection) core.SessionID {
	sid := core.SessionID(uuid.NewString())

	r.mu.Lock()
	r.conns[sid] = &connEntry{room: roomID, caller: caller, conn: conn}
	r.mu.Unlock()

	others := r.registry.Join(roomID, sid)

	r.deliver(sid, core.RoomMembersMsg{
		Type:    core.TypeRoomMembers,
		Self:    sid,
		Members: others,
	})

	log.Info().Str("module", "app.relay").Str("sid", string(sid)).Str("room", string(roomID)).Str("caller", caller.DisplayName).Msg("connected")
	return sid
}

// Signal routes one handshake message from sender to msg.Target. Messages
// whose target is not currently a member of the sender's room are dropped,
// never errored back: the remote may have already left.
func (r *Relay) Signal(sender core.SessionID, msg core.SignalMsg) {
	r.mu.RLock()
	entry, ok := r.conns[sender]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if !r.registry.Contains(entry.room, msg.Target) {
		log.Debug().Str("module", "app.relay").Str("sid", string(sender)).Str("target", string(msg.Target)).Msg("target gone, dropping signal")
		return
	}

	r.deliver(msg.Target, core.SignalMsg{
		Type:    core.TypeSignal,
		Kind:    msg.Kind,
		Sender:  sender,
		Payload: msg.Payload,
	})
}

// Disconnect removes the session from its room, notifies the remaining
// members and closes the connection. Safe to call more than once.
func (r *Relay) Disconnect(sid core.SessionID) {
	r.mu.Lock()
	entry, ok := r.conns[sid]
	if ok {
		delete(r.conns, sid)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	remaining := r.registry.Leave(entry.room, sid)
	for _, member := range remaining {
		r.deliver(member, core.PeerLeftMsg{Type: core.TypePeerLeft, SID: sid})
	}
	entry.conn.Close()
	log.Info().Str("module", "app.relay").Str("sid", string(sid)).Str("room", string(entry.room)).Int("remaining", len(remaining)).Msg("disconnected")
}

// deliver is fire-and-forget: a connection mid-teardown just loses the frame.
func (r *Relay) deliver(sid core.SessionID, v any) {
	r.mu.RLock()
	entry, ok := r.conns[sid]
	r.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal frame")
		return
	}
	if err := entry.conn.TrySend(core.Frame(data)); err != nil {
		log.Debug().Err(err).Str("module", "app.relay").Str("sid", string(sid)).Msg("dropping frame")
	}
}

// RoomInfo is a read-only view for the REST surface.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

// MemberInfo pairs a session id with the caller identity it presented.
type MemberInfo struct {
	SID         core.SessionID `json:"sid"`
	DisplayName string         `json:"display_name"`
}

func (r *Relay) Rooms() []RoomInfo {
	ids := r.registry.Rooms()
	out := make([]RoomInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, RoomInfo{ID: id, MemberCount: len(r.registry.Members(id))})
	}
	return out
}

func (r *Relay) RoomMembers(roomID domain.RoomID) []MemberInfo {
	members := r.registry.Members(roomID)
	out := make([]MemberInfo, 0, len(members))
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, sid := range members {
		if entry, ok := r.conns[sid]; ok {
			out = append(out, MemberInfo{SID: sid, DisplayName: entry.caller.DisplayName})
		}
	}
	return out
}
