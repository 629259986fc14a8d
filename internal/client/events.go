package client

import (
	"encoding/json"

	"github.com/dkeye/Meet/internal/core"
)

// Event is one item on the manager's single-consumer stream. Every relay
// notification and every out-of-band connection callback is funneled here so
// the peer table is only ever touched from one goroutine.
type Event interface{ isEvent() }

// RoomMembers is the join-time snapshot from the relay: who was already in
// the room, and the session id the relay assigned to us.
type RoomMembers struct {
	Self    core.SessionID
	Members []core.SessionID
}

// Signal is one routed handshake message addressed to the local session.
type Signal struct {
	Kind    core.SignalKind
	Sender  core.SessionID
	Payload json.RawMessage
}

// PeerLeft reports that a remote session disconnected.
type PeerLeft struct {
	SID core.SessionID
}

// Hangup ends the local session: an explicit end-call or loss of the relay
// connection, which are treated identically.
type Hangup struct{}

// Events below originate from connection callbacks and loop back into the
// same stream.

type localCandidate struct {
	remote  core.SessionID
	payload json.RawMessage
}

type remoteTrackArrived struct {
	remote core.SessionID
	track  MediaTrack
}

type linkClosed struct {
	remote core.SessionID
}

type handshakeExpired struct {
	remote core.SessionID
}

type snapshotReq struct {
	reply chan Snapshot
}

func (RoomMembers) isEvent()        {}
func (Signal) isEvent()             {}
func (PeerLeft) isEvent()           {}
func (Hangup) isEvent()             {}
func (localCandidate) isEvent()     {}
func (remoteTrackArrived) isEvent() {}
func (linkClosed) isEvent()         {}
func (handshakeExpired) isEvent()   {}
func (snapshotReq) isEvent()        {}
