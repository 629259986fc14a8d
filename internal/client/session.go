package client

import (
	"encoding/json"
	"time"

	"github.com/dkeye/Meet/internal/core"
)

// Role is assigned deterministically per participant pair: whoever holds the
// member list at join time initiates toward every pre-existing member, so two
// newly-mutual peers never race to call each other.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

type State int

const (
	StateIdle State = iota
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAnswering:
		return "answering"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// PeerSession is the client-local record for one remote participant. Owned
// exclusively by the manager loop.
type PeerSession struct {
	remote  core.SessionID
	role    Role
	state   State
	link    PeerLink
	track   MediaTrack
	hsTimer *time.Timer
}

// MediaTrack is an inbound media track surfaced to the presentation layer.
type MediaTrack interface {
	ID() string
	Kind() string
}

// PeerLink is one media connection toward a remote participant. Handshake
// payloads are opaque bytes; the concrete implementation decides their shape.
type PeerLink interface {
	CreateOffer() (json.RawMessage, error)
	ApplyAnswer(json.RawMessage) error
	ApplyOfferCreateAnswer(json.RawMessage) (json.RawMessage, error)
	AddCandidate(json.RawMessage) error
	Close()
}

// LinkEvents carries the out-of-band callbacks a link may fire during its own
// asynchronous negotiation. Implementations may call them from any goroutine.
type LinkEvents struct {
	OnCandidate func(payload json.RawMessage)
	OnTrack     func(track MediaTrack)
	OnClosed    func()
}

// LinkFactory creates links bound to the local media stream.
type LinkFactory interface {
	NewLink(remote core.SessionID, ev LinkEvents) (PeerLink, error)
}

// Signaler is the relay-bound half of the signaling transport.
type Signaler interface {
	Signal(kind core.SignalKind, target core.SessionID, payload json.RawMessage) error
	EndCall() error
}

// LocalMedia is the locally-owned stream shared with every outgoing link.
// Release must be idempotent-safe to wire, but the manager guarantees it is
// called exactly once.
type LocalMedia interface {
	Release()
}

// Participant is one entry of the visible-participants view.
type Participant struct {
	SID   core.SessionID
	Track MediaTrack
}

// PeerInfo is a read-only session snapshot for callers outside the loop.
type PeerInfo struct {
	Remote   core.SessionID
	Role     Role
	State    State
	HasTrack bool
}

type Snapshot struct {
	Self  core.SessionID
	Peers []PeerInfo
}
