package core

import "encoding/json"

// SignalKind tags a handshake payload. The relay routes by kind and target
// without ever looking inside the payload.
type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
	SignalEndCall   SignalKind = "end-call"
)

// Message types on the relay wire.
const (
	TypeRoomMembers = "room-members"
	TypeSignal      = "signal"
	TypePeerLeft    = "peer-left"
	TypeEndCall     = "end-call"
)

// SignalMsg is the point-to-point envelope. Clients fill Kind, Target and
// Payload; the relay stamps Sender before delivery.
type SignalMsg struct {
	Type    string          `json:"type"`
	Kind    SignalKind      `json:"kind"`
	Sender  SessionID       `json:"sender,omitempty"`
	Target  SessionID       `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RoomMembersMsg is sent once per join, to the joiner only. Self carries the
// session id the relay assigned to this connection.
type RoomMembersMsg struct {
	Type    string      `json:"type"`
	Self    SessionID   `json:"self"`
	Members []SessionID `json:"members"`
}

// PeerLeftMsg is broadcast to the remaining members of a room.
type PeerLeftMsg struct {
	Type string    `json:"type"`
	SID  SessionID `json:"sid"`
}
