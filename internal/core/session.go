package core

// Frame is a raw message payload as it travels over a signaling transport.
type Frame []byte

// SessionID identifies one participant connection for its lifetime.
// The relay assigns it at connect time and never reuses it.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
