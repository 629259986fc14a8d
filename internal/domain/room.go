package domain

// RoomID is supplied externally (a call/meeting id); the relay never mints one.
type RoomID string

type Room struct {
	ID RoomID
}
