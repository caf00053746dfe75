package core

import "errors"

// ErrRoomNotFound is returned by stores when a room id does not exist.
var ErrRoomNotFound = errors.New("room not found")

// Store persists rooms, their rosters and the message log. Implementations
// must be safe for concurrent use; the orchestrator writes a room snapshot on
// every state-affecting event while the HTTP layer reads concurrently.
type Store interface {
	// CreateRoom persists a new room together with its fixed roster.
	CreateRoom(room *Room, participants []Participant) error
	// GetRoom returns the room and its roster in roster order.
	GetRoom(id string) (*Room, []Participant, error)
	// UpdateRoom overwrites the persisted room snapshot.
	UpdateRoom(room *Room) error
	// ListRooms returns all rooms ordered by creation time.
	ListRooms() ([]*Room, error)
	// DeleteRoom removes a room, its roster and its message log.
	DeleteRoom(id string) error
	// AppendMessage appends one message to a room's permanent log.
	AppendMessage(msg Message) error
	// ListMessages returns a room's messages in insertion order.
	ListMessages(roomID string) ([]Message, error)
}
