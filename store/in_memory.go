// Package store provides Store implementations for rooms, rosters and
// message logs.
package store

import (
	"sort"
	"sync"

	"github.com/parleyhq/parley/core"
)

// InMemoryStore is a volatile core.Store keeping everything in process-local
// maps. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Returned values are copies to prevent external
// mutation of internal state.
type InMemoryStore struct {
	mu           sync.RWMutex
	rooms        map[string]*core.Room
	participants map[string][]core.Participant
	messages     map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rooms:        make(map[string]*core.Room),
		participants: make(map[string][]core.Participant),
		messages:     make(map[string][]core.Message),
	}
}

// CreateRoom implements core.Store.
func (s *InMemoryStore) CreateRoom(room *core.Room, participants []core.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *room
	s.rooms[room.ID] = &clone
	s.participants[room.ID] = append([]core.Participant(nil), participants...)
	return nil
}

// GetRoom implements core.Store.
func (s *InMemoryStore) GetRoom(id string) (*core.Room, []core.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, nil, core.ErrRoomNotFound
	}
	clone := *room
	roster := append([]core.Participant(nil), s.participants[id]...)
	return &clone, roster, nil
}

// UpdateRoom implements core.Store.
func (s *InMemoryStore) UpdateRoom(room *core.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; !ok {
		return core.ErrRoomNotFound
	}
	clone := *room
	s.rooms[room.ID] = &clone
	return nil
}

// ListRooms implements core.Store.
func (s *InMemoryStore) ListRooms() ([]*core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]*core.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		clone := *r
		rooms = append(rooms, &clone)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Created.Before(rooms[j].Created) })
	return rooms, nil
}

// DeleteRoom implements core.Store.
func (s *InMemoryStore) DeleteRoom(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return core.ErrRoomNotFound
	}
	delete(s.rooms, id)
	delete(s.participants, id)
	delete(s.messages, id)
	return nil
}

// AppendMessage implements core.Store.
func (s *InMemoryStore) AppendMessage(msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[msg.RoomID]; !ok {
		return core.ErrRoomNotFound
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], msg)
	return nil
}

// ListMessages implements core.Store.
func (s *InMemoryStore) ListMessages(roomID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rooms[roomID]; !ok {
		return nil, core.ErrRoomNotFound
	}
	return append([]core.Message(nil), s.messages[roomID]...), nil
}
