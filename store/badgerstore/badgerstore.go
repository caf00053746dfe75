// Package badgerstore implements core.Store on BadgerDB so rooms and message
// logs survive process restarts.
package badgerstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/parleyhq/parley/core"
)

// Key layout:
//
//	room:<room_id>             room snapshot
//	roster:<room_id>           full roster slice
//	msg:<room_id>:<seq 10d>    one message, seq is a per-room counter
const (
	roomPrefix   = "room:"
	rosterPrefix = "roster:"
	msgPrefix    = "msg:"
)

// Store persists rooms in a single Badger database.
type Store struct {
	db  *badger.DB
	log *slog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Store{db: db, log: log}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func roomKey(id string) []byte   { return []byte(roomPrefix + id) }
func rosterKey(id string) []byte { return []byte(rosterPrefix + id) }

func msgKey(roomID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", msgPrefix, roomID, seq))
}

// CreateRoom implements core.Store.
func (s *Store) CreateRoom(room *core.Room, participants []core.Participant) error {
	roomData, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	rosterData, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(roomKey(room.ID), roomData); err != nil {
			return err
		}
		return txn.Set(rosterKey(room.ID), rosterData)
	})
}

// GetRoom implements core.Store.
func (s *Store) GetRoom(id string) (*core.Room, []core.Participant, error) {
	var room core.Room
	var roster []core.Participant
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, &room) }); err != nil {
			return fmt.Errorf("unmarshal room: %w", err)
		}
		item, err = txn.Get(rosterKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &roster) })
	})
	if err != nil {
		return nil, nil, err
	}
	return &room, roster, nil
}

// UpdateRoom implements core.Store.
func (s *Store) UpdateRoom(room *core.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(room.ID)); errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		} else if err != nil {
			return err
		}
		return txn.Set(roomKey(room.ID), data)
	})
}

// ListRooms implements core.Store.
func (s *Store) ListRooms() ([]*core.Room, error) {
	var rooms []*core.Room
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(roomPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var room core.Room
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &room) })
			if err != nil {
				return fmt.Errorf("unmarshal room: %w", err)
			}
			rooms = append(rooms, &room)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Created.Before(rooms[j].Created) })
	return rooms, nil
}

// DeleteRoom implements core.Store. The roster and the full message log go
// with the room.
func (s *Store) DeleteRoom(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(id)); errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		} else if err != nil {
			return err
		}
		if err := txn.Delete(roomKey(id)); err != nil {
			return err
		}
		if err := txn.Delete(rosterKey(id)); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		prefix := []byte(msgPrefix + id + ":")
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendMessage implements core.Store. The message key embeds a per-room
// counter so iteration order matches insertion order.
func (s *Store) AppendMessage(msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(msg.RoomID)); errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		} else if err != nil {
			return err
		}
		seq, err := s.nextMessageSeq(txn, msg.RoomID)
		if err != nil {
			return err
		}
		return txn.Set(msgKey(msg.RoomID, seq), data)
	})
}

func (s *Store) nextMessageSeq(txn *badger.Txn, roomID string) (uint64, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()
	prefix := []byte(msgPrefix + roomID + ":")
	// Seek to the last key under the prefix.
	seekKey := append(append([]byte(nil), prefix...), 0xFF)
	it.Seek(seekKey)
	if !it.ValidForPrefix(prefix) {
		return 1, nil
	}
	var last uint64
	key := it.Item().Key()
	if _, err := fmt.Sscanf(string(key[len(prefix):]), "%d", &last); err != nil {
		return 0, fmt.Errorf("parse message key %q: %w", key, err)
	}
	return last + 1, nil
}

// ListMessages implements core.Store.
func (s *Store) ListMessages(roomID string) ([]core.Message, error) {
	var messages []core.Message
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(roomKey(roomID)); errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrRoomNotFound
		} else if err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(msgPrefix + roomID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg core.Message
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &msg) })
			if err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}
