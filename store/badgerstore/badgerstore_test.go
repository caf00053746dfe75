package badgerstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func seedRoom(t *testing.T, s *Store, name string) *core.Room {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	room := &core.Room{
		ID:       core.NewID(),
		Name:     name,
		Status:   core.RoomWaiting,
		MaxTurns: 5,
		Created:  now,
		Updated:  now,
	}
	roster := []core.Participant{
		{ID: core.NewID(), RoomID: room.ID, Name: "Mika", IsFacilitator: true},
		{ID: core.NewID(), RoomID: room.ID, Name: "Alex"},
	}
	require.NoError(t, s.CreateRoom(room, roster))
	return room
}

func TestRoomRoundTrip(t *testing.T) {
	s := openTestStore(t)
	room := seedRoom(t, s, "kickoff")

	got, roster, err := s.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
	assert.Equal(t, "kickoff", got.Name)
	assert.Equal(t, core.RoomWaiting, got.Status)
	require.Len(t, roster, 2)
	assert.True(t, roster[0].IsFacilitator)
}

func TestGetRoomNotFound(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.GetRoom("missing")
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestUpdateRoomPersistsStatus(t *testing.T) {
	s := openTestStore(t)
	room := seedRoom(t, s, "kickoff")

	room.Status = core.RoomCompleted
	room.CurrentTurn = 5
	require.NoError(t, s.UpdateRoom(room))

	got, _, err := s.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RoomCompleted, got.Status)
	assert.Equal(t, 5, got.CurrentTurn)
}

func TestUpdateUnknownRoom(t *testing.T) {
	s := openTestStore(t)
	err := s.UpdateRoom(&core.Room{ID: "missing"})
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestListRoomsSortedByCreation(t *testing.T) {
	s := openTestStore(t)
	first := seedRoom(t, s, "first")
	time.Sleep(2 * time.Millisecond)
	second := seedRoom(t, s, "second")

	rooms, err := s.ListRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, first.ID, rooms[0].ID)
	assert.Equal(t, second.ID, rooms[1].ID)
}

func TestMessageLogKeepsInsertionOrder(t *testing.T) {
	s := openTestStore(t)
	room := seedRoom(t, s, "kickoff")

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.AppendMessage(core.Message{
			ID:         core.NewID(),
			RoomID:     room.ID,
			Role:       core.RoleParticipant,
			Content:    "message",
			TurnNumber: i,
			Created:    time.Now().UTC(),
		}))
	}

	messages, err := s.ListMessages(room.ID)
	require.NoError(t, err)
	require.Len(t, messages, 12)
	for i, m := range messages {
		assert.Equal(t, i+1, m.TurnNumber, "message %d out of order", i)
	}
}

func TestMessagesIsolatedPerRoom(t *testing.T) {
	s := openTestStore(t)
	a := seedRoom(t, s, "room-a")
	b := seedRoom(t, s, "room-b")

	require.NoError(t, s.AppendMessage(core.Message{ID: core.NewID(), RoomID: a.ID, Role: core.RoleParticipant, Content: "only in a"}))

	messages, err := s.ListMessages(b.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestAppendMessageUnknownRoom(t *testing.T) {
	s := openTestStore(t)
	err := s.AppendMessage(core.Message{ID: core.NewID(), RoomID: "missing"})
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestDeleteRoomDropsMessageLog(t *testing.T) {
	s := openTestStore(t)
	doomed := seedRoom(t, s, "doomed")
	kept := seedRoom(t, s, "kept")

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendMessage(core.Message{ID: core.NewID(), RoomID: doomed.ID, Role: core.RoleParticipant, Content: "gone", TurnNumber: i}))
	}
	require.NoError(t, s.AppendMessage(core.Message{ID: core.NewID(), RoomID: kept.ID, Role: core.RoleParticipant, Content: "stays"}))

	require.NoError(t, s.DeleteRoom(doomed.ID))

	_, _, err := s.GetRoom(doomed.ID)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
	_, err = s.ListMessages(doomed.ID)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)

	messages, err := s.ListMessages(kept.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "stays", messages[0].Content)
}

func TestDeleteRoomSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	room := seedRoom(t, s, "transient")
	require.NoError(t, s.AppendMessage(core.Message{ID: core.NewID(), RoomID: room.ID, Role: core.RoleParticipant, Content: "x"}))
	require.NoError(t, s.DeleteRoom(room.ID))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	_, _, err = reopened.GetRoom(room.ID)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)
}

func TestDeleteUnknownRoom(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.DeleteRoom("missing"), core.ErrRoomNotFound)
}

func TestReopenPreservesData(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, nil)
	require.NoError(t, err)
	room := seedRoom(t, s, "durable")
	require.NoError(t, s.AppendMessage(core.Message{ID: core.NewID(), RoomID: room.ID, Role: core.RoleParticipant, Content: "kept"}))
	require.NoError(t, s.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, _, err := reopened.GetRoom(room.ID)
	require.NoError(t, err)
	assert.Equal(t, "durable", got.Name)

	messages, err := reopened.ListMessages(room.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "kept", messages[0].Content)
}
