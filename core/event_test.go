package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventPopulatesIdentity(t *testing.T) {
	ev := NewEvent("room-1", EventTurnStart)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, "room-1", ev.RoomID)
	assert.Equal(t, EventTurnStart, ev.Type)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Zero(t, ev.Seq)
}

func TestNewErrorEventCarriesMessage(t *testing.T) {
	ev := NewErrorEvent("room-1", "something went sideways")
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "something went sideways", ev.Content)
}

func TestNewRoomStateEventSnapshotsRoster(t *testing.T) {
	room := Room{ID: "room-1", Status: RoomActive, CurrentTurn: 3, MaxTurns: 5}
	roster := []Participant{
		{ID: "p1", Name: "Mika", IsFacilitator: true, IsSpeaking: true},
		{ID: "p2", Name: "Alex"},
	}

	ev := NewRoomStateEvent(room, roster)

	assert.Equal(t, EventRoomState, ev.Type)
	assert.Equal(t, RoomActive, ev.Status)
	require.NotNil(t, ev.CurrentTurn)
	assert.Equal(t, 3, *ev.CurrentTurn)
	assert.Equal(t, 5, ev.MaxTurns)
	require.Len(t, ev.Participants, 2)
	assert.True(t, ev.Participants[0].IsFacilitator)
	assert.True(t, ev.Participants[0].IsSpeaking)
	assert.Equal(t, "Alex", ev.Participants[1].Name)
}

func TestEventJSONOmitsUnsetFields(t *testing.T) {
	ev := NewEvent("room-1", EventText)
	ev.ParticipantName = "Alex"
	ev.Content = "hi"

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "text", m["type"])
	assert.Equal(t, "hi", m["content"])
	assert.NotContains(t, m, "tool")
	assert.NotContains(t, m, "turn_number")
	assert.NotContains(t, m, "total_turns")
	assert.NotContains(t, m, "participants")
}

func TestTurnZeroIsSerialized(t *testing.T) {
	ev := NewEvent("room-1", EventDiscussionComplete)
	ev.TotalTurns = IntPtr(0)

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "total_turns")
	assert.EqualValues(t, 0, m["total_turns"])
}

func TestFacilitatorHelpers(t *testing.T) {
	roster := []Participant{
		{ID: "p1", Name: "Mika", IsFacilitator: true},
		{ID: "p2", Name: "Alex"},
		{ID: "p3", Name: "Blair"},
	}

	f := Facilitator(roster)
	require.NotNil(t, f)
	assert.Equal(t, "Mika", f.Name)

	regulars := Regulars(roster)
	require.Len(t, regulars, 2)
	assert.Equal(t, "Alex", regulars[0].Name)

	assert.Nil(t, Facilitator(roster[1:]))
}
