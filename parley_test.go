package parley

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
)

func TestCreateRoomAndRunDiscussion(t *testing.T) {
	p := New()
	defer p.Close()

	orch, err := p.CreateRoom(&core.Room{
		Name:     "demo",
		Topic:    "mock discussion",
		MaxTurns: 3,
	}, []core.Participant{
		{Name: "Mika", AgentType: core.AgentMock, IsFacilitator: true},
		{Name: "Alex", AgentType: core.AgentMock},
	})
	require.NoError(t, err)

	events, cancel := orch.Subscribe()
	defer cancel()

	require.NoError(t, orch.Start())

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Type == core.EventDiscussionComplete {
				room, _ := orch.Snapshot()
				assert.Equal(t, core.RoomCompleted, room.Status)
				assert.Equal(t, 3, room.CurrentTurn)
				return
			}
		case <-deadline:
			t.Fatal("discussion did not complete")
		}
	}
}

func TestRoomReturnsSameOrchestrator(t *testing.T) {
	p := New()
	defer p.Close()

	orch, err := p.CreateRoom(&core.Room{Name: "demo", MaxTurns: 2}, []core.Participant{
		{Name: "Alex", AgentType: core.AgentMock},
	})
	require.NoError(t, err)

	room, _ := orch.Snapshot()
	again, err := p.Room(room.ID)
	require.NoError(t, err)
	assert.Same(t, orch, again)
}
