package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
)

func scheduleFixture(maxTurns int, facilitator bool, names ...string) *Orchestrator {
	o := &Orchestrator{
		room:   &core.Room{ID: "r1", MaxTurns: maxTurns},
		roster: make([]core.Participant, len(names)),
	}
	for i, name := range names {
		o.roster[i] = core.Participant{ID: name, Name: name, IsFacilitator: facilitator && i == 0}
	}
	for i := range o.roster {
		p := &o.roster[i]
		if p.IsFacilitator {
			o.facilitator = p
		} else {
			o.regulars = append(o.regulars, p)
		}
	}
	return o
}

func sequence(o *Orchestrator) []string {
	out := make([]string, o.room.MaxTurns)
	for i := range out {
		out[i] = o.speakerForTurn(i).Name
	}
	return out
}

func TestSpeakerForTurn(t *testing.T) {
	tests := []struct {
		name        string
		maxTurns    int
		facilitator bool
		names       []string
		want        []string
	}{
		{
			name:        "facilitator bookends round robin",
			maxTurns:    5,
			facilitator: true,
			names:       []string{"F", "A", "B"},
			want:        []string{"F", "A", "B", "A", "F"},
		},
		{
			name:        "rotation wraps across many turns",
			maxTurns:    8,
			facilitator: true,
			names:       []string{"F", "A", "B", "C"},
			want:        []string{"F", "A", "B", "C", "A", "B", "C", "F"},
		},
		{
			name:        "no facilitator is plain round robin",
			maxTurns:    5,
			facilitator: false,
			names:       []string{"A", "B"},
			want:        []string{"A", "B", "A", "B", "A"},
		},
		{
			name:        "single turn goes to the facilitator",
			maxTurns:    1,
			facilitator: true,
			names:       []string{"F", "A"},
			want:        []string{"F"},
		},
		{
			name:        "two turns are both the facilitator",
			maxTurns:    2,
			facilitator: true,
			names:       []string{"F", "A", "B"},
			want:        []string{"F", "F"},
		},
		{
			name:        "facilitator alone rotates with itself",
			maxTurns:    3,
			facilitator: true,
			names:       []string{"F"},
			want:        []string{"F", "F", "F"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := scheduleFixture(tt.maxTurns, tt.facilitator, tt.names...)
			assert.Equal(t, tt.want, sequence(o))
		})
	}
}

func TestUpcomingSpeakersWindow(t *testing.T) {
	o := scheduleFixture(8, true, "F", "A", "B", "C")

	names := func(ps []*core.Participant) []string {
		out := make([]string, len(ps))
		for i, p := range ps {
			out[i] = p.Name
		}
		return out
	}

	// After the opening, the window covers the next distinct speakers but
	// never the current one.
	assert.Equal(t, []string{"A", "B", "C"}, names(o.upcomingSpeakers(0)))
	assert.Equal(t, []string{"B", "C", "F"}, names(o.upcomingSpeakers(1)))

	// Near the end the window shrinks with the remaining turns.
	assert.Equal(t, []string{"F"}, names(o.upcomingSpeakers(6)))
	assert.Empty(t, o.upcomingSpeakers(7))
}
