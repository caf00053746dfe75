package orchestrator

import "github.com/parleyhq/parley/core"

// speakerForTurn returns the speaker for a zero-based turn index. The
// sequence is fixed at room creation: the facilitator opens the discussion
// at index 0 and closes it at index maxTurns-1, and the remaining
// participants rotate round-robin in roster order between those bookends.
// Without a facilitator the whole roster simply rotates.
//
// With max_turns 1 the facilitator speaks the only turn; with max_turns 2
// it speaks both.
func (o *Orchestrator) speakerForTurn(idx int) *core.Participant {
	if o.facilitator == nil || len(o.regulars) == 0 {
		all := o.rosterPointers()
		return all[idx%len(all)]
	}
	if idx == 0 || idx == o.room.MaxTurns-1 {
		return o.facilitator
	}
	return o.regulars[(idx-1)%len(o.regulars)]
}

// upcomingSpeakers returns the next distinct speakers after idx, up to one
// fewer than the roster size, excluding the speaker at idx itself. This is
// the preparation lookahead window.
func (o *Orchestrator) upcomingSpeakers(idx int) []*core.Participant {
	limit := len(o.roster) - 1
	if limit <= 0 {
		return nil
	}
	current := o.speakerForTurn(idx)
	seen := map[string]bool{current.ID: true}
	var out []*core.Participant
	for j := idx + 1; j < o.room.MaxTurns && len(out) < limit; j++ {
		sp := o.speakerForTurn(j)
		if seen[sp.ID] {
			continue
		}
		seen[sp.ID] = true
		out = append(out, sp)
	}
	return out
}

func (o *Orchestrator) rosterPointers() []*core.Participant {
	out := make([]*core.Participant, len(o.roster))
	for i := range o.roster {
		out[i] = &o.roster[i]
	}
	return out
}
