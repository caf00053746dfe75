package orchestrator

import (
	"context"
	"errors"
	"sync"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
)

type prepState int

const (
	prepInProgress prepState = iota
	prepComplete
)

type prepEntry struct {
	state  prepState
	notes  string
	cancel context.CancelFunc
}

// prepTable tracks preparation tasks per participant. A participant has at
// most one entry: either an in-flight task or finished notes waiting to be
// consumed by that participant's next turn.
type prepTable struct {
	mu      sync.Mutex
	entries map[string]*prepEntry
}

func newPrepTable() *prepTable {
	return &prepTable{entries: make(map[string]*prepEntry)}
}

// begin claims a preparation slot. It refuses when a task is already running
// or completed notes are already waiting.
func (t *prepTable) begin(id string, cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[id]; ok {
		return false
	}
	t.entries[id] = &prepEntry{state: prepInProgress, cancel: cancel}
	return true
}

func (t *prepTable) complete(id, notes string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.state != prepInProgress {
		return
	}
	e.state = prepComplete
	e.notes = notes
}

// fail clears a failed in-flight entry so the next lookahead can retry.
func (t *prepTable) fail(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.state != prepInProgress {
		return
	}
	delete(t.entries, id)
}

// take consumes whatever the table holds for id as the participant's turn
// begins: finished notes are returned, an in-flight task is cancelled, and
// the entry is discarded either way.
func (t *prepTable) take(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return ""
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(t.entries, id)
	if e.state == prepComplete {
		return e.notes
	}
	return ""
}

func (t *prepTable) active(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

func (t *prepTable) cancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.cancel != nil {
			e.cancel()
		}
	}
	t.entries = make(map[string]*prepEntry)
}

type prepNoticeKind int

const (
	noticeStart prepNoticeKind = iota
	noticeActivity
	noticeComplete
	noticeFailed
)

type prepNotice struct {
	participantID   string
	participantName string
	kind            prepNoticeKind
	activity        string
	preview         string
}

// startPreparations launches background preparation for the speakers that
// follow turn idx. Each task streams progress notices back to the reactor;
// nothing here touches reactor-owned state.
func (o *Orchestrator) startPreparations(ctx context.Context, idx int) {
	upcoming := o.upcomingSpeakers(idx)
	if len(upcoming) == 0 {
		return
	}
	history := o.buildHistory()
	for _, sp := range upcoming {
		handle, ok := o.handles[sp.ID]
		if !ok {
			continue
		}
		prepCtx, cancel := context.WithTimeout(ctx, o.cfg.PrepareTimeout)
		if !o.prep.begin(sp.ID, cancel) {
			cancel()
			continue
		}
		in := o.buildInput(sp, history, "", "", "")
		go o.runPreparation(prepCtx, sp, handle, in)
	}
}

func (o *Orchestrator) runPreparation(ctx context.Context, sp *core.Participant, handle agent.Handle, in agent.Input) {
	o.sendNotice(ctx, prepNotice{participantID: sp.ID, participantName: sp.Name, kind: noticeStart})

	noticesCh, errsCh := handle.Prepare(ctx, in)
	var notes, preview string
	var prepErr error

loop:
	for noticesCh != nil || errsCh != nil {
		select {
		case n, ok := <-noticesCh:
			if !ok {
				noticesCh = nil
				continue
			}
			switch n.Kind {
			case agent.NoticeActivity:
				o.sendNotice(ctx, prepNotice{
					participantID:   sp.ID,
					participantName: sp.Name,
					kind:            noticeActivity,
					activity:        n.Activity,
				})
			case agent.NoticeComplete:
				notes = n.Notes
				preview = n.Preview
			}
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			if err != nil {
				prepErr = err
			}
		case <-ctx.Done():
			prepErr = ctx.Err()
			break loop
		}
	}

	if prepErr != nil || ctx.Err() != nil {
		// A deadline means the attempt timed out: swallowed, but logged.
		// Plain cancellation means the turn began or the room stopped; stay
		// quiet. Real failures are logged and surfaced as a notice so the
		// turn proceeds without notes.
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			o.logger.Warn("preparation timed out", "participant", sp.Name, "timeout", o.cfg.PrepareTimeout)
		case ctx.Err() != nil:
		default:
			o.logger.Warn("preparation failed", "participant", sp.Name, "error", prepErr)
			o.sendNotice(ctx, prepNotice{
				participantID:   sp.ID,
				participantName: sp.Name,
				kind:            noticeFailed,
			})
		}
		o.prep.fail(sp.ID)
		return
	}

	o.prep.complete(sp.ID, notes)
	o.sendNotice(ctx, prepNotice{
		participantID:   sp.ID,
		participantName: sp.Name,
		kind:            noticeComplete,
		preview:         preview,
	})
}

func (o *Orchestrator) sendNotice(ctx context.Context, n prepNotice) {
	select {
	case o.notices <- n:
	case <-ctx.Done():
	}
}

// emitPrepNotice turns a preparation notice into a broadcast event. Notices
// for entries already consumed or cancelled are dropped so no progress leaks
// after the participant's turn has started.
func (o *Orchestrator) emitPrepNotice(n prepNotice) {
	if n.kind != noticeFailed && !o.prep.active(n.participantID) {
		return
	}
	switch n.kind {
	case noticeStart:
		ev := core.NewEvent(o.room.ID, core.EventPreparationStart)
		ev.ParticipantID = n.participantID
		ev.ParticipantName = n.participantName
		o.emit(ev)
	case noticeActivity:
		ev := core.NewEvent(o.room.ID, core.EventBackgroundActivity)
		ev.ParticipantID = n.participantID
		ev.ParticipantName = n.participantName
		ev.Activity = n.activity
		o.emit(ev)
	case noticeComplete:
		ev := core.NewEvent(o.room.ID, core.EventPreparationComplete)
		ev.ParticipantID = n.participantID
		ev.ParticipantName = n.participantName
		ev.Preview = n.preview
		o.emit(ev)
	case noticeFailed:
		ev := core.NewEvent(o.room.ID, core.EventBackgroundActivity)
		ev.ParticipantID = n.participantID
		ev.ParticipantName = n.participantName
		ev.Activity = "preparation failed"
		o.emit(ev)
	}
}
