package orchestrator

import (
	"context"
	"strings"
	"time"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/mention"
	"github.com/parleyhq/parley/prompts"
)

// runActive drives turns until the room leaves the active state or ctx is
// cancelled.
func (o *Orchestrator) runActive(ctx context.Context) {
	if !o.startedOnce {
		o.startedOnce = true
		ev := core.NewEvent(o.room.ID, core.EventDiscussionStart)
		ev.CurrentTurn = core.IntPtr(o.room.CurrentTurn)
		ev.MaxTurns = o.room.MaxTurns
		o.emit(ev)
	}

	for o.room.Status == core.RoomActive {
		if ctx.Err() != nil {
			return
		}
		o.drainControl()
		if o.room.Status != core.RoomActive {
			return
		}
		if o.room.CurrentTurn >= o.room.MaxTurns {
			o.completeRoom()
			return
		}

		closing := o.closingRequested
		o.runTurn(ctx)

		if closing && o.room.Status == core.RoomActive {
			// The closing turn requested via @END has been spoken.
			o.completeRoom()
			return
		}
		if o.room.Status == core.RoomActive && o.cfg.TurnDelay > 0 {
			select {
			case <-time.After(o.cfg.TurnDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// drainControl applies control signals and preparation notices queued
// between turns without blocking.
func (o *Orchestrator) drainControl() {
	for {
		select {
		case n := <-o.notices:
			o.emitPrepNotice(n)
		case c := <-o.ctrl:
			switch c.kind {
			case ctrlStart:
				// Already active; idempotent.
			case ctrlPause:
				o.pauseRoom()
				return
			case ctrlStop:
				o.completeRoom()
				return
			case ctrlModerate:
				o.handleModerate(c.content)
			}
		default:
			return
		}
	}
}

// runTurn executes the turn at the current index: consume preparation, emit
// turn_start, kick off lookahead preparation, stream the speak invocation and
// settle the outcome. Status changes for pause, stop and failure are applied
// here before returning.
func (o *Orchestrator) runTurn(ctx context.Context) {
	idx := o.room.CurrentTurn
	var speaker *core.Participant
	instruction := ""

	if o.closingRequested && o.facilitator != nil {
		speaker = o.facilitator
		instruction = prompts.ClosingInstruction
	} else {
		speaker = o.speakerForTurn(idx)
		if speaker.IsFacilitator && idx == o.room.MaxTurns-1 && idx > 0 {
			instruction = prompts.ClosingInstruction
		}
	}

	if speaker.IsFacilitator && idx == 0 && !o.closingRequested {
		o.runOpeningTurn(ctx, speaker)
		return
	}

	notes := o.prep.take(speaker.ID)
	o.setSpeaking(speaker.ID, true)
	defer o.setSpeaking(speaker.ID, false)

	startEv := core.NewEvent(o.room.ID, core.EventTurnStart)
	startEv.ParticipantID = speaker.ID
	startEv.ParticipantName = speaker.Name
	startEv.TurnNumber = core.IntPtr(idx + 1)
	startEv.IsFacilitator = speaker.IsFacilitator
	o.emit(startEv)

	o.startPreparations(ctx, idx)

	moderatorMsg := o.pendingModerator
	o.pendingModerator = ""

	in := o.buildInput(speaker, o.buildHistory(), moderatorMsg, notes, instruction)

	speakCtx, cancelSpeak := context.WithTimeout(ctx, o.cfg.SpeakTimeout)
	defer cancelSpeak()

	handle := o.handles[speaker.ID]
	chunks, errs := handle.Speak(speakCtx, in)

	var partial strings.Builder
	var fullText string
	var speakErr error
	stopped := false
	pauseAfter := false

	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			switch {
			case c.Tool != nil:
				if stopped {
					continue
				}
				ev := core.NewEvent(o.room.ID, core.EventToolUse)
				ev.ParticipantID = speaker.ID
				ev.ParticipantName = speaker.Name
				ev.Tool = c.Tool.Name
				ev.ToolInput = c.Tool.Input
				o.emit(ev)
			case c.Partial:
				// Fragments still count toward the persisted partial message,
				// but once a stop is in flight nothing more is streamed out.
				partial.WriteString(c.Text)
				if stopped {
					continue
				}
				ev := core.NewEvent(o.room.ID, core.EventText)
				ev.ParticipantID = speaker.ID
				ev.ParticipantName = speaker.Name
				ev.Content = c.Text
				o.emit(ev)
			default:
				fullText = c.FullText
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && speakErr == nil {
				speakErr = err
			}
		case n := <-o.notices:
			o.emitPrepNotice(n)
		case c := <-o.ctrl:
			switch c.kind {
			case ctrlStart:
				// Idempotent while active.
			case ctrlPause:
				pauseAfter = true
			case ctrlStop:
				stopped = true
				cancelSpeak()
			case ctrlModerate:
				o.handleModerate(c.content)
			}
		case <-ctx.Done():
			stopped = true
			cancelSpeak()
		}
	}

	if stopped {
		o.settleStopped(speaker, idx, partial.String())
		return
	}
	if speakErr == nil && speakCtx.Err() != nil {
		speakErr = speakCtx.Err()
	}
	if speakErr != nil {
		o.settleFailed(speaker, speakErr)
		return
	}

	o.failures[speaker.ID] = 0
	if fullText == "" {
		fullText = partial.String()
	}

	msg := core.Message{
		ID:            core.NewID(),
		RoomID:        o.room.ID,
		ParticipantID: speaker.ID,
		Role:          core.RoleParticipant,
		Content:       fullText,
		TurnNumber:    idx + 1,
		Created:       time.Now().UTC(),
	}
	if err := o.store.AppendMessage(msg); err != nil {
		o.logger.Error("failed to persist message", "participant", speaker.Name, "error", err)
	}
	o.bumpMessageCount(speaker.ID)

	o.room.CurrentTurn = idx + 1
	o.room.Updated = time.Now().UTC()
	if err := o.store.UpdateRoom(o.room); err != nil {
		o.logger.Error("failed to persist room", "error", err)
	}
	o.publishSnapshot()

	doneEv := core.NewEvent(o.room.ID, core.EventTurnComplete)
	doneEv.ParticipantID = speaker.ID
	doneEv.ParticipantName = speaker.Name
	doneEv.TurnNumber = core.IntPtr(idx + 1)
	doneEv.MessageID = msg.ID
	doneEv.IsFacilitator = speaker.IsFacilitator
	o.emit(doneEv)

	res := mention.Parse(fullText)
	if res.IsEnd && o.facilitator != nil && !speaker.IsFacilitator {
		// Early close: the facilitator takes the next turn to wrap up.
		o.closingRequested = true
	}
	if res.IsModerator {
		o.waitingForModerator = true
	}

	if o.room.CurrentTurn >= o.room.MaxTurns {
		o.completeRoom()
		return
	}
	if o.waitingForModerator {
		ev := core.NewEvent(o.room.ID, core.EventWaitingForModerator)
		ev.ParticipantID = speaker.ID
		ev.ParticipantName = speaker.Name
		o.emit(ev)
		o.pauseRoom()
		return
	}
	if pauseAfter {
		o.pauseRoom()
	}
}

// runOpeningTurn emits the facilitator's scripted opening without invoking
// the agent. The opening nominates the first regular speaker and counts as a
// normal turn.
func (o *Orchestrator) runOpeningTurn(ctx context.Context, speaker *core.Participant) {
	idx := o.room.CurrentTurn

	startEv := core.NewEvent(o.room.ID, core.EventTurnStart)
	startEv.ParticipantID = speaker.ID
	startEv.ParticipantName = speaker.Name
	startEv.TurnNumber = core.IntPtr(idx + 1)
	startEv.IsFacilitator = true
	o.emit(startEv)

	o.startPreparations(ctx, idx)

	var firstSpeaker string
	if next := idx + 1; next < o.room.MaxTurns {
		if sp := o.speakerForTurn(next); !sp.IsFacilitator {
			firstSpeaker = sp.Name
		}
	}
	names := make([]string, 0, len(o.regulars))
	for _, p := range o.regulars {
		names = append(names, p.Name)
	}
	opening := prompts.FacilitatorOpening(o.room.MeetingType, o.room.CustomDescription, o.room.Topic, names, firstSpeaker)

	textEv := core.NewEvent(o.room.ID, core.EventText)
	textEv.ParticipantID = speaker.ID
	textEv.ParticipantName = speaker.Name
	textEv.Content = opening
	o.emit(textEv)

	msg := core.Message{
		ID:            core.NewID(),
		RoomID:        o.room.ID,
		ParticipantID: speaker.ID,
		Role:          core.RoleParticipant,
		Content:       opening,
		TurnNumber:    idx + 1,
		Created:       time.Now().UTC(),
	}
	if err := o.store.AppendMessage(msg); err != nil {
		o.logger.Error("failed to persist opening message", "error", err)
	}
	o.bumpMessageCount(speaker.ID)

	o.room.CurrentTurn = idx + 1
	o.room.Updated = time.Now().UTC()
	if err := o.store.UpdateRoom(o.room); err != nil {
		o.logger.Error("failed to persist room", "error", err)
	}
	o.publishSnapshot()

	doneEv := core.NewEvent(o.room.ID, core.EventTurnComplete)
	doneEv.ParticipantID = speaker.ID
	doneEv.ParticipantName = speaker.Name
	doneEv.TurnNumber = core.IntPtr(idx + 1)
	doneEv.MessageID = msg.ID
	doneEv.IsFacilitator = true
	o.emit(doneEv)

	if o.room.CurrentTurn >= o.room.MaxTurns {
		o.completeRoom()
	}
}

// settleStopped persists whatever streamed before cancellation and completes
// the room. Exactly one error event marks the interruption.
func (o *Orchestrator) settleStopped(speaker *core.Participant, idx int, partial string) {
	if partial != "" {
		msg := core.Message{
			ID:            core.NewID(),
			RoomID:        o.room.ID,
			ParticipantID: speaker.ID,
			Role:          core.RoleParticipant,
			Content:       partial,
			TurnNumber:    idx + 1,
			Partial:       true,
			Created:       time.Now().UTC(),
		}
		if err := o.store.AppendMessage(msg); err != nil {
			o.logger.Error("failed to persist partial message", "error", err)
		}
	}
	ev := core.NewErrorEvent(o.room.ID, "turn cancelled: discussion stopped")
	ev.ParticipantID = speaker.ID
	ev.ParticipantName = speaker.Name
	o.emit(ev)
	o.completeRoom()
}

// settleFailed handles a transient speak failure: one error event, then pause
// without advancing the turn. Repeated consecutive failures for the same
// participant escalate to a fatal room error.
func (o *Orchestrator) settleFailed(speaker *core.Participant, speakErr error) {
	o.logger.Error("turn failed", "participant", speaker.Name, "error", speakErr)
	o.failures[speaker.ID]++

	ev := core.NewErrorEvent(o.room.ID, "turn failed: "+speakErr.Error())
	ev.ParticipantID = speaker.ID
	ev.ParticipantName = speaker.Name
	o.emit(ev)

	if o.failures[speaker.ID] >= o.cfg.MaxTurnFailures {
		o.emit(core.NewErrorEvent(o.room.ID, "repeated turn failures for "+speaker.Name+", ending discussion"))
		o.completeRoom()
		return
	}
	o.pauseRoom()
}

func (o *Orchestrator) buildInput(sp *core.Participant, history, moderatorMsg, prepNotes, instruction string) agent.Input {
	return agent.Input{
		ParticipantName:   sp.Name,
		ParticipantRole:   sp.Role,
		IsFacilitator:     sp.IsFacilitator,
		Topic:             o.room.Topic,
		MeetingType:       o.room.MeetingType,
		CustomDescription: o.room.CustomDescription,
		Language:          o.room.Language,
		ContextText:       sp.ContextText,
		History:           history,
		ModeratorMessage:  moderatorMsg,
		PreparationNotes:  prepNotes,
		Instruction:       instruction,
	}
}
