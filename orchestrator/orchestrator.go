// Package orchestrator contains the discussion core: the per-room state
// machine, the turn scheduler and the preparation pipeline. One reactor
// goroutine owns each room; every event produced by speak tasks, preparation
// tasks and control handling is funneled through that goroutine into the
// room's broadcast hub, so observers see a single total order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/broadcast"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/mention"
)

// ErrControlQueueFull is returned when a control signal cannot be enqueued.
var ErrControlQueueFull = errors.New("control queue full")

// Config tunes per-room orchestration behavior.
type Config struct {
	// SpeakTimeout caps one speak invocation; exceeding it is a turn failure.
	SpeakTimeout time.Duration
	// PrepareTimeout caps one preparation attempt; exceeding it is swallowed.
	PrepareTimeout time.Duration
	// TurnDelay inserts a pause between turns.
	TurnDelay time.Duration
	// MaxTurnFailures is the number of consecutive speak failures for the
	// same participant that escalates to a fatal room error.
	MaxTurnFailures int
	// ContextBudget caps the formatted conversation history passed to agents.
	ContextBudget int
}

func (c *Config) applyDefaults() {
	if c.SpeakTimeout <= 0 {
		c.SpeakTimeout = 5 * time.Minute
	}
	if c.PrepareTimeout <= 0 {
		c.PrepareTimeout = 2 * time.Minute
	}
	if c.MaxTurnFailures <= 0 {
		c.MaxTurnFailures = 3
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 100000
	}
}

type controlKind int

const (
	ctrlStart controlKind = iota
	ctrlPause
	ctrlStop
	ctrlModerate
)

func (k controlKind) String() string {
	switch k {
	case ctrlStart:
		return "start"
	case ctrlPause:
		return "pause"
	case ctrlStop:
		return "stop"
	case ctrlModerate:
		return "moderate"
	default:
		return "unknown"
	}
}

type control struct {
	kind    controlKind
	content string
}

// Orchestrator drives one room's discussion. All mutable room state is owned
// by the reactor goroutine started via Run; external callers interact only
// through control signals, hub subscriptions and Snapshot.
type Orchestrator struct {
	room        *core.Room
	roster      []core.Participant
	facilitator *core.Participant
	regulars    []*core.Participant
	handles     map[string]agent.Handle

	store  core.Store
	hub    *broadcast.Hub
	logger logging.Logger
	cfg    Config

	ctrl    chan control
	notices chan prepNotice
	prep    *prepTable
	done    chan struct{}

	// Reactor-owned, never touched outside the Run goroutine.
	pendingModerator    string
	startedOnce         bool
	closingRequested    bool
	waitingForModerator bool
	failures            map[string]int

	// Read-mostly copy for Snapshot, maintained by the reactor.
	snapMu   sync.RWMutex
	snapRoom core.Room
}

// New builds an orchestrator for a persisted room and roster, binding each
// participant to its Handle once. At most one facilitator is permitted.
func New(room *core.Room, roster []core.Participant, store core.Store, binder agent.Binder, logger logging.Logger, cfg Config) (*Orchestrator, error) {
	if room.MaxTurns <= 0 {
		return nil, fmt.Errorf("room %s: max_turns must be positive", room.ID)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("room %s: no participants", room.ID)
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	o := &Orchestrator{
		room:     room,
		roster:   roster,
		handles:  make(map[string]agent.Handle, len(roster)),
		store:    store,
		hub:      broadcast.NewHub(room.ID, logger),
		logger:   logging.WithRoom(logger, room.ID),
		cfg:      cfg,
		ctrl:     make(chan control, 16),
		notices:  make(chan prepNotice, 64),
		prep:     newPrepTable(),
		done:     make(chan struct{}),
		failures: make(map[string]int),
		snapRoom: *room,
	}

	if lo.CountBy(o.roster, func(p core.Participant) bool { return p.IsFacilitator }) > 1 {
		return nil, fmt.Errorf("room %s: at most one facilitator allowed", room.ID)
	}
	o.facilitator = core.Facilitator(o.roster)
	o.regulars = core.Regulars(o.roster)

	for i := range o.roster {
		p := &o.roster[i]
		h, err := binder(p.ID, string(p.AgentType))
		if err != nil {
			return nil, fmt.Errorf("bind participant %s (%s): %w", p.Name, p.AgentType, err)
		}
		o.handles[p.ID] = h
	}

	return o, nil
}

// Subscribe attaches an observer to the room's ordered event stream.
func (o *Orchestrator) Subscribe() (<-chan core.Event, func()) { return o.hub.Subscribe() }

// Snapshot returns the latest room state as maintained by the reactor.
func (o *Orchestrator) Snapshot() (core.Room, []core.Participant) {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	room := o.snapRoom
	roster := append([]core.Participant(nil), o.roster...)
	return room, roster
}

// Done is closed when the reactor goroutine exits.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// Start requests that the discussion begin or resume.
func (o *Orchestrator) Start() error { return o.signal(control{kind: ctrlStart}) }

// Pause requests that the discussion pause after the in-flight turn.
func (o *Orchestrator) Pause() error { return o.signal(control{kind: ctrlPause}) }

// Stop cancels the discussion immediately and is terminal.
func (o *Orchestrator) Stop() error { return o.signal(control{kind: ctrlStop}) }

// Moderate injects a human moderator message.
func (o *Orchestrator) Moderate(content string) error {
	return o.signal(control{kind: ctrlModerate, content: content})
}

func (o *Orchestrator) signal(c control) error {
	select {
	case <-o.done:
		return fmt.Errorf("room %s: orchestrator stopped", o.room.ID)
	case o.ctrl <- c:
		return nil
	default:
		return ErrControlQueueFull
	}
}

// Run is the room reactor. It owns the room's status and turn counter for its
// whole lifetime and exits only when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)
	defer o.hub.Close()
	defer o.prep.cancelAll()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch o.room.Status {
		case core.RoomActive:
			o.runActive(ctx)
		default:
			if !o.idle(ctx) {
				return
			}
		}
	}
}

// idle handles control signals while the room is waiting, paused or
// completed. Returns false when ctx is cancelled.
func (o *Orchestrator) idle(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case n := <-o.notices:
		o.emitPrepNotice(n)
	case c := <-o.ctrl:
		o.handleIdleControl(c)
	}
	return true
}

func (o *Orchestrator) handleIdleControl(c control) {
	status := o.room.Status
	switch c.kind {
	case ctrlStart:
		if status == core.RoomCompleted {
			o.emitProtocolError("start rejected: room is completed")
			return
		}
		o.waitingForModerator = false
		o.emit(core.NewEvent(o.room.ID, core.EventDiscussionStarting))
		o.setStatus(core.RoomActive)
	case ctrlPause:
		o.emitProtocolError(fmt.Sprintf("pause rejected: room is %s", status))
	case ctrlStop:
		if status == core.RoomCompleted {
			o.emitProtocolError("stop rejected: room is completed")
			return
		}
		o.completeRoom()
	case ctrlModerate:
		o.handleModerate(c.content)
		if o.waitingForModerator && o.room.Status == core.RoomPaused {
			// The discussion paused on an @moderator request; a moderator
			// reply resumes it.
			o.waitingForModerator = false
			o.emit(core.NewEvent(o.room.ID, core.EventDiscussionStarting))
			o.setStatus(core.RoomActive)
		}
	}
}

// handleModerate persists and broadcasts a moderator message immediately and
// places it into the single pending slot consumed by the next turn. A newer
// message overwrites an unconsumed one.
func (o *Orchestrator) handleModerate(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		o.emitProtocolError("moderate rejected: empty content")
		return
	}

	msg := core.Message{
		ID:         core.NewID(),
		RoomID:     o.room.ID,
		Role:       core.RoleModerator,
		Content:    content,
		TurnNumber: o.room.CurrentTurn,
		Created:    time.Now().UTC(),
	}
	if err := o.store.AppendMessage(msg); err != nil {
		o.logger.Error("failed to persist moderator message", "error", err)
		o.emit(core.NewErrorEvent(o.room.ID, "failed to persist moderator message"))
		return
	}

	o.pendingModerator = content

	ev := core.NewEvent(o.room.ID, core.EventModeratorMessage)
	ev.Content = content
	ev.MessageID = msg.ID
	ev.TurnNumber = core.IntPtr(msg.TurnNumber)
	ev.MentionedParticipants = mention.FindMentioned(content, o.roster, true)
	o.emit(ev)
}

func (o *Orchestrator) emit(ev core.Event) {
	o.hub.Publish(ev)
}

func (o *Orchestrator) emitProtocolError(msg string) {
	o.logger.Warn("protocol error", "detail", msg)
	o.emit(core.NewErrorEvent(o.room.ID, msg))
}

// setStatus transitions the room, persists the snapshot and refreshes the
// read copy. The reactor is the only caller.
func (o *Orchestrator) setStatus(status core.RoomStatus) {
	o.room.Status = status
	o.room.Updated = time.Now().UTC()
	if err := o.store.UpdateRoom(o.room); err != nil {
		o.logger.Error("failed to persist room status", "status", status, "error", err)
	}
	o.publishSnapshot()
	o.logger.Info("room status changed", "status", status, "current_turn", o.room.CurrentTurn)
}

// completeRoom is the single terminal path shared by stop, fatal errors and
// the max-turns boundary.
func (o *Orchestrator) completeRoom() {
	o.prep.cancelAll()
	o.setStatus(core.RoomCompleted)
	ev := core.NewEvent(o.room.ID, core.EventDiscussionComplete)
	ev.TotalTurns = core.IntPtr(o.room.CurrentTurn)
	o.emit(ev)
}

func (o *Orchestrator) pauseRoom() {
	o.prep.cancelAll()
	o.setStatus(core.RoomPaused)
	o.emit(core.NewEvent(o.room.ID, core.EventDiscussionPaused))
}

func (o *Orchestrator) publishSnapshot() {
	o.snapMu.Lock()
	o.snapRoom = *o.room
	o.snapMu.Unlock()
}

func (o *Orchestrator) setSpeaking(id string, speaking bool) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	for i := range o.roster {
		if o.roster[i].ID == id {
			o.roster[i].IsSpeaking = speaking
		}
	}
}

func (o *Orchestrator) bumpMessageCount(id string) {
	o.snapMu.Lock()
	defer o.snapMu.Unlock()
	for i := range o.roster {
		if o.roster[i].ID == id {
			o.roster[i].MessageCount++
		}
	}
}

// buildHistory formats the persisted message log for input assembly.
func (o *Orchestrator) buildHistory() string {
	messages, err := o.store.ListMessages(o.room.ID)
	if err != nil {
		o.logger.Error("failed to load message history", "error", err)
		return ""
	}
	names := make(map[string]string, len(o.roster))
	for _, p := range o.roster {
		names[p.ID] = p.Name
	}
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleSystem:
			fmt.Fprintf(&b, "[System]: %s\n\n", msg.Content)
		case core.RoleModerator:
			fmt.Fprintf(&b, "[Moderator]: %s\n\n", msg.Content)
		default:
			name, ok := names[msg.ParticipantID]
			if !ok {
				name = "Unknown"
			}
			fmt.Fprintf(&b, "[%s]: %s\n\n", name, msg.Content)
		}
	}
	history := b.String()
	if len(history) > o.cfg.ContextBudget {
		history = history[len(history)-o.cfg.ContextBudget:]
	}
	return history
}
