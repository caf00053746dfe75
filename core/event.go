package core

import "time"

// EventType tags the closed set of observable occurrences a room emits.
type EventType string

const (
	// EventRoomState is a snapshot sent to an observer on attach.
	EventRoomState EventType = "room_state"
	// EventDiscussionStarting signals the transition has been initiated and
	// agents are being constructed.
	EventDiscussionStarting EventType = "discussion_starting"
	// EventDiscussionStart signals the first turn is about to begin.
	EventDiscussionStart EventType = "discussion_start"
	// EventTurnStart signals a speak task has begun for a participant.
	EventTurnStart EventType = "turn_start"
	// EventText carries an incremental fragment of speak output.
	EventText EventType = "text"
	// EventToolUse reports the speaker invoked an external capability mid-turn.
	EventToolUse EventType = "tool_use"
	// EventTurnComplete signals the speak task finished and the message was
	// persisted.
	EventTurnComplete EventType = "turn_complete"
	// EventModeratorMessage records an injected human message.
	EventModeratorMessage EventType = "moderator_message"
	// EventPreparationStart signals a background prefetch began.
	EventPreparationStart EventType = "preparation_start"
	// EventPreparationComplete signals a background prefetch finished.
	EventPreparationComplete EventType = "preparation_complete"
	// EventBackgroundActivity carries free-text progress during preparation.
	EventBackgroundActivity EventType = "background_activity"
	// EventDiscussionPaused signals the room reached the paused state.
	EventDiscussionPaused EventType = "discussion_paused"
	// EventDiscussionComplete signals the room reached the completed state.
	EventDiscussionComplete EventType = "discussion_complete"
	// EventWaitingForModerator signals a speaker asked for human input and the
	// room paused awaiting a moderator message.
	EventWaitingForModerator EventType = "waiting_for_moderator"
	// EventError reports a non-fatal or fatal failure.
	EventError EventType = "error"
)

// ParticipantState is the roster entry embedded in a room_state snapshot.
type ParticipantState struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role,omitempty"`
	Color         string `json:"color,omitempty"`
	IsFacilitator bool   `json:"is_facilitator"`
	IsSpeaking    bool   `json:"is_speaking"`
}

// Event is the only artifact the orchestration core emits to the outside
// world. Events are immutable once emitted and strictly ordered per room: Seq
// is assigned from a single per-room sequence, so no interleaving reordering
// is possible even though multiple tasks produce them.
type Event struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// room_state
	Status       RoomStatus         `json:"status,omitempty"`
	CurrentTurn  *int               `json:"current_turn,omitempty"`
	MaxTurns     int                `json:"max_turns,omitempty"`
	Participants []ParticipantState `json:"participants,omitempty"`

	// turn_start, text, tool_use, turn_complete, preparation_*, background_activity
	ParticipantID   string `json:"participant_id,omitempty"`
	ParticipantName string `json:"participant_name,omitempty"`
	Content         string `json:"content,omitempty"`
	Tool            string `json:"tool,omitempty"`
	ToolInput       string `json:"tool_input,omitempty"`
	TurnNumber      *int   `json:"turn_number,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	Activity        string `json:"activity,omitempty"`
	Preview         string `json:"preview,omitempty"`
	IsFacilitator   bool   `json:"is_facilitator,omitempty"`
	Partial         bool   `json:"partial,omitempty"`

	// moderator_message
	MentionedParticipants []string `json:"mentioned_participants,omitempty"`

	// discussion_complete
	TotalTurns *int `json:"total_turns,omitempty"`
}

// NewEvent creates a bare event of the given type bound to a room. The Seq
// field is assigned at broadcast time by the room's hub.
func NewEvent(roomID string, typ EventType) Event {
	return Event{
		ID:        NewID(),
		RoomID:    roomID,
		Type:      typ,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent constructs an error notice with a human-readable message.
func NewErrorEvent(roomID, message string) Event {
	ev := NewEvent(roomID, EventError)
	ev.Content = message
	return ev
}

// NewRoomStateEvent constructs the snapshot event sent to an observer on
// attach.
func NewRoomStateEvent(room Room, participants []Participant) Event {
	ev := NewEvent(room.ID, EventRoomState)
	ev.Status = room.Status
	turn := room.CurrentTurn
	ev.CurrentTurn = &turn
	ev.MaxTurns = room.MaxTurns
	ev.Participants = make([]ParticipantState, len(participants))
	for i, p := range participants {
		ev.Participants[i] = ParticipantState{
			ID:            p.ID,
			Name:          p.Name,
			Role:          p.Role,
			Color:         p.Color,
			IsFacilitator: p.IsFacilitator,
			IsSpeaking:    p.IsSpeaking,
		}
	}
	return ev
}

// IntPtr returns a pointer to v. Helper for the optional numeric event fields.
func IntPtr(v int) *int { return &v }
