package core

import (
	"time"

	"github.com/google/uuid"
)

// RoomStatus tracks the lifecycle of a discussion room.
type RoomStatus string

const (
	// RoomWaiting means the room is created and waiting for the discussion to start.
	RoomWaiting RoomStatus = "waiting"
	// RoomActive means the discussion is in progress.
	RoomActive RoomStatus = "active"
	// RoomPaused means the discussion is paused and can be resumed.
	RoomPaused RoomStatus = "paused"
	// RoomCompleted means the discussion has ended. Terminal state.
	RoomCompleted RoomStatus = "completed"
)

// AgentType selects which Handle implementation a participant is bound to.
// The set is closed; binding happens once at room construction.
type AgentType string

const (
	AgentAnthropic AgentType = "anthropic"
	AgentOpenAI    AgentType = "openai"
	AgentMock      AgentType = "mock"
)

// Room is one discussion session with a fixed participant roster and a turn
// budget. The orchestrator owns the Status and CurrentTurn fields exclusively
// for the duration of a discussion; snapshots are persisted through the Store
// on every state-affecting event.
type Room struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Topic             string     `json:"topic,omitempty"`
	Status            RoomStatus `json:"status"`
	CurrentTurn       int        `json:"current_turn"`
	MaxTurns          int        `json:"max_turns"`
	MeetingType       string     `json:"meeting_type,omitempty"`
	CustomDescription string     `json:"custom_description,omitempty"`
	Language          string     `json:"language,omitempty"`
	Created           time.Time  `json:"created"`
	Updated           time.Time  `json:"updated"`
}

// Participant is one seat in a room bound to an agent backend. ContextText is
// an opaque block of prior-conversation text injected verbatim into the
// participant's initial context; it is immutable once the room starts.
type Participant struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"room_id"`
	Name          string    `json:"name"`
	Role          string    `json:"role,omitempty"`
	Color         string    `json:"color,omitempty"`
	AgentType     AgentType `json:"agent_type"`
	IsFacilitator bool      `json:"is_facilitator"`
	ContextText   string    `json:"context_text,omitempty"`

	// Transient, held in memory only.
	IsSpeaking   bool `json:"is_speaking"`
	MessageCount int  `json:"message_count"`
}

// MessageRole categorizes who authored a persisted message.
type MessageRole string

const (
	RoleSystem      MessageRole = "system"
	RoleParticipant MessageRole = "participant"
	RoleModerator   MessageRole = "moderator"
)

// Message is one persisted discussion message. TurnNumber is the ordering key
// within a room. Partial marks content from a speak task that was cancelled
// mid-stream.
type Message struct {
	ID            string      `json:"id"`
	RoomID        string      `json:"room_id"`
	ParticipantID string      `json:"participant_id,omitempty"`
	Role          MessageRole `json:"role"`
	Content       string      `json:"content"`
	TurnNumber    int         `json:"turn_number"`
	Partial       bool        `json:"partial,omitempty"`
	Created       time.Time   `json:"created"`
}

// NewID generates a new unique identifier for rooms, participants, messages
// and events.
func NewID() string { return uuid.NewString() }

// Facilitator returns the facilitator participant, or nil when the roster has
// none. At most one participant per room may carry the flag.
func Facilitator(participants []Participant) *Participant {
	for i := range participants {
		if participants[i].IsFacilitator {
			return &participants[i]
		}
	}
	return nil
}

// Regulars returns pointers to the non-facilitator participants in roster
// order.
func Regulars(participants []Participant) []*Participant {
	out := make([]*Participant, 0, len(participants))
	for i := range participants {
		if !participants[i].IsFacilitator {
			out = append(out, &participants[i])
		}
	}
	return out
}
