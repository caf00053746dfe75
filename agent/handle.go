// Package agent defines the Handle abstraction the orchestrator drives: an
// opaque capability that can prepare supporting material in the background and
// produce a spoken response as an incremental stream. Concrete backends live
// in subpackages; the orchestrator is written only against Handle.
package agent

import "context"

// ToolUse reports that the speaker invoked an external capability mid-turn.
type ToolUse struct {
	Name  string `json:"name"`
	Input string `json:"input,omitempty"`
}

// Chunk is one increment of a speak stream. Partial chunks carry a text
// fragment or a tool use; the final chunk has Partial=false and FullText set
// to the finalized response.
type Chunk struct {
	Partial  bool
	Text     string
	Tool     *ToolUse
	FullText string
}

// NoticeKind tags preparation stream increments.
type NoticeKind int

const (
	// NoticeActivity is a free-text progress description.
	NoticeActivity NoticeKind = iota
	// NoticeComplete terminates a preparation attempt; Notes holds the
	// gathered material and Preview a short excerpt.
	NoticeComplete
)

// Notice is one increment of a prepare stream. Exactly one NoticeComplete is
// emitted per attempt, as the last element before the channel closes.
type Notice struct {
	Kind     NoticeKind
	Activity string
	Notes    string
	Preview  string
}

// Input carries everything a backend needs to produce a response for one
// participant. MeetingType, CustomDescription and Language are opaque room
// configuration passed through verbatim.
type Input struct {
	ParticipantName   string
	ParticipantRole   string
	IsFacilitator     bool
	Topic             string
	MeetingType       string
	CustomDescription string
	Language          string

	// ContextText is the injected prior-session context, immutable for the
	// lifetime of the room.
	ContextText string
	// History is the formatted conversation so far.
	History string
	// ModeratorMessage is the pending moderator injection, consumed exactly
	// once by the turn this input is assembled for. Empty when none pending.
	ModeratorMessage string
	// PreparationNotes is prefetched material from a completed preparation
	// attempt, empty when the turn proceeds without it.
	PreparationNotes string
	// Instruction is an extra directive appended for special turns, e.g. the
	// facilitator closing summary.
	Instruction string
}

// Handle is the capability contract for one agent backend seat.
//
// Both operations follow the same streaming shape: the first channel delivers
// ordered increments and is closed on completion; the second carries at most
// one terminal error and is closed afterwards (buffered size 1). Both must
// respect context cancellation promptly.
type Handle interface {
	// Name returns the backend's identifying label, used in logs.
	Name() string

	// Prepare gathers supporting material for an upcoming turn without
	// emitting a finalized answer. It is cheaper than Speak and purely an
	// optimization: callers must tolerate failure, cancellation and absence
	// of results.
	Prepare(ctx context.Context, in Input) (<-chan Notice, <-chan error)

	// Speak produces the participant's response for the current turn as an
	// incremental stream of text fragments and tool uses, terminated by a
	// final chunk carrying the full text.
	Speak(ctx context.Context, in Input) (<-chan Chunk, <-chan error)
}

// Binder resolves a participant's agent type to a concrete Handle once at
// room construction. The orchestrator never sees backend types.
type Binder func(participantID string, agentType string) (Handle, error)
