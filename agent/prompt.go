package agent

import (
	"fmt"
	"strings"

	"github.com/parleyhq/parley/prompts"
)

// BuildSystemPrompt renders the participant persona and room configuration
// into the system instructions shared by the SDK-backed handles.
func BuildSystemPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a participant in a multi-agent discussion.\n", in.ParticipantName)
	if in.ParticipantRole != "" {
		fmt.Fprintf(&b, "Your role: %s\n", in.ParticipantRole)
	}
	if in.IsFacilitator {
		b.WriteString("You are the facilitator: keep the discussion on track, open and close it, and summarize when asked.\n")
	}
	if in.Topic != "" {
		fmt.Fprintf(&b, "Discussion topic: %s\n", in.Topic)
	}
	if in.MeetingType != "" {
		b.WriteString("\n")
		b.WriteString(prompts.MeetingTypePrompt(in.MeetingType, in.CustomDescription))
		b.WriteString("\n")
	}
	if lang := prompts.LanguageInstruction(in.Language); lang != "" {
		b.WriteString(lang)
		b.WriteString("\n")
	}
	if in.ContextText != "" {
		b.WriteString("\n## Prior session context\n")
		b.WriteString(in.ContextText)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildUserPrompt renders the conversation so far plus any pending moderator
// message, preparation notes and per-turn instruction into the user turn.
func BuildUserPrompt(in Input, speak bool) string {
	var b strings.Builder
	if in.History != "" {
		b.WriteString("## Conversation so far\n")
		b.WriteString(in.History)
		b.WriteString("\n")
	}
	if in.ModeratorMessage != "" {
		fmt.Fprintf(&b, "\n[Moderator]: %s\n", in.ModeratorMessage)
	}
	if in.PreparationNotes != "" {
		b.WriteString("\n## Your preparation notes\n")
		b.WriteString(in.PreparationNotes)
		b.WriteString("\n")
	}
	if in.Instruction != "" {
		b.WriteString("\n")
		b.WriteString(in.Instruction)
		b.WriteString("\n")
	}
	if speak {
		fmt.Fprintf(&b, "\nIt is your turn. Respond as %s.", in.ParticipantName)
	} else {
		b.WriteString("\nDo not write your response yet. Gather the key points, open questions and facts you will need for your upcoming turn, as concise notes.")
	}
	return b.String()
}
