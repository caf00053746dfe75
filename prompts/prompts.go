// Package prompts holds the meeting-type descriptions and facilitator
// instructions assembled into agent inputs. The orchestration core passes
// these through opaquely; only agents interpret them.
package prompts

import (
	"fmt"
	"strings"
)

// Known meeting type keys. Unknown keys fall back to technical_review.
const (
	ProgressCheck   = "progress_check"
	SpecAlignment   = "spec_alignment"
	TechnicalReview = "technical_review"
	IssueResolution = "issue_resolution"
	Review          = "review"
	Planning        = "planning"
	ReleaseOps      = "release_ops"
	Retrospective   = "retrospective"
	Other           = "other"
)

var meetingTypeNames = map[string]string{
	ProgressCheck:   "Progress & status check",
	SpecAlignment:   "Requirements & spec alignment",
	TechnicalReview: "Technical review & design decisions",
	IssueResolution: "Issue & defect resolution",
	Review:          "Review",
	Planning:        "Planning & task breakdown",
	ReleaseOps:      "Release & operations",
	Retrospective:   "Retrospective & improvement",
	Other:           "Other",
}

var meetingTypePrompts = map[string]string{
	ProgressCheck: `## Meeting type: progress & status check
Share concrete progress, surface schedule slips and blockers early, and call
out dependencies on other teams or external parties.`,
	SpecAlignment: `## Meeting type: requirements & spec alignment
Confirm everyone reads the spec the same way, turn ambiguity into concrete
wording, enumerate edge cases, and identify the blast radius of changes.`,
	TechnicalReview: `## Meeting type: technical review & design decisions
Compare multiple options, make trade-offs (performance, cost, maintainability)
explicit, consider future extensibility, and land on a concrete decision with
its rationale.`,
	IssueResolution: `## Meeting type: issue & defect resolution
Establish reproduction steps and impact, find the root cause, weigh multiple
remedies, and decide priority and schedule for the fix.`,
	Review: `## Meeting type: review
Evaluate the design or implementation objectively, point out improvements
concretely, and confirm test results and quality.`,
	Planning: `## Meeting type: planning & task breakdown
Break the work into tasks, order them by dependency and value, and agree on
owners and rough estimates.`,
	ReleaseOps: `## Meeting type: release & operations
Judge release readiness, walk through the rollout and rollback plan, and
confirm monitoring and on-call coverage.`,
	Retrospective: `## Meeting type: retrospective & improvement
Look back at what went well and what did not, identify causes rather than
blame, and agree on a small number of concrete improvements.`,
	Other: `## Meeting type: custom
%s`,
}

// MeetingTypeName returns a display name for a meeting type key.
func MeetingTypeName(meetingType string) string {
	if name, ok := meetingTypeNames[meetingType]; ok {
		return name
	}
	return meetingTypeNames[Other]
}

// MeetingTypePrompt returns the discussion guidance block for a meeting type.
// For the custom type the description is spliced in.
func MeetingTypePrompt(meetingType, customDescription string) string {
	prompt, ok := meetingTypePrompts[meetingType]
	if !ok {
		prompt = meetingTypePrompts[TechnicalReview]
	}
	if meetingType == Other {
		return fmt.Sprintf(prompt, customDescription)
	}
	return prompt
}

// FacilitatorOpening renders the scripted opening message the facilitator
// delivers on the first turn, nominating the first speaker.
func FacilitatorOpening(meetingType, customDescription, topic string, participants []string, firstSpeaker string) string {
	if topic == "" {
		topic = "(no agenda)"
	}
	var list strings.Builder
	for _, p := range participants {
		fmt.Fprintf(&list, "- %s\n", p)
	}
	opening := fmt.Sprintf(`Let's begin the meeting.

Today's meeting type is "%s".

### Purpose
%s

### Agenda
%s

### Participants
%s`, MeetingTypeName(meetingType), strings.TrimSpace(MeetingTypePrompt(meetingType, customDescription)), topic, list.String())
	if firstSpeaker != "" {
		opening += fmt.Sprintf("\nLet's start the discussion. @%s, please go first.\n", firstSpeaker)
	} else {
		opening += "\nLet's start the discussion.\n"
	}
	return opening
}

// ClosingInstruction is appended to the facilitator's input on the final turn
// so the closing message summarizes the discussion.
const ClosingInstruction = `[Meeting closing] Wrap up the meeting in detail:

## Key points of the discussion
- Summarize the main threads as bullet points

## Decisions
- What was decided in this meeting ("none" if nothing)

## Open issues
- Remaining topics that still need discussion, if any

## Next actions
- Who does what by when, concretely

Cover every participant's contributions without omission.`

// LanguageInstruction returns the response-language directive for a room
// language code.
func LanguageInstruction(language string) string {
	switch language {
	case "ja":
		return "必ず日本語で発言してください。"
	case "en", "":
		return "Respond in English."
	default:
		return fmt.Sprintf("Respond in language: %s.", language)
	}
}
