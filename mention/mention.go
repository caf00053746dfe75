// Package mention parses @mentions out of discussion messages: direct
// participant mentions, @[bracketed names], and the control mentions @ALL,
// @END and @moderator.
package mention

import (
	"regexp"
	"strings"

	"github.com/parleyhq/parley/core"
)

var (
	bracketPattern = regexp.MustCompile(`@\[([^\]]+)\]`)
	// Participant names: letters, digits, underscore, hyphen, plus an optional
	// single-character suffix separated by a space ("Agent B").
	simplePattern    = regexp.MustCompile(`@([\p{L}\p{N}_][\p{L}\p{N}\-_]*(?: [A-Za-z0-9]\b)?)`)
	allPattern       = regexp.MustCompile(`(?i)@ALL\b`)
	endPattern       = regexp.MustCompile(`(?i)@END\b`)
	moderatorPattern = regexp.MustCompile(`@(?:モデレーター|(?i:moderator\b))`)
)

var reservedNames = map[string]bool{
	"all":       true,
	"end":       true,
	"moderator": true,
	"モデレーター":    true,
}

// Result is the outcome of parsing one message.
type Result struct {
	// Names mentioned via @name or @[name], in order of appearance.
	Names []string
	// IsAll reports an @ALL mention (every participant addressed).
	IsAll bool
	// IsEnd reports an @END mention (facilitator requests closing).
	IsEnd bool
	// IsModerator reports an @moderator mention (human input requested).
	IsModerator bool
}

// HasMention reports whether the message addressed anyone at all.
func (r Result) HasMention() bool {
	return len(r.Names) > 0 || r.IsAll || r.IsEnd || r.IsModerator
}

// Parse extracts all mentions from content.
func Parse(content string) Result {
	res := Result{
		IsAll:       allPattern.MatchString(content),
		IsEnd:       endPattern.MatchString(content),
		IsModerator: moderatorPattern.MatchString(content),
	}

	for _, m := range bracketPattern.FindAllStringSubmatch(content, -1) {
		res.Names = append(res.Names, m[1])
	}

	// Strip bracketed mentions first so their names are not re-matched.
	withoutBrackets := bracketPattern.ReplaceAllString(content, "")
	for _, m := range simplePattern.FindAllStringSubmatch(withoutBrackets, -1) {
		if reservedNames[strings.ToLower(m[1])] {
			continue
		}
		// RE2 has no lookahead, so a @モデレーター mention followed by more
		// text matches as one long name; drop it here instead.
		if strings.HasPrefix(m[1], "モデレーター") {
			continue
		}
		res.Names = append(res.Names, m[1])
	}

	return res
}

// FindMentioned resolves mentions to canonical participant names, preserving
// mention order and skipping duplicates. Matching is case-insensitive and
// tolerates spaces written as underscores or hyphens. @ALL addresses every
// eligible participant. When excludeFacilitator is set, the facilitator
// cannot be addressed.
func FindMentioned(content string, participants []core.Participant, excludeFacilitator bool) []string {
	res := Parse(content)
	if !res.HasMention() {
		return nil
	}

	eligible := make([]core.Participant, 0, len(participants))
	for _, p := range participants {
		if excludeFacilitator && p.IsFacilitator {
			continue
		}
		eligible = append(eligible, p)
	}

	if res.IsAll {
		out := make([]string, len(eligible))
		for i, p := range eligible {
			out[i] = p.Name
		}
		return out
	}

	lookup := make(map[string]string)
	for _, p := range eligible {
		lower := strings.ToLower(p.Name)
		lookup[lower] = p.Name
		lookup[strings.ReplaceAll(lower, " ", "_")] = p.Name
		lookup[strings.ReplaceAll(lower, " ", "-")] = p.Name
	}

	var names []string
	seen := make(map[string]bool)
	for _, name := range res.Names {
		canonical, ok := lookup[strings.ToLower(name)]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		names = append(names, canonical)
	}
	return names
}
