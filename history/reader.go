// Package history reads prior-session transcripts from JSONL log files and
// formats them into opaque context blocks for injection into a participant's
// initial context. Two on-disk schemas are understood: Claude-style entries
// (summary, system, user, assistant) and Codex-style entries (response_item
// and event_msg payloads); a single file may mix both. Failures here are a
// configuration-time concern: a room is built with whatever context could be
// loaded.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// TranscriptMessage is one parsed entry of a session log.
type TranscriptMessage struct {
	Type        string // "user" | "assistant" | "system" | "summary"
	Text        string
	IsSidechain bool
	Timestamp   string
}

type rawEntry struct {
	Type        string          `json:"type"`
	Timestamp   string          `json:"timestamp"`
	IsSidechain bool            `json:"isSidechain"`
	Summary     string          `json:"summary"`
	Content     string          `json:"content"`
	Message     json.RawMessage `json:"message"`
	Payload     json.RawMessage `json:"payload"`
}

type codexPayload struct {
	Type    string          `json:"type"`
	Role    string          `json:"role"`
	Name    string          `json:"name"`
	Text    string          `json:"text"`
	Content json.RawMessage `json:"content"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// LoadSessionFile parses a JSONL transcript. Lines that are empty or not
// valid JSON are skipped rather than failing the whole file.
func LoadSessionFile(path string) ([]TranscriptMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()

	var messages []TranscriptMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry rawEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		msg, ok := parseEntry(entry)
		if !ok {
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	return messages, nil
}

func parseEntry(entry rawEntry) (TranscriptMessage, bool) {
	switch entry.Type {
	case "summary":
		return TranscriptMessage{Type: entry.Type, Text: entry.Summary, Timestamp: entry.Timestamp}, true
	case "system":
		return TranscriptMessage{Type: entry.Type, Text: entry.Content, Timestamp: entry.Timestamp}, true
	case "user", "assistant":
		msg := TranscriptMessage{Type: entry.Type, IsSidechain: entry.IsSidechain, Timestamp: entry.Timestamp}
		if len(entry.Message) == 0 {
			return msg, true
		}
		var raw rawMessage
		if err := json.Unmarshal(entry.Message, &raw); err != nil {
			return msg, true
		}
		msg.Text = parseContent(raw.Content)
		return msg, true
	case "response_item", "event_msg":
		return parseCodexEntry(entry)
	default:
		return TranscriptMessage{}, false
	}
}

// parseCodexEntry handles the Codex session schema, where every entry wraps a
// typed payload. The session_meta header falls through parseEntry's default
// case and is skipped.
func parseCodexEntry(entry rawEntry) (TranscriptMessage, bool) {
	if len(entry.Payload) == 0 {
		return TranscriptMessage{}, false
	}
	var p codexPayload
	if err := json.Unmarshal(entry.Payload, &p); err != nil {
		return TranscriptMessage{}, false
	}
	msg := TranscriptMessage{Timestamp: entry.Timestamp}
	switch {
	case entry.Type == "event_msg" && p.Type == "user_message":
		msg.Type = "user"
		msg.Text = p.Text
	case entry.Type == "event_msg" && p.Type == "agent_message":
		msg.Type = "assistant"
		msg.Text = p.Text
	case entry.Type == "response_item" && p.Type == "function_call":
		msg.Type = "assistant"
		msg.Text = "[tool call] " + p.Name
	case entry.Type == "response_item" && (p.Role == "user" || p.Role == "assistant"):
		msg.Type = p.Role
		msg.Text = parseContent(p.Content)
	default:
		return TranscriptMessage{}, false
	}
	return msg, true
}

func parseContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	var blocks []json.RawMessage
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		var asString string
		if err := json.Unmarshal(b, &asString); err == nil {
			parts = append(parts, asString)
			continue
		}
		var block contentBlock
		if err := json.Unmarshal(b, &block); err != nil {
			continue
		}
		switch block.Type {
		case "text", "input_text", "output_text":
			parts = append(parts, block.Text)
		case "thinking":
			parts = append(parts, "<thinking>"+block.Thinking+"</thinking>")
		}
	}
	return strings.Join(parts, "\n")
}

const maxMessageChars = 3000

// FormatForInjection renders messages as a context block capped at maxChars.
// Individual messages are truncated, sidechain and empty entries are skipped,
// and when the budget is exhausted the most recent messages win; a marker
// notes the dropped head.
func FormatForInjection(messages []TranscriptMessage, maxChars int) string {
	var lines []string
	for _, msg := range messages {
		if msg.IsSidechain || strings.TrimSpace(msg.Text) == "" {
			continue
		}
		label := "Claude"
		if msg.Type == "user" {
			label = "Human"
		}
		text := msg.Text
		if len(text) > maxMessageChars {
			text = text[:maxMessageChars]
		}
		lines = append(lines, fmt.Sprintf("**%s**: %s\n\n", label, text))
	}

	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		if total+len(lines[i]) > maxChars {
			break
		}
		total += len(lines[i])
		start = i
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("... [earlier context truncated] ...\n\n")
	}
	for _, line := range lines[start:] {
		b.WriteString(line)
	}
	return b.String()
}

// LoadContext is the convenience path used at room construction: parse the
// transcript at path and format it within maxChars.
func LoadContext(path string, maxChars int) (string, error) {
	messages, err := LoadSessionFile(path)
	if err != nil {
		return "", err
	}
	return FormatForInjection(messages, maxChars), nil
}
