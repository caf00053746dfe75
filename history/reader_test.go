package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSessionFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644))
	return path
}

func TestLoadSessionFileParsesRoles(t *testing.T) {
	path := writeSessionFile(t,
		`{"type":"summary","summary":"Earlier work on the parser"}`,
		`{"type":"user","message":{"role":"user","content":"please fix the bug"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"done, see the patch"}]}}`,
		`{"type":"system","content":"session resumed"}`,
	)

	messages, err := LoadSessionFile(path)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, "summary", messages[0].Type)
	assert.Equal(t, "Earlier work on the parser", messages[0].Text)
	assert.Equal(t, "please fix the bug", messages[1].Text)
	assert.Equal(t, "done, see the patch", messages[2].Text)
	assert.Equal(t, "session resumed", messages[3].Text)
}

func TestLoadSessionFileSkipsGarbageLines(t *testing.T) {
	path := writeSessionFile(t,
		`not json at all`,
		``,
		`{"type":"unknown-kind","content":"ignored"}`,
		`{"type":"user","message":{"role":"user","content":"still parsed"}}`,
	)

	messages, err := LoadSessionFile(path)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "still parsed", messages[0].Text)
}

func TestLoadSessionFileMissing(t *testing.T) {
	_, err := LoadSessionFile(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.Error(t, err)
}

func TestLoadSessionFileParsesCodexEntries(t *testing.T) {
	path := writeSessionFile(t,
		`{"type":"session_meta","payload":{"id":"0199-abc","cwd":"/work"}}`,
		`{"type":"event_msg","payload":{"type":"user_message","text":"trace the flaky test"}}`,
		`{"type":"event_msg","payload":{"type":"agent_message","text":"the fixture leaks a goroutine"}}`,
		`{"type":"response_item","payload":{"type":"function_call","name":"shell","arguments":"{\"cmd\":\"ls\"}"}}`,
		`{"type":"response_item","payload":{"type":"message","role":"user","content":[{"type":"input_text","text":"run it again"}]}}`,
		`{"type":"response_item","payload":{"type":"message","role":"assistant","content":[{"type":"output_text","text":"passes now"}]}}`,
		`{"type":"event_msg","payload":{"type":"token_count","total":120}}`,
	)

	messages, err := LoadSessionFile(path)
	require.NoError(t, err)
	require.Len(t, messages, 5)

	assert.Equal(t, "user", messages[0].Type)
	assert.Equal(t, "trace the flaky test", messages[0].Text)
	assert.Equal(t, "assistant", messages[1].Type)
	assert.Equal(t, "the fixture leaks a goroutine", messages[1].Text)
	assert.Equal(t, "assistant", messages[2].Type)
	assert.Equal(t, "[tool call] shell", messages[2].Text)
	assert.Equal(t, "user", messages[3].Type)
	assert.Equal(t, "run it again", messages[3].Text)
	assert.Equal(t, "assistant", messages[4].Type)
	assert.Equal(t, "passes now", messages[4].Text)
}

func TestLoadSessionFileMixedSchemas(t *testing.T) {
	path := writeSessionFile(t,
		`{"type":"user","message":{"role":"user","content":"claude style"}}`,
		`{"type":"event_msg","payload":{"type":"agent_message","text":"codex style"}}`,
	)

	messages, err := LoadSessionFile(path)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "claude style", messages[0].Text)
	assert.Equal(t, "codex style", messages[1].Text)
}

func TestParseContentJoinsBlocks(t *testing.T) {
	path := writeSessionFile(t,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"thinking","thinking":"weighing options"},{"type":"text","text":"here is my answer"}]}}`,
	)

	messages, err := LoadSessionFile(path)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Text, "<thinking>weighing options</thinking>")
	assert.Contains(t, messages[0].Text, "here is my answer")
}

func TestFormatForInjectionLabelsSpeakers(t *testing.T) {
	out := FormatForInjection([]TranscriptMessage{
		{Type: "user", Text: "what broke?"},
		{Type: "assistant", Text: "the retry loop"},
	}, 10000)

	assert.Contains(t, out, "**Human**: what broke?")
	assert.Contains(t, out, "**Claude**: the retry loop")
}

func TestFormatForInjectionSkipsSidechains(t *testing.T) {
	out := FormatForInjection([]TranscriptMessage{
		{Type: "user", Text: "main thread"},
		{Type: "assistant", Text: "side quest", IsSidechain: true},
	}, 10000)

	assert.Contains(t, out, "main thread")
	assert.NotContains(t, out, "side quest")
}

func TestFormatForInjectionCapsLongMessages(t *testing.T) {
	long := strings.Repeat("x", maxMessageChars+500)
	out := FormatForInjection([]TranscriptMessage{{Type: "user", Text: long}}, 100000)

	assert.Less(t, len(out), maxMessageChars+100)
}

func TestFormatForInjectionKeepsMostRecentOnOverflow(t *testing.T) {
	messages := []TranscriptMessage{
		{Type: "user", Text: "oldest " + strings.Repeat("a", 200)},
		{Type: "assistant", Text: "middle " + strings.Repeat("b", 200)},
		{Type: "user", Text: "newest " + strings.Repeat("c", 200)},
	}
	out := FormatForInjection(messages, 500)

	assert.Contains(t, out, "newest")
	assert.NotContains(t, out, "oldest")
	assert.Contains(t, out, "[earlier context truncated]")
}

func TestLoadContextEndToEnd(t *testing.T) {
	path := writeSessionFile(t,
		`{"type":"user","message":{"role":"user","content":"remember the port is 9090"}}`,
	)

	out, err := LoadContext(path, 10000)
	require.NoError(t, err)
	assert.Contains(t, out, "remember the port is 9090")
}
