package history

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListProjectsNewestFirst(t *testing.T) {
	root := t.TempDir()
	for i, name := range []string{"old-project", "new-project"} {
		dir := filepath.Join(root, name)
		require.NoError(t, os.Mkdir(dir, 0o755))
		mod := time.Now().Add(time.Duration(i-2) * time.Hour)
		require.NoError(t, os.Chtimes(dir, mod, mod))
	}
	// Plain files at the root are not projects.
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	projects, err := ListProjects(root)
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, "new-project", projects[0].Name)
	assert.Equal(t, "old-project", projects[1].Name)
	assert.Equal(t, filepath.Join(root, "new-project"), projects[0].Path)
}

func TestListProjectsMissingRoot(t *testing.T) {
	projects, err := ListProjects(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestListSessionsSummarizesTranscripts(t *testing.T) {
	dir := t.TempDir()
	session := strings.Join([]string{
		`{"type":"user","message":{"role":"user","content":"debug the scheduler"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":"looking at it"}}`,
	}, "\n")
	path := filepath.Join(dir, "a.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(session), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	sessions, err := ListSessions(dir, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, path, sessions[0].Path)
	assert.Equal(t, 2, sessions[0].MessageCount)
	assert.Equal(t, "debug the scheduler", sessions[0].FirstUserMessage)
}

func TestListSessionsOrderAndLimit(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"first.jsonl", "second.jsonl", "third.jsonl"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, nil, 0o644))
		mod := time.Now().Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, mod, mod))
	}

	sessions, err := ListSessions(dir, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, filepath.Join(dir, "third.jsonl"), sessions[0].Path)
	assert.Equal(t, filepath.Join(dir, "second.jsonl"), sessions[1].Path)
}

func TestFirstUserMessageTruncates(t *testing.T) {
	long := strings.Repeat("q", firstMessagePreview+40)
	got := firstUserMessage([]TranscriptMessage{
		{Type: "assistant", Text: "not this one"},
		{Type: "user", Text: "   "},
		{Type: "user", Text: long, IsSidechain: true},
		{Type: "user", Text: long},
	})

	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Len(t, []rune(got), firstMessagePreview+3)
}
