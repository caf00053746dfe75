package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainSpeak(t *testing.T, chunks <-chan Chunk, errs <-chan error) (string, string, error) {
	t.Helper()
	var partial strings.Builder
	var full string
	var speakErr error
	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if c.Partial {
				partial.WriteString(c.Text)
			} else {
				full = c.FullText
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				speakErr = err
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out draining speak")
		}
	}
	return partial.String(), full, speakErr
}

func TestMockSpeakStreamsScriptedResponse(t *testing.T) {
	h := NewMockHandle("alex")
	h.ScriptSpeak("hello there")

	chunks, errs := h.Speak(context.Background(), Input{ParticipantName: "alex"})
	partial, full, err := drainSpeak(t, chunks, errs)

	require.NoError(t, err)
	assert.Equal(t, "hello there", partial)
	assert.Equal(t, "hello there", full)
}

func TestMockSpeakFallbackWhenQueueEmpty(t *testing.T) {
	h := NewMockHandle("alex")

	chunks, errs := h.Speak(context.Background(), Input{Topic: "retries"})
	_, full, err := drainSpeak(t, chunks, errs)

	require.NoError(t, err)
	assert.Contains(t, full, "alex")
	assert.Contains(t, full, "retries")
}

func TestMockSpeakRecordsInputs(t *testing.T) {
	h := NewMockHandle("alex")
	h.ScriptSpeak("one", "two")

	for _, moderator := range []string{"first note", "second note"} {
		chunks, errs := h.Speak(context.Background(), Input{ModeratorMessage: moderator})
		_, _, err := drainSpeak(t, chunks, errs)
		require.NoError(t, err)
	}

	inputs := h.SpeakInputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "first note", inputs[0].ModeratorMessage)
	assert.Equal(t, "second note", inputs[1].ModeratorMessage)
}

func TestMockSpeakError(t *testing.T) {
	h := NewMockHandle("alex")
	h.SpeakErr = errors.New("boom")
	h.ScriptSpeak("partial words")

	chunks, errs := h.Speak(context.Background(), Input{})
	partial, full, err := drainSpeak(t, chunks, errs)

	assert.EqualError(t, err, "boom")
	assert.Empty(t, full)
	assert.Equal(t, "partial words", partial)
}

func TestMockSpeakCancelled(t *testing.T) {
	h := NewMockHandle("alex")
	h.ChunkDelay = 50 * time.Millisecond
	h.ScriptSpeak("a response that will never finish streaming")

	ctx, cancel := context.WithCancel(context.Background())
	chunks, errs := h.Speak(ctx, Input{})

	time.Sleep(80 * time.Millisecond)
	cancel()

	partial, full, err := drainSpeak(t, chunks, errs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, full)
	assert.Less(t, len(partial), len("a response that will never finish streaming"))
}

func TestMockPrepareEmitsActivityThenCompletion(t *testing.T) {
	h := NewMockHandle("alex")
	h.ScriptPrepare("prepared points")

	notices, errs := h.Prepare(context.Background(), Input{})

	var activity, notes string
	for notices != nil || errs != nil {
		select {
		case n, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			switch n.Kind {
			case NoticeActivity:
				activity = n.Activity
			case NoticeComplete:
				notes = n.Notes
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out draining prepare")
		}
	}

	assert.NotEmpty(t, activity)
	assert.Equal(t, "prepared points", notes)
}

func TestPreviewShortensLongNotes(t *testing.T) {
	long := strings.Repeat("の", 300)
	preview := Preview(long, 200)
	assert.Equal(t, 200, len([]rune(strings.TrimSuffix(preview, "..."))))
	assert.True(t, strings.HasSuffix(preview, "..."))

	assert.Equal(t, "short", Preview("short", 200))
}
