package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// MockHandle is a lightweight in-memory Handle useful for tests and demo
// rooms. Responses are served from a scripted queue per call; when the queue
// is exhausted a deterministic fallback is generated. Speak streams the
// response rune by rune the way real backends stream token deltas.
type MockHandle struct {
	name string

	mu        sync.Mutex
	responses []string
	prepNotes []string
	inputs    []Input

	// ChunkDelay inserts a pause between streamed chunks, letting tests open
	// a window to deliver control signals mid-stream.
	ChunkDelay time.Duration
	// SpeakErr, when set, makes every Speak call fail after any scripted
	// partial output.
	SpeakErr error
	// PrepareErr, when set, makes every Prepare call fail.
	PrepareErr error

	speaking  atomic.Int32
	maxActive atomic.Int32
}

// NewMockHandle constructs a MockHandle identified by name.
func NewMockHandle(name string) *MockHandle {
	return &MockHandle{name: name}
}

// Name implements Handle.
func (m *MockHandle) Name() string { return m.name }

// ScriptSpeak appends responses to the speak queue, consumed one per call.
func (m *MockHandle) ScriptSpeak(responses ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// ScriptPrepare appends notes to the prepare queue, consumed one per call.
func (m *MockHandle) ScriptPrepare(notes ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepNotes = append(m.prepNotes, notes...)
}

// MaxConcurrentSpeaks reports the high-water mark of concurrently running
// Speak calls, used to verify the single-speaker invariant.
func (m *MockHandle) MaxConcurrentSpeaks() int { return int(m.maxActive.Load()) }

// SpeakInputs returns the inputs passed to Speak, in call order.
func (m *MockHandle) SpeakInputs() []Input {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Input(nil), m.inputs...)
}

func (m *MockHandle) recordInput(in Input) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputs = append(m.inputs, in)
}

func (m *MockHandle) nextResponse() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) > 0 {
		r := m.responses[0]
		m.responses = m.responses[1:]
		return r
	}
	return ""
}

func (m *MockHandle) nextPrepNotes() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prepNotes) > 0 {
		n := m.prepNotes[0]
		m.prepNotes = m.prepNotes[1:]
		return n
	}
	return fmt.Sprintf("notes gathered by %s", m.name)
}

// Speak implements Handle; emits streaming rune chunks then a final chunk.
func (m *MockHandle) Speak(ctx context.Context, in Input) (<-chan Chunk, <-chan error) {
	out := make(chan Chunk, 16)
	errCh := make(chan error, 1)

	m.recordInput(in)
	full := m.nextResponse()
	if full == "" {
		full = fmt.Sprintf("%s responding to: %s", m.name, in.Topic)
	}

	go func() {
		defer close(out)
		defer close(errCh)

		active := m.speaking.Add(1)
		defer m.speaking.Add(-1)
		for {
			max := m.maxActive.Load()
			if active <= max || m.maxActive.CompareAndSwap(max, active) {
				break
			}
		}

		for _, r := range full {
			if m.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case <-time.After(m.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- Chunk{Partial: true, Text: string(r)}:
			}
		}

		if m.SpeakErr != nil {
			errCh <- m.SpeakErr
			return
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Chunk{FullText: full}:
		}
	}()

	return out, errCh
}

// Prepare implements Handle; emits one activity notice then a completion.
func (m *MockHandle) Prepare(ctx context.Context, in Input) (<-chan Notice, <-chan error) {
	out := make(chan Notice, 4)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if m.PrepareErr != nil {
			errCh <- m.PrepareErr
			return
		}

		notes := m.nextPrepNotes()
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		case out <- Notice{Kind: NoticeActivity, Activity: "reviewing discussion so far"}:
		}
		if m.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(m.ChunkDelay):
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case out <- Notice{Kind: NoticeComplete, Notes: notes, Preview: Preview(notes, 200)}:
		}
	}()

	return out, errCh
}

// Preview shortens notes to at most max runes for progress events.
func Preview(notes string, max int) string {
	runes := []rune(notes)
	if len(runes) <= max {
		return notes
	}
	return string(runes[:max]) + "..."
}
