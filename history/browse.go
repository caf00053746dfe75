package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Project is a directory of recorded session transcripts.
type Project struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Modified time.Time `json:"modified"`
}

// Session summarizes one transcript file so a caller can pick a context_file
// at room creation.
type Session struct {
	Path             string    `json:"path"`
	Modified         time.Time `json:"modified"`
	MessageCount     int       `json:"message_count"`
	FirstUserMessage string    `json:"first_user_message,omitempty"`
}

// ListProjects returns the subdirectories of root, newest first. A missing
// root yields an empty list, not an error.
func ListProjects(root string) ([]Project, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read projects dir: %w", err)
	}

	var projects []Project
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		projects = append(projects, Project{
			Name:     entry.Name(),
			Path:     filepath.Join(root, entry.Name()),
			Modified: info.ModTime().UTC(),
		})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Modified.After(projects[j].Modified) })
	return projects, nil
}

// ListSessions returns the .jsonl transcripts under projectDir, newest first,
// capped at limit. Each session is parsed for its message count and the first
// user message so callers can tell sessions apart.
func ListSessions(projectDir string, limit int) ([]Session, error) {
	entries, err := os.ReadDir(projectDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var sessions []Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(projectDir, entry.Name())
		s := Session{Path: path, Modified: info.ModTime().UTC()}
		if messages, err := LoadSessionFile(path); err == nil {
			s.MessageCount = len(messages)
			s.FirstUserMessage = firstUserMessage(messages)
		}
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Modified.After(sessions[j].Modified) })
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

const firstMessagePreview = 100

func firstUserMessage(messages []TranscriptMessage) string {
	for _, msg := range messages {
		if msg.Type != "user" || msg.IsSidechain {
			continue
		}
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		runes := []rune(text)
		if len(runes) > firstMessagePreview {
			return string(runes[:firstMessagePreview]) + "..."
		}
		return text
	}
	return ""
}
