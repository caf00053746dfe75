// Package server exposes the discussion rooms over HTTP and WebSocket. The
// JSON API creates and inspects rooms; the WebSocket endpoint streams room
// events and accepts control signals.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/history"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/orchestrator"
)

// Server wires the store and the orchestrator manager behind the HTTP API.
type Server struct {
	store   core.Store
	manager *orchestrator.Manager
	logger  logging.Logger

	// ContextMaxChars caps participant context loaded from transcript files.
	contextMaxChars int
	// historyRoot is the directory browsed by the transcript API.
	historyRoot string
}

type Option func(*Server)

// WithContextMaxChars overrides the transcript context budget.
func WithContextMaxChars(n int) Option {
	return func(s *Server) { s.contextMaxChars = n }
}

// WithHistoryRoot sets the directory the transcript browsing API serves.
func WithHistoryRoot(path string) Option {
	return func(s *Server) { s.historyRoot = path }
}

func New(store core.Store, manager *orchestrator.Manager, logger logging.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	s := &Server{
		store:           store,
		manager:         manager,
		logger:          logger,
		contextMaxChars: 50000,
	}
	if home, err := os.UserHomeDir(); err == nil {
		s.historyRoot = filepath.Join(home, ".claude", "projects")
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/rooms", s.handleListRooms)
	mux.HandleFunc("GET /api/rooms/{id}", s.handleGetRoom)
	mux.HandleFunc("DELETE /api/rooms/{id}", s.handleDeleteRoom)
	mux.HandleFunc("POST /api/rooms/{id}/start", s.handleStart)
	mux.HandleFunc("POST /api/rooms/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /api/rooms/{id}/moderate", s.handleModerate)
	mux.HandleFunc("GET /api/rooms/{id}/messages", s.handleListMessages)
	mux.HandleFunc("GET /api/rooms/{id}/ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/history/projects", s.handleListProjects)
	mux.HandleFunc("GET /api/history/projects/{project}/sessions", s.handleListSessions)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type createParticipantRequest struct {
	Name          string `json:"name"`
	Role          string `json:"role"`
	Color         string `json:"color"`
	AgentType     string `json:"agent_type"`
	IsFacilitator bool   `json:"is_facilitator"`
	ContextFile   string `json:"context_file"`
	ContextText   string `json:"context_text"`
}

type createRoomRequest struct {
	Name              string                     `json:"name"`
	Topic             string                     `json:"topic"`
	MaxTurns          int                        `json:"max_turns"`
	MeetingType       string                     `json:"meeting_type"`
	CustomDescription string                     `json:"custom_description"`
	Language          string                     `json:"language"`
	Participants      []createParticipantRequest `json:"participants"`
}

type roomResponse struct {
	core.Room
	Participants []core.Participant `json:"participants"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.MaxTurns <= 0 {
		s.writeError(w, http.StatusBadRequest, "max_turns must be positive")
		return
	}
	if len(req.Participants) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one participant is required")
		return
	}
	facilitators := lo.CountBy(req.Participants, func(p createParticipantRequest) bool {
		return p.IsFacilitator
	})
	if facilitators > 1 {
		s.writeError(w, http.StatusBadRequest, "at most one facilitator is allowed")
		return
	}

	now := time.Now().UTC()
	room := &core.Room{
		ID:                core.NewID(),
		Name:              req.Name,
		Topic:             req.Topic,
		Status:            core.RoomWaiting,
		MaxTurns:          req.MaxTurns,
		MeetingType:       req.MeetingType,
		CustomDescription: req.CustomDescription,
		Language:          req.Language,
		Created:           now,
		Updated:           now,
	}

	participants := make([]core.Participant, 0, len(req.Participants))
	for _, pr := range req.Participants {
		if strings.TrimSpace(pr.Name) == "" {
			s.writeError(w, http.StatusBadRequest, "participant name is required")
			return
		}
		contextText := pr.ContextText
		if pr.ContextFile != "" {
			loaded, err := history.LoadContext(pr.ContextFile, s.contextMaxChars)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("context file for %s: %v", pr.Name, err))
				return
			}
			contextText = loaded
		}
		participants = append(participants, core.Participant{
			ID:            core.NewID(),
			RoomID:        room.ID,
			Name:          pr.Name,
			Role:          pr.Role,
			Color:         pr.Color,
			AgentType:     core.AgentType(pr.AgentType),
			IsFacilitator: pr.IsFacilitator,
			ContextText:   contextText,
		})
	}

	if err := s.store.CreateRoom(room, participants); err != nil {
		s.logger.Error("failed to create room", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}

	// Bind agents eagerly so misconfigured backends surface at creation.
	if _, err := s.manager.Get(room.ID); err != nil {
		s.logger.Error("failed to start orchestrator", "room_id", room.ID, "error", err)
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("room created", "room_id", room.ID, "name", room.Name, "participants", len(participants))
	s.writeJSON(w, http.StatusCreated, roomResponse{Room: *room, Participants: participants})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRooms()
	if err != nil {
		s.logger.Error("failed to list rooms", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list rooms")
		return
	}
	out := lo.Map(rooms, func(room *core.Room, _ int) core.Room { return *room })
	s.writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, participants, err := s.store.GetRoom(r.PathValue("id"))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roomResponse{Room: *room, Participants: participants})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, err := s.store.GetRoom(roomID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	messages, err := s.store.ListMessages(roomID)
	if err != nil {
		s.logger.Error("failed to list messages", "room_id", roomID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, err := s.store.GetRoom(roomID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.manager.Remove(roomID)
	if err := s.store.DeleteRoom(roomID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("room deleted", "room_id", roomID)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "room_id": roomID})
}

// handleStart, handlePause and handleModerate mirror the WebSocket control
// frames for plain HTTP clients. Signals are queued to the room reactor; any
// protocol rejection is reported on the event stream, so the REST reply only
// confirms acceptance.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.forwardSignal(w, r, "start", func(o *orchestrator.Orchestrator) error { return o.Start() })
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.forwardSignal(w, r, "pause", func(o *orchestrator.Orchestrator) error { return o.Pause() })
}

type moderateRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleModerate(w http.ResponseWriter, r *http.Request) {
	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	s.forwardSignal(w, r, "moderate", func(o *orchestrator.Orchestrator) error {
		return o.Moderate(req.Content)
	})
}

func (s *Server) forwardSignal(w http.ResponseWriter, r *http.Request, kind string, send func(*orchestrator.Orchestrator) error) {
	roomID := r.PathValue("id")
	orch, err := s.manager.Get(roomID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if err := send(orch); err != nil {
		s.logger.Warn("control signal rejected", "room_id", roomID, "type", kind, "error", err)
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "signal": kind, "room_id": roomID})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := history.ListProjects(s.historyRoot)
	if err != nil {
		s.logger.Error("failed to list projects", "root", s.historyRoot, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	if project != filepath.Base(project) || project == "." || project == ".." {
		s.writeError(w, http.StatusBadRequest, "invalid project name")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessions, err := history.ListSessions(filepath.Join(s.historyRoot, project), limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "project", project, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, core.ErrRoomNotFound) {
		s.writeError(w, http.StatusNotFound, "room not found")
		return
	}
	s.logger.Error("store error", "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
