package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/orchestrator"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is a control signal sent by a connected observer.
type clientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// handleWebSocket attaches an observer to a room. The first frame is always a
// room_state snapshot; after that the connection carries the room's ordered
// event stream while inbound frames are interpreted as control signals.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	orch, err := s.manager.Get(roomID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}

	events, cancel := orch.Subscribe()
	defer cancel()

	room, roster := orch.Snapshot()
	snapshot := core.NewRoomStateEvent(room, roster)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(snapshot); err != nil {
		s.logger.Warn("failed to send room snapshot", "room_id", roomID, "error", err)
		conn.Close()
		return
	}

	done := make(chan struct{})
	pongs := make(chan struct{}, 4)
	go s.readControl(conn, orch, roomID, done, pongs)
	s.writeEvents(conn, events, done, pongs)
	conn.Close()
}

// writeEvents pumps hub events to the connection and keeps the connection
// alive with pings. Application-level pings from the reader are answered here
// so the connection has a single writer. Returns when the subscription closes
// or the reader stops.
func (s *Server) writeEvents(conn *websocket.Conn, events <-chan core.Event, done <-chan struct{}, pongs <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "room closed"))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-pongs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readControl reads inbound frames and translates them into orchestrator
// signals. Closes done when the connection drops.
func (s *Server) readControl(conn *websocket.Conn, orch *orchestrator.Orchestrator, roomID string, done chan<- struct{}, pongs chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read error", "room_id", roomID, "error", err)
			}
			return
		}

		var sigErr error
		switch msg.Type {
		case "start":
			sigErr = orch.Start()
		case "pause":
			sigErr = orch.Pause()
		case "stop":
			sigErr = orch.Stop()
		case "moderate":
			sigErr = orch.Moderate(msg.Content)
		case "ping":
			// Application-level keepalive from browser clients; the writer
			// answers with a pong frame.
			select {
			case pongs <- struct{}{}:
			default:
			}
			continue
		default:
			s.logger.Warn("unknown client message", "room_id", roomID, "type", msg.Type)
			continue
		}
		if sigErr != nil {
			s.logger.Warn("control signal rejected", "room_id", roomID, "type", msg.Type, "error", sigErr)
		}
	}
}
