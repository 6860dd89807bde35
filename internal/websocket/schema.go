package websocket

import (
	"encoding/json"

	"github.com/kicc/cbt-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoinSession Action = "join_session"
	ActionJoinExam    Action = "join_exam"
	ActionJoinMonitor Action = "join_monitor"
	ActionLeave       Action = "leave"
	ActionPing        Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// JoinRequest subscribes the connection to a room.
type JoinRequest struct {
	Action    Action `json:"action"`
	SessionID string `json:"session_id,omitempty"`
	ExamID    string `json:"exam_id,omitempty"`
}

// LeaveRequest unsubscribes the connection from a joined room.
type LeaveRequest struct {
	Action Action `json:"action"`
	Room   string `json:"room"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventJoined Event = "joined"
	EventLeft   Event = "left"
	EventPong   Event = "pong"
)

type JoinedResponse struct {
	Event Event  `json:"event"`
	Room  string `json:"room"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}

// RoomMessage wraps a notification with the room it was delivered to.
type RoomMessage struct {
	Room string `json:"room"`
	model.Notification
}

// EncodeRoomMessage renders the frame sent to room members.
func EncodeRoomMessage(room string, n model.Notification) ([]byte, error) {
	return json.Marshal(RoomMessage{Room: room, Notification: n})
}
