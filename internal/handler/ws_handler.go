package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	ws "github.com/kicc/cbt-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler upgrades clients to the notification socket and manages their
// room membership.
type WSHandler struct {
	hub            *ws.Hub
	monitorService *service.MonitorService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub, monitorService *service.MonitorService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:            hub,
		monitorService: monitorService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// Rooms godoc
// WS /ws/v1/rooms?token=...
// Clients join session, exam or monitor rooms and receive their notifications.
func (h *WSHandler) Rooms(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := h.hub.NewClient(claims.UserID)
	go ws.WritePump(conn, client)
	defer h.hub.Remove(client)

	wsLog := h.log.With().
		Str("user_id", claims.UserID.String()).
		Str("client_id", client.ID.String()).
		Logger()
	wsLog.Info().Msg("Client connected")

	ws.KeepReading(conn)
	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"})
			continue
		}

		switch env.Action {
		case ws.ActionJoinSession, ws.ActionJoinExam, ws.ActionJoinMonitor:
			h.handleJoin(c, client, claims, env.Action, raw, wsLog)
		case ws.ActionLeave:
			var req ws.LeaveRequest
			_ = json.Unmarshal(raw, &req)
			if h.hub.Leave(client, req.Room) {
				reply(client, ws.JoinedResponse{Event: ws.EventLeft, Room: req.Room})
			} else {
				reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "not in room " + req.Room})
			}
		case ws.ActionPing:
			reply(client, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(env.Action)})
		}
	}
}

func (h *WSHandler) handleJoin(c *gin.Context, client *ws.Client, claims *service.Claims, action ws.Action, raw json.RawMessage, wsLog zerolog.Logger) {
	var req ws.JoinRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "malformed join"})
		return
	}

	kind, idStr := service.RoomExam, req.ExamID
	switch action {
	case ws.ActionJoinSession:
		kind, idStr = service.RoomSession, req.SessionID
	case ws.ActionJoinMonitor:
		kind = service.RoomMonitor
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		reply(client, ws.ErrorResponse{Event: ws.EventError, Error: "invalid id"})
		return
	}

	room, err := h.monitorService.AuthorizeRoom(c.Request.Context(), claims.UserID, claims.Role, kind, id)
	if err != nil {
		msg := "join failed"
		if !errors.Is(err, service.ErrNotExamOwner) && !errors.Is(err, service.ErrNotSessionOwner) &&
			!errors.Is(err, service.ErrSessionNotFound) && !errors.Is(err, service.ErrExamNotFound) {
			wsLog.Error().Err(err).Msg("Room authorization failed")
		} else {
			msg = err.Error()
		}
		reply(client, ws.ErrorResponse{Event: ws.EventError, Error: msg})
		return
	}

	h.hub.Join(client, room)
	reply(client, ws.JoinedResponse{Event: ws.EventJoined, Room: room})
	wsLog.Debug().Str("room", room).Msg("Joined room")
}

func reply(client *ws.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	client.Queue(data)
}
