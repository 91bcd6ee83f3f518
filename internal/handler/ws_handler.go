package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/fanstage/live-service/internal/config"
	"github.com/fanstage/live-service/internal/domain"
	"github.com/fanstage/live-service/internal/hub"
	"github.com/fanstage/live-service/internal/service"
	"github.com/fanstage/live-service/pkg/log"
	"github.com/fanstage/live-service/pkg/middleware"
)

// WSHandler upgrades HTTP requests to websocket connections and dispatches
// inbound frames to the live service.
type WSHandler struct {
	registry *hub.Registry
	live     service.LiveService
	upgrader websocket.Upgrader
}

// NewWSHandler creates a websocket handler.
func NewWSHandler(registry *hub.Registry, live service.LiveService, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		registry: registry,
		live:     live,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			// Origin checks happen at the gateway; this service is not
			// internet-facing.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket upgrades the request and runs the connection's pumps.
// The registry close path fires exactly once whether the client leaves
// cleanly or the transport drops.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID := middleware.UserID(c)
	username := middleware.Username(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Str(log.FieldUserID, userID).Msg("websocket upgrade failed")
		return
	}

	client := h.registry.Open(userID, username, conn)

	go client.WritePump()
	go client.ReadPump(h.dispatch, func(cl *hub.Client) {
		h.registry.Close(cl.ID)
	})
}

// dispatch decodes one inbound frame and routes it by message type.
func (h *WSHandler) dispatch(client *hub.Client, raw []byte) {
	ctx := context.Background()

	var base domain.BaseMessage
	if err := json.Unmarshal(raw, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "malformed message"))
		return
	}

	switch base.Type {
	case domain.MsgTypeSubscribe:
		var msg domain.SubscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic.IsZero() {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "malformed subscribe message"))
			return
		}
		h.live.HandleSubscribe(ctx, client, &msg)

	case domain.MsgTypeUnsubscribe:
		var msg domain.UnsubscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic.IsZero() {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "malformed unsubscribe message"))
			return
		}
		h.live.HandleUnsubscribe(ctx, client, &msg)

	case domain.MsgTypeEmit:
		var msg domain.EmitMessage
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Topic.IsZero() {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "malformed emit message"))
			return
		}
		h.live.HandleEmit(ctx, client, &msg)

	case domain.MsgTypePing:
		client.SendMessage(domain.BaseMessage{Type: domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "unknown message type"))
	}
}
