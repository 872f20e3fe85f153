package gateway

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"studyroom/backend/internal/config"
	"studyroom/backend/internal/handler"
	apperrors "studyroom/backend/internal/errors"
	"studyroom/backend/internal/middleware"
	"studyroom/backend/internal/studyroom"
)

const EventConnected = "connected"

type connected struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId,omitempty"`
}

type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	ipLimiter  *IPRateLimiter
	cfg        config.GatewayConfig
	upgrader   websocket.Upgrader
	logger     zerolog.Logger
}

func NewHandler(hub *Hub, dispatcher Dispatcher, ipLimiter *IPRateLimiter, cfg config.GatewayConfig, origins middleware.OriginPolicy) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		ipLimiter:  ipLimiter,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     origins.CheckOrigin,
		},
		logger: log.With().Str("module", "gateway").Logger(),
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
// The user id, if any, was put on the context by the socket auth
// middleware.
func (h *Handler) ServeWS(c *gin.Context) {
	ip := c.ClientIP()
	if !h.ipLimiter.Allow(ip) {
		handler.WriteError(c, apperrors.RateLimited("too many connection attempts"))
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("ip", ip).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(ws, uuid.NewString(), middleware.UserID(c), ip, h.cfg.MessageRate, h.logger)
	h.hub.register(conn)
	conn.logger.Info().Str("ip", ip).Msg("connection opened")

	if frame, err := encode(studyroom.Event{
		Name: EventConnected,
		Data: connected{ConnectionID: conn.id, UserID: conn.userID},
	}); err == nil {
		conn.enqueue(frame)
	}

	go conn.writePump()
	conn.readPump(context.Background(), h.dispatcher, h.cfg.MaxMessageBytes)

	h.dispatcher.Disconnect(context.Background(), conn.id)
	h.hub.unregister(conn)
	conn.close()
	conn.logger.Info().Msg("connection closed")
}
