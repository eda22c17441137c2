package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/middleware"
	"github.com/sirgawain0x/metoken-orchestrator/internal/services"
)

// WebSocketHandler upgrades authenticated clients onto the creation state
// stream.
type WebSocketHandler struct {
	push     *services.PushService
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

// NewWebSocketHandler wires the handler. Origin checking is delegated to the
// CORS layer in front of the upgrade.
func NewWebSocketHandler(push *services.PushService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		push: push,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream upgrades the connection and keeps it registered until the client
// goes away. The server only ever writes; reads exist to detect disconnect.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	account := middleware.AccountFromContext(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	h.push.Register(account, conn)
	defer h.push.Unregister(account, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
