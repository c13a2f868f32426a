package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/lgu-bplo/bizpermit-backend/internal/errors"
	"github.com/lgu-bplo/bizpermit-backend/internal/middleware"
	ws "github.com/lgu-bplo/bizpermit-backend/internal/websocket"
)

type WebSocketController struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketController only accepts upgrades from allowedOrigins.
func NewWebSocketController(hub *ws.Hub, allowedOrigins []string) *WebSocketController {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return origins[r.Header.Get("Origin")]
			},
		},
	}
}

// Connect handles GET /api/v1/ws. The token arrives as a query parameter
// and is never logged.
func (ctrl *WebSocketController) Connect(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	actor, ok := middleware.GetActor(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade to WebSocket", err)
		return
	}

	client := ws.NewClient(ctrl.hub, ws.NewConn(conn), actor.UserID, actor.Role)
	ctrl.hub.Register(client)

	go client.Serve()

	log.Info("WebSocket connection established", map[string]interface{}{
		"user_id": actor.UserID,
		"role":    actor.Role,
	})
}
