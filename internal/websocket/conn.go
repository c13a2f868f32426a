package websocket

import (
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lgu-bplo/bizpermit-backend/pkg/logger"
)

// Sessions are push-only. Clients send nothing but keepalive pings, so the
// inbound side is kept small and strict.
const (
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	keepaliveInterval = idleTimeout * 9 / 10

	maxInboundBytes     = 512
	maxInboundPerSecond = 10
)

// Conn is the socket behind one session.
type Conn struct {
	ws *websocket.Conn
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) write(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

// refuse tells the peer why the session ends. Safe alongside the push loop.
func (c *Conn) refuse(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}

// Serve pushes queued messages to the peer and watches the inbound side
// until either end goes away. It blocks and unregisters the client on return.
func (c *Client) Serve() {
	go c.push()
	c.listen()
}

// listen keeps the read deadline fresh and hands text frames to the hub.
// Binary frames, oversized frames and floods end the session.
func (c *Client) listen() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.ws.Close()
	}()

	ws := c.Conn.ws
	ws.SetReadLimit(maxInboundBytes)
	ws.SetReadDeadline(time.Now().Add(idleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		frameType, r, err := ws.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket session dropped", map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				})
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(idleTimeout))

		if frameType != websocket.TextMessage {
			c.Conn.refuse(websocket.CloseUnsupportedData, "text frames only")
			return
		}
		payload, err := io.ReadAll(r)
		if err != nil {
			c.Conn.refuse(websocket.CloseMessageTooBig, "message too large")
			return
		}
		if !c.Hub.HandleClientMessage(c, payload) {
			c.Conn.refuse(websocket.ClosePolicyViolation, "too many messages")
			return
		}
	}
}

// push writes each queued message as its own frame and pings the peer
// while the queue is quiet. A closed queue means the hub dropped the client.
func (c *Client) push() {
	keepalive := time.NewTicker(keepaliveInterval)
	defer func() {
		keepalive.Stop()
		c.Conn.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				c.Conn.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.write(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket push failed", map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				})
				return
			}

		case <-keepalive.C:
			if err := c.Conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
