package gateway

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"arrowctl/internal/protocol"
	"arrowctl/internal/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// token possession is the access check; the bundled UI and external
	// tools connect from arbitrary origins
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewClient reserves a session token and tells the client where to
// upgrade.
func (this *Gateway) NewClient(c *gin.Context) {
	token := this.registry.Reserve()
	c.JSON(http.StatusOK, gin.H{"url": "/ws/" + token})
}

// DeleteClient drops a session unconditionally. Idempotent: deleting an
// unknown token is still a 200.
func (this *Gateway) DeleteClient(c *gin.Context) {
	this.registry.Detach(c.Param("token"))
	c.Status(http.StatusOK)
}

// LiveChannel upgrades a reserved token to its websocket. The handler
// stays in the read loop for the whole session.
func (this *Gateway) LiveChannel(c *gin.Context) {
	token := c.Param("token")
	if !this.registry.Known(token) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("[WARN] websocket upgrade failed:", err)
		return
	}

	conn, err := this.registry.Attach(token)
	if err != nil {
		// token deleted between the check and the upgrade
		ws.Close()
		return
	}

	go writeLoop(ws, conn)
	this.readLoop(c.Request.Context(), ws, conn, token)
}

// readLoop decodes inbound frames and answers each with exactly one
// response. Malformed frames get an Error response and the session lives
// on; only a socket error ends the loop.
func (this *Gateway) readLoop(ctx context.Context, ws *websocket.Conn, conn *registry.Conn, token string) {
	defer ws.Close()
	defer this.registry.DetachOwned(token, conn)

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			conn.Send(protocol.ResponseOf(protocol.Errorf("cannot parse frame: %v", err)))
			continue
		}
		if env.Request == nil {
			conn.Send(protocol.ResponseOf(protocol.Error("only requests are accepted on this channel")))
			continue
		}
		conn.Send(protocol.ResponseOf(this.dispatcher.Dispatch(ctx, env.Request)))
	}
}

// writeLoop is the session's single socket writer. It drains the outbound
// channel until the connection is detached or superseded, then closes the
// socket so the peer's read fails promptly.
func writeLoop(ws *websocket.Conn, conn *registry.Conn) {
	for {
		select {
		case env := <-conn.Out:
			frame, err := protocol.Encode(env)
			if err != nil {
				log.Println("[ERR] cannot encode frame:", err)
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				ws.Close()
				return
			}
		case <-conn.Done:
			ws.Close()
			return
		}
	}
}
