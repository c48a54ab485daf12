package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// upgrader grounds on the teacher's internal/infrastructure/websocket
// Handler.upgrader: origin checking is left wide open here since this
// core has no session/CORS policy to enforce it against.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWebSocket upgrades the connection and streams every Event the bus
// emits from here on (spec §6 "Server -> client: one JSON-encoded event per
// message"). Inbound messages are read and discarded by ReadPump, acting as
// a keep-alive; disconnection unregisters the client from the bus.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err, "remote_addr", c.Request.RemoteAddr)
		return
	}

	client := s.hub.NewClient(uuid.NewString(), conn)
	s.bus.AddStreamingClient(client)

	go func() {
		client.WritePump()
		s.bus.RemoveStreamingClient(client)
	}()
	client.ReadPump()
}
