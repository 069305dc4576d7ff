package handlers

import (
	"net/http"
	"strings"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/NethermindEth/agent-protocol/communication"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // observers are read-only
	},
}

// Subscriber is the notification source a websocket streams from.
type Subscriber interface {
	Subscribe() (<-chan communication.Notification, func())
}

// HandleWebSocket streams committed notifications to the client. The
// optional ?types=JobCreated,PaymentReleased query narrows the stream.
func HandleWebSocket(hub Subscriber, logger log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := map[string]bool{}
		for _, t := range strings.Split(c.Query("types"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter[t] = true
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade connection", "err", err)
			return
		}
		defer conn.Close()

		notifications, cancel := hub.Subscribe()
		defer cancel()
		logger.Debug("websocket subscribed", "remote", c.Request.RemoteAddr, "types", c.Query("types"))

		// Reading is only used to notice the client going away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				logger.Debug("websocket closed", "remote", c.Request.RemoteAddr)
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				if len(filter) > 0 && !filter[n.Type] {
					continue
				}
				if err := conn.WriteJSON(n); err != nil {
					logger.Error("error writing to websocket", "err", err)
					return
				}
			}
		}
	}
}
