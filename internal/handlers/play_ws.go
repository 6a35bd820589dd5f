// internal/handlers/play_ws.go
package handlers

import (
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
	"github.com/vicr123/entertaining-server/internal/middleware"
	"github.com/vicr123/entertaining-server/internal/play"
)

// PlayWSHandler upgrades /play and gives the socket to the gateway until it closes.
// Clients are native apps as well as browsers, so any origin is accepted.
func PlayWSHandler(logger *logrus.Logger, gw *play.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}

		start := time.Now()
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		gw.Serve(r.Context(), c, r.RemoteAddr)
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, time.Since(start))
	}
}
