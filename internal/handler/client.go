package handler

import (
	"net/http"

	"armory/internal/logger"
	hub "armory/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// EchoPrefix is prepended to text a subscriber sends before it is rebroadcast.
const EchoPrefix = "Client said: "

// maxInboundMessage bounds a single message read from a subscriber.
const maxInboundMessage = 4096

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ViewWebsocketHandler registers subscriber connections in the hub so they
// receive broadcasts. Text a subscriber sends is echoed to every subscriber.
func ViewWebsocketHandler(hubService *hub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(maxInboundMessage)

		hubService.Register(connection)
		defer hubService.Unregister(connection)

		logger.Info("Subscriber connected from %s", r.RemoteAddr)

		for {
			messageType, msg, err := connection.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info("Subscriber disconnected normally")
				} else {
					logger.Warning("Subscriber disconnected with error: %v", err)
				}
				break
			}

			if messageType != websocket.TextMessage {
				continue
			}
			hubService.BroadcastText([]byte(EchoPrefix + string(msg)))
		}
	}
}
