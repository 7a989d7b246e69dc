package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/telecall/internal/adapters/notify"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveEvents upgrades to a websocket that receives hub notifications,
// starting with the current call state.
func serveEvents(ctx context.Context, c *gin.Context, hub *notify.Hub, svc CallService) {
	id := c.GetString(clientTokenKey)
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	client := notify.NewWSClient(id, ws)
	st := svc.Status()
	if b, err := json.Marshal(notify.Notification{Type: notify.TypeState, State: st.State.String(), Participants: st.Participants}); err == nil {
		_ = client.TrySend(b)
	}
	hub.Register(ctx, client)

	connCtx, cancel := context.WithCancel(ctx)
	go client.WritePump(connCtx)
	go func() {
		defer cancel()
		client.ReadPump()
		hub.Unregister(ctx, client)
		client.Close()
	}()
}
