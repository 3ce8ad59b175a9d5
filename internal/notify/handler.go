package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// Handler upgrades the request to a WebSocket and streams the events of
// the user resolved by userID. Requests without a user get 401.
func Handler(hub *Hub, userID func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			http.Error(w, "missing user", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Warn("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		events, cancel := hub.Subscribe(uid)
		defer cancel()

		// Reads are only needed to observe the client closing.
		ctx := conn.CloseRead(r.Context())
		slog.Debug("event stream opened", "user_id", uid, "subscribers", hub.Subscribers(uid))

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-events:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "server shutting down")
					return
				}
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, e)
				wcancel()
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						slog.Debug("event stream write failed", "user_id", uid, "error", err)
					}
					return
				}
			}
		}
	})
}
