// Package ws pushes a connected user's live views over a websocket and
// accepts chat actions on the same connection.
package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/auth"
)

type Controller struct {
	Clients *client.Factory
	Log     *slog.Logger

	upgrader websocket.Upgrader
}

// NewController accepts connections from origins, or from anywhere when
// origins is empty.
func NewController(clients *client.Factory, origins []string, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Controller{
		Clients: clients,
		Log:     log.With("component", "ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		exception.MethodNotAllowed(w)
		return
	}
	userID := auth.Headers(r)
	if len(userID) == 0 {
		exception.Unauthorized(w)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered.
		c.Log.Debug("upgrade failed", "userId", userID, "err", err)
		return
	}

	cl, err := c.Clients.Resume(r.Context(), userID, true)
	if err != nil {
		exception.WsError(conn, err)
		conn.Close()
		return
	}

	newPeer(conn, cl, userID, c.Log).run()
}
