package api

import (
	"context"
	"net/http"

	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/status"
)

type statusController struct {
	*API
}

func (c *statusController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
			posts, err := cl.Status.Snapshot(ctx, userID)
			if err != nil {
				c.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, status.Group(posts, userID))
		})

	case http.MethodPost:
		data, ok := c.readUpload(w, r)
		if !ok {
			return
		}
		c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
			post, err := cl.Status.Post(ctx, data)
			if err != nil {
				c.writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, post)
		})

	default:
		exception.MethodNotAllowed(w)
	}
}
