package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

type userController struct {
	*API
}

func (c *userController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	switch parts := strings.Split(path, "/")[2:]; {

	// users/me
	case len(parts) == 1 && parts[0] == "me":
		switch r.Method {
		case http.MethodGet:
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.findMe(w, cl)
			})
		case http.MethodPatch:
			var dto user.Update
			if !c.readJSON(w, r, &dto) {
				return
			}
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.update(ctx, w, cl, dto)
			})
		default:
			exception.MethodNotAllowed(w)
		}

	// users/me/avatar
	case len(parts) == 2 && parts[0] == "me" && parts[1] == "avatar":
		if r.Method != http.MethodPost {
			exception.MethodNotAllowed(w)
			return
		}
		data, ok := c.readUpload(w, r)
		if !ok {
			return
		}
		c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
			c.uploadAvatar(ctx, w, cl, data)
		})

	default:
		http.NotFound(w, r)
	}
}

// -- FIND ME ---------------------------------------------------------------------

func (c *userController) findMe(w http.ResponseWriter, cl *client.Client) {
	p, err := cl.Users.Current()
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// -- UPDATE ----------------------------------------------------------------------

func (c *userController) update(ctx context.Context, w http.ResponseWriter, cl *client.Client, dto user.Update) {
	p, err := cl.Users.UpsertProfile(ctx, dto)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// -- AVATAR ----------------------------------------------------------------------

func (c *userController) uploadAvatar(ctx context.Context, w http.ResponseWriter, cl *client.Client, data []byte) {
	p, err := cl.Users.UploadAvatar(ctx, data)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
