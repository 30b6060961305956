package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/rus-sharafiev/go-rest-common/exception"

	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
)

type chatController struct {
	*API
}

func (c *chatController) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Path, "/")
	switch parts := strings.Split(path, "/")[2:]; {

	// chats
	case len(parts) == 0:
		switch r.Method {
		case http.MethodGet:
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.findAll(ctx, w, cl, userID)
			})
		case http.MethodPost:
			var dto chat.NewChatDto
			if !c.readJSON(w, r, &dto) {
				return
			}
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.create(ctx, w, cl, dto)
			})
		default:
			exception.MethodNotAllowed(w)
		}

	// chats/{id}
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			exception.MethodNotAllowed(w)
			return
		}
		c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
			c.findOne(ctx, w, cl, userID, parts[0])
		})

	// chats/{id}/messages
	case len(parts) == 2 && parts[1] == "messages":
		switch r.Method {
		case http.MethodGet:
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.history(ctx, w, cl, userID, parts[0])
			})
		case http.MethodPost:
			var dto chat.SendDto
			if !c.readJSON(w, r, &dto) {
				return
			}
			c.withClient(w, r, func(ctx context.Context, cl *client.Client, userID string) {
				c.send(ctx, w, cl, userID, parts[0], dto)
			})
		default:
			exception.MethodNotAllowed(w)
		}

	default:
		http.NotFound(w, r)
	}
}

// -- FIND ALL --------------------------------------------------------------------

func (c *chatController) findAll(ctx context.Context, w http.ResponseWriter, cl *client.Client, userID string) {
	rels, err := cl.Chats.List(ctx, userID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if rels == nil {
		rels = []chat.Relationship{}
	}
	writeJSON(w, http.StatusOK, rels)
}

// -- CREATE ----------------------------------------------------------------------

func (c *chatController) create(ctx context.Context, w http.ResponseWriter, cl *client.Client, dto chat.NewChatDto) {
	rel, err := cl.Chats.RequestNewChat(ctx, dto.Phone)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

// -- FIND ONE --------------------------------------------------------------------

func (c *chatController) findOne(ctx context.Context, w http.ResponseWriter, cl *client.Client, userID, chatID string) {
	rel, err := cl.Chats.Get(ctx, userID, chatID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

// -- MESSAGES --------------------------------------------------------------------

func (c *chatController) history(ctx context.Context, w http.ResponseWriter, cl *client.Client, userID, chatID string) {
	if _, err := cl.Chats.Get(ctx, userID, chatID); err != nil {
		c.writeError(w, err)
		return
	}
	msgs, err := cl.Messages.History(ctx, chatID)
	if err != nil {
		c.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (c *chatController) send(ctx context.Context, w http.ResponseWriter, cl *client.Client, userID, chatID string, dto chat.SendDto) {
	if _, err := cl.Chats.Get(ctx, userID, chatID); err != nil {
		c.writeError(w, err)
		return
	}
	if err := cl.Messages.Send(ctx, chatID, userID, dto.Body); err != nil {
		c.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
