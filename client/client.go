// Package client wires the chat core for one connected user: a session,
// the identity of that user and the four components sharing them.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/identity"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/status"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

// Factory holds what every client of a server shares.
type Factory struct {
	Store    docstore.Store
	Blobs    blob.Store
	Accounts *identity.Accounts
	Window   time.Duration
	Log      *slog.Logger
}

type Client struct {
	Session  *session.Session
	Identity identity.Identity
	Users    *user.Manager
	Chats    *chat.Resolver
	Messages *chat.Synchronizer
	Status   *status.Aggregator
}

// New builds a signed-out client. When live is set, signing in starts the
// profile view, the chat list and the status graph; otherwise the client
// holds no subscriptions and serves one-shot reads.
func (f *Factory) New(live bool, opts ...identity.Option) *Client {
	log := f.Log
	if log == nil {
		log = slog.Default()
	}

	sess := session.New(log)
	id := identity.NewClient(f.Accounts, opts...)
	users := user.NewManager(f.Store, f.Blobs, id, sess, log)
	users.FollowProfile = live

	c := &Client{
		Session:  sess,
		Identity: id,
		Users:    users,
		Chats:    chat.NewResolver(f.Store, sess, users.Profile, log),
		Messages: chat.NewSynchronizer(f.Store, sess, log),
		Status:   status.NewAggregator(f.Store, f.Blobs, sess, users.Profile, log),
	}
	if f.Window > 0 {
		c.Status.Window = f.Window
	}

	if live {
		users.OnSignIn(func(userID string) {
			// Failures are already queued as notices.
			_ = c.Chats.SubscribeChats(userID)
			_ = c.Status.Refresh(userID)
		})
	}
	users.OnSignOut(c.reset)
	return c
}

// Resume builds a client for a user whose token was already checked and
// restores their session.
func (f *Factory) Resume(ctx context.Context, userID string, live bool) (*Client, error) {
	c := f.New(live, identity.WithUser(userID))
	restored, err := c.Users.Restore(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if !restored {
		c.Close()
		return nil, apperr.ErrNotSignedIn
	}
	return c, nil
}

// UserID returns the signed-in user.
func (c *Client) UserID() (string, error) {
	id, ok := c.Session.UserID()
	if !ok {
		return "", apperr.ErrNotSignedIn
	}
	return id, nil
}

// Close releases everything the client holds without signing the user
// out, as when a connection drops.
func (c *Client) Close() {
	c.Session.Close()
	c.reset()
}

func (c *Client) reset() {
	c.Messages.Deactivate()
	c.Chats.Reset()
	c.Status.Reset()
}
