// Package status derives the status posts a user may see: their own and
// those of everyone they share a chat with, posted within the visibility
// window.
package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/state"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

const DefaultWindow = 24 * time.Hour

// Aggregator keeps Statuses live through a two-level subscription graph.
// The outer subscription follows the self user's chats; every contact
// found there, plus the self user, gets an inner subscription on their
// recent posts. Inner results are merged by post id and filtered against
// the window each time they are published.
type Aggregator struct {
	store   docstore.Store
	blobs   blob.Store
	session *session.Session
	profile *state.Cell[*user.Profile]
	log     *slog.Logger

	Window time.Duration
	Now    func() time.Time

	Statuses *state.Cell[[]Post]
	Busy     *state.Cell[bool]

	pub     sync.Mutex // serializes Statuses updates
	mu      sync.Mutex
	self    string
	results map[string][]Post // by contact id
	expiry  *time.Timer
}

func NewAggregator(store docstore.Store, blobs blob.Store, sess *session.Session, profile *state.Cell[*user.Profile], log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		store:    store,
		blobs:    blobs,
		session:  sess,
		profile:  profile,
		log:      log.With("component", "status"),
		Window:   DefaultWindow,
		Now:      time.Now,
		Statuses: state.NewCell[[]Post](nil),
		Busy:     state.NewCell(false),
		results:  make(map[string][]Post),
	}
}

func contactKey(userID string) string {
	return session.KeyStatus + "/" + userID
}

// Refresh (re)starts the graph for self. Any graph built before is torn
// down first.
func (a *Aggregator) Refresh(self string) error {
	a.mu.Lock()
	a.teardownLocked()
	a.self = self
	a.mu.Unlock()

	a.Busy.Set(true)
	err := a.session.Hold(session.KeyStatus,
		func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error) {
			return a.store.Subscribe(ctx, chat.Collection, chat.ParticipantFilter(self), fn)
		},
		func(docs []docstore.Document, err error) {
			if err != nil {
				a.Busy.Set(false)
				a.session.NotifyError(apperr.Transport("cannot load status", err))
				return
			}
			a.syncContacts(self, chat.Relationships(docs))
		})
	if err != nil {
		a.Busy.Set(false)
		err = apperr.OrTransport("cannot load status", err)
		a.session.NotifyError(err)
	}
	return err
}

// syncContacts adds inner subscriptions for new contacts and drops those
// of contacts no longer in any chat.
func (a *Aggregator) syncContacts(self string, rels []chat.Relationship) {
	contacts := map[string]bool{self: true}
	for _, rel := range rels {
		if other := rel.Other(self).UserID; other != "" {
			contacts[other] = true
		}
	}

	a.mu.Lock()
	if a.self != self {
		a.mu.Unlock()
		return
	}
	var added, removed []string
	for id := range a.results {
		if !contacts[id] {
			removed = append(removed, id)
			delete(a.results, id)
		}
	}
	for id := range contacts {
		if _, ok := a.results[id]; !ok {
			added = append(added, id)
			a.results[id] = nil
		}
	}
	a.mu.Unlock()

	for _, id := range removed {
		a.session.Release(contactKey(id))
	}
	for _, id := range added {
		a.watchContact(self, id)
	}
	if len(removed) > 0 {
		a.publish()
	}
}

func (a *Aggregator) watchContact(self, contact string) {
	cutoff := a.Now().Add(-a.Window).UnixMilli()
	where := docstore.And(
		docstore.Gt("postedAtMillis", cutoff),
		docstore.Eq("author.userId", contact),
	)

	err := a.session.Hold(contactKey(contact),
		func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error) {
			return a.store.Subscribe(ctx, Collection, where, fn)
		},
		func(docs []docstore.Document, err error) {
			if err != nil {
				a.session.NotifyError(apperr.Transport("cannot load status", err))
				return
			}
			posts := docstore.DecodeAll(docs, decodePost)

			a.mu.Lock()
			if _, ok := a.results[contact]; !ok || a.self != self {
				a.mu.Unlock()
				return
			}
			a.results[contact] = posts
			a.mu.Unlock()

			a.Busy.Set(false)
			a.publish()
		})
	if err != nil {
		a.log.Warn("cannot follow contact", "userId", contact, "err", err)
	}
}

// publish merges every contact's posts, drops the expired ones and arms a
// timer for the next expiry.
func (a *Aggregator) publish() {
	now := a.Now().UnixMilli()
	window := a.Window.Milliseconds()

	a.pub.Lock()
	defer a.pub.Unlock()

	a.mu.Lock()
	if a.self == "" {
		a.mu.Unlock()
		return
	}
	seen := make(map[string]bool)
	posts := []Post{}
	for _, rs := range a.results {
		for _, p := range rs {
			if seen[p.ID] || now-p.PostedAtMillis >= window {
				continue
			}
			seen[p.ID] = true
			posts = append(posts, p)
		}
	}
	sortPosts(posts)

	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
	if len(posts) > 0 {
		next := time.Duration(posts[0].PostedAtMillis+window-now) * time.Millisecond
		a.expiry = time.AfterFunc(next, func() { a.session.Dispatch(a.publish) })
	}
	a.mu.Unlock()

	a.Statuses.Set(posts)
}

// Visible returns the published posts grouped for display.
func (a *Aggregator) Visible() Groups {
	a.mu.Lock()
	self := a.self
	a.mu.Unlock()
	return Group(a.Statuses.Get(), self)
}

// Post uploads image and publishes it as a status of the signed-in user.
func (a *Aggregator) Post(ctx context.Context, image []byte) (p *Post, err error) {
	a.Busy.Set(true)
	defer func() {
		a.Busy.Set(false)
		a.session.NotifyError(err)
	}()

	self := a.profile.Get()
	if self == nil {
		return nil, apperr.ErrNotSignedIn
	}
	url, err := a.blobs.Upload(ctx, image, "images/"+uuid.NewString())
	if err != nil {
		return nil, apperr.OrTransport("upload failed", err)
	}

	post := Post{Author: self.Ref(), MediaURL: url, PostedAtMillis: a.Now().UnixMilli()}
	data, err := docstore.Encode(post)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "cannot post status", err)
	}
	post.ID = a.store.NewID(Collection)
	if err := a.store.Put(ctx, Collection, post.ID, data, false); err != nil {
		return nil, apperr.Transport("cannot post status", err)
	}
	return &post, nil
}

// Reset tears the graph down and clears the view after sign-out.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.teardownLocked()
	a.self = ""
	a.mu.Unlock()

	a.pub.Lock()
	a.Statuses.Set(nil)
	a.pub.Unlock()
	a.Busy.Set(false)
}

func (a *Aggregator) teardownLocked() {
	for id := range a.results {
		a.session.Release(contactKey(id))
		delete(a.results, id)
	}
	if a.expiry != nil {
		a.expiry.Stop()
		a.expiry = nil
	}
}

// Snapshot computes self's visible posts once, without the live graph.
func (a *Aggregator) Snapshot(ctx context.Context, self string) ([]Post, error) {
	docs, err := a.store.Query(ctx, chat.Collection, chat.ParticipantFilter(self))
	if err != nil {
		return nil, apperr.Transport("cannot load status", err)
	}
	contacts := []any{self}
	for _, rel := range chat.Relationships(docs) {
		if other := rel.Other(self).UserID; other != "" && other != self {
			contacts = append(contacts, other)
		}
	}

	now := a.Now()
	docs, err = a.store.Query(ctx, Collection, docstore.And(
		docstore.Gt("postedAtMillis", now.Add(-a.Window).UnixMilli()),
		docstore.In("author.userId", contacts...),
	))
	if err != nil {
		return nil, apperr.Transport("cannot load status", err)
	}
	posts := docstore.DecodeAll(docs, decodePost)
	sortPosts(posts)
	return posts, nil
}
