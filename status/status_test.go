package status

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/logger"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/identity"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

const wait = 2 * time.Second

type world struct {
	store    *docstore.Memory
	accounts *identity.Accounts
	blobs    blob.Store
}

type member struct {
	id       string
	session  *session.Session
	users    *user.Manager
	resolver *chat.Resolver
	status   *Aggregator
}

func newWorld(t *testing.T) *world {
	store := docstore.NewMemory()
	return &world{
		store:    store,
		accounts: identity.NewAccounts(store),
		blobs:    blob.NewFS(t.TempDir(), "/uploads", 1<<20),
	}
}

func (w *world) join(t *testing.T, name, phone string) *member {
	t.Helper()
	sess := session.New(logger.Discard())
	t.Cleanup(sess.Close)

	users := user.NewManager(w.store, w.blobs, identity.NewClient(w.accounts), sess, logger.Discard())
	require.NoError(t, users.Register(context.Background(), user.RegisterDto{
		Name: name, Phone: phone, Email: name + "@example.com", Password: "secret",
	}))
	id, _ := sess.UserID()

	return &member{
		id:       id,
		session:  sess,
		users:    users,
		resolver: chat.NewResolver(w.store, sess, users.Profile, logger.Discard()),
		status:   NewAggregator(w.store, w.blobs, sess, users.Profile, logger.Discard()),
	}
}

func (w *world) post(t *testing.T, id, author string, at time.Time) {
	t.Helper()
	require.NoError(t, w.store.Put(context.Background(), Collection, id, map[string]any{
		"author":         map[string]any{"userId": author},
		"mediaUrl":       "/uploads/images/" + id,
		"postedAtMillis": at.UnixMilli(),
	}, false))
}

func postIDs(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func eventuallyIDs(t *testing.T, a *Aggregator, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, postIDs(a.Statuses.Get()))
	}, wait, 5*time.Millisecond, "want %v, have %v", want, postIDs(a.Statuses.Get()))
}

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))))
	return buf.Bytes()
}

func TestWindowFiltersExpiredPosts(t *testing.T) {
	w := newWorld(t)
	u1, u2 := w.join(t, "u1", "111"), w.join(t, "u2", "222")
	_, err := u1.resolver.RequestNewChat(context.Background(), "222")
	require.NoError(t, err)

	now := time.Now()
	w.post(t, "stale", u2.id, now.Add(-25*time.Hour))
	w.post(t, "fresh", u2.id, now.Add(-23*time.Hour))

	require.NoError(t, u1.status.Refresh(u1.id))
	eventuallyIDs(t, u1.status, "fresh")
	assert.False(t, u1.status.Busy.Get())
}

func TestOwnPostsWithoutChats(t *testing.T) {
	w := newWorld(t)
	u3 := w.join(t, "u3", "333")

	require.NoError(t, u3.status.Refresh(u3.id))
	require.Eventually(t, func() bool { return u3.status.Statuses.Get() != nil }, wait, 5*time.Millisecond)
	assert.Empty(t, u3.status.Statuses.Get())

	p, err := u3.status.Post(context.Background(), pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, u3.id, p.Author.UserID)
	assert.Equal(t, "333", p.Author.PhoneNumber)

	eventuallyIDs(t, u3.status, p.ID)
	g := u3.status.Visible()
	assert.Len(t, g.Own, 1)
	assert.Empty(t, g.Others)
}

func TestPostRejectsNonImage(t *testing.T) {
	w := newWorld(t)
	u := w.join(t, "u1", "111")

	_, err := u.status.Post(context.Background(), []byte("text"))
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
	assert.False(t, u.status.Busy.Get())
}

func TestContactsMergeAcrossChats(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	u1, u2, u3 := w.join(t, "u1", "111"), w.join(t, "u2", "222"), w.join(t, "u3", "333")
	stranger := w.join(t, "u4", "444")

	now := time.Now()
	w.post(t, "a", u2.id, now.Add(-3*time.Hour))
	w.post(t, "b", u3.id, now.Add(-2*time.Hour))
	w.post(t, "c", stranger.id, now.Add(-time.Hour))

	_, err := u1.resolver.RequestNewChat(ctx, "222")
	require.NoError(t, err)
	require.NoError(t, u1.status.Refresh(u1.id))
	eventuallyIDs(t, u1.status, "a")

	// A chat created later adds its contact without dropping the first.
	_, err = u3.resolver.RequestNewChat(ctx, "111")
	require.NoError(t, err)
	eventuallyIDs(t, u1.status, "a", "b")

	// New posts from a contact are picked up live.
	w.post(t, "d", u3.id, now)
	eventuallyIDs(t, u1.status, "a", "b", "d")

	g := u1.status.Visible()
	assert.Empty(t, g.Own)
	require.Len(t, g.Others, 2)
	assert.Equal(t, u2.id, g.Others[0].Author.UserID)
	assert.Equal(t, []string{"b", "d"}, postIDs(g.Others[1].Posts))

	// Removing a chat drops its contact.
	require.NoError(t, w.store.Delete(ctx, chat.Collection, chat.PairID(u1.id, u2.id)))
	eventuallyIDs(t, u1.status, "b", "d")
}

func TestExpiryRepublishes(t *testing.T) {
	w := newWorld(t)
	u := w.join(t, "u1", "111")
	u.status.Window = time.Second

	w.post(t, "soon", u.id, time.Now().Add(-700*time.Millisecond))
	w.post(t, "later", u.id, time.Now().Add(time.Hour))

	require.NoError(t, u.status.Refresh(u.id))
	eventuallyIDs(t, u.status, "soon", "later")
	eventuallyIDs(t, u.status, "later")
}

func TestSignOutStopsGraph(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	u1, _ := w.join(t, "u1", "111"), w.join(t, "u2", "222")
	_, err := u1.resolver.RequestNewChat(ctx, "222")
	require.NoError(t, err)

	require.NoError(t, u1.status.Refresh(u1.id))
	require.Eventually(t, func() bool { return w.store.Broker().Listeners(Collection) == 2 }, wait, 5*time.Millisecond)

	u1.users.OnSignOut(u1.status.Reset)
	u1.users.SignOut()

	assert.Nil(t, u1.status.Statuses.Get())
	require.Eventually(t, func() bool { return w.store.Broker().Listeners(Collection) == 0 }, wait, 5*time.Millisecond)
	assert.ErrorIs(t, u1.status.Refresh(u1.id), apperr.ErrNotSignedIn)
}

func TestPublishAfterResetKeepsViewCleared(t *testing.T) {
	w := newWorld(t)
	u := w.join(t, "u1", "111")
	w.post(t, "mine", u.id, time.Now())

	require.NoError(t, u.status.Refresh(u.id))
	eventuallyIDs(t, u.status, "mine")

	u.status.Reset()
	assert.Nil(t, u.status.Statuses.Get())

	// An expiry or delivery queued before the reset runs late.
	u.status.publish()
	assert.Nil(t, u.status.Statuses.Get())
}

func TestGroup(t *testing.T) {
	ref := func(id string) user.ContactRef { return user.ContactRef{UserID: id} }
	posts := []Post{
		{ID: "1", Author: ref("b")},
		{ID: "2", Author: ref("me")},
		{ID: "3", Author: ref("c")},
		{ID: "4", Author: ref("b")},
	}

	g := Group(posts, "me")
	assert.Equal(t, []string{"2"}, postIDs(g.Own))
	require.Len(t, g.Others, 2)
	assert.Equal(t, "b", g.Others[0].Author.UserID)
	assert.Equal(t, []string{"1", "4"}, postIDs(g.Others[0].Posts))
	assert.Equal(t, "c", g.Others[1].Author.UserID)

	empty := Group(nil, "me")
	assert.NotNil(t, empty.Own)
	assert.NotNil(t, empty.Others)
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	now := time.Now()
	w.post(t, "old", "u1", now.Add(-72*time.Hour))
	w.post(t, "recent", "u1", now.Add(-time.Hour))

	s := NewSweeper(w.store, 48*time.Hour, time.Hour, logger.Discard())
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = w.store.Get(ctx, Collection, "old")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = w.store.Get(ctx, Collection, "recent")
	assert.NoError(t, err)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("sweeper did not stop")
	}
}

func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	u1, u2, u3 := w.join(t, "u1", "111"), w.join(t, "u2", "222"), w.join(t, "u3", "333")
	_, err := u1.resolver.RequestNewChat(ctx, "222")
	require.NoError(t, err)

	now := time.Now()
	w.post(t, "mine", u1.id, now.Add(-time.Hour))
	w.post(t, "friend", u2.id, now.Add(-2*time.Hour))
	w.post(t, "expired", u2.id, now.Add(-30*time.Hour))
	w.post(t, "stranger", u3.id, now)

	posts, err := u1.status.Snapshot(ctx, u1.id)
	require.NoError(t, err)
	assert.Equal(t, []string{"friend", "mine"}, postIDs(posts))
}
