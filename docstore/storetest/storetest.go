// Package storetest is the behaviour suite every docstore backend runs.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

const wait = 5 * time.Second

// Run exercises newStore against the docstore.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "user", "nobody")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("put replace and merge", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Put(ctx, "user", "u1", map[string]any{"name": "A", "number": "555"}, false))
		require.NoError(t, s.Put(ctx, "user", "u1", map[string]any{"name": "X"}, true))

		doc, err := s.Get(ctx, "user", "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "X", "number": "555"}, doc.Data)

		require.NoError(t, s.Put(ctx, "user", "u1", map[string]any{"name": "Y"}, false))
		doc, err = s.Get(ctx, "user", "u1")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "Y"}, doc.Data)
	})

	t.Run("create is insert only", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Create(ctx, "chats", "a_b", map[string]any{"chatId": "a_b"}))
		err := s.Create(ctx, "chats", "a_b", map[string]any{"chatId": "other"})
		assert.ErrorIs(t, err, docstore.ErrExists)

		doc, err := s.Get(ctx, "chats", "a_b")
		require.NoError(t, err)
		assert.Equal(t, "a_b", doc.Data["chatId"])
	})

	t.Run("delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Put(ctx, "status", "p1", map[string]any{"mediaUrl": "x"}, false))
		require.NoError(t, s.Delete(ctx, "status", "p1"))
		require.NoError(t, s.Delete(ctx, "status", "p1"))
		_, err := s.Get(ctx, "status", "p1")
		assert.ErrorIs(t, err, docstore.ErrNotFound)
	})

	t.Run("query filters and keeps insertion order", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		put := func(id string, data map[string]any) {
			require.NoError(t, s.Put(ctx, "chats", id, data, false))
		}
		put("c3", chat("u1", "111", "u3", "333"))
		put("c1", chat("u2", "222", "u1", "111"))
		put("c2", chat("u2", "222", "u3", "333"))

		docs, err := s.Query(ctx, "chats", docstore.Or(
			docstore.Eq("participantA.userId", "u1"),
			docstore.Eq("participantB.userId", "u1"),
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"c3", "c1"}, ids(docs))

		docs, err = s.Query(ctx, "chats", docstore.And(
			docstore.Eq("participantA.phoneNumber", "222"),
			docstore.Eq("participantB.phoneNumber", "333"),
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"c2"}, ids(docs))

		docs, err = s.Query(ctx, "chats", docstore.All())
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("numeric range and in", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for id, p := range map[string]struct {
			author string
			at     int64
		}{
			"old":   {"u1", 1_000},
			"fresh": {"u2", 9_000},
			"other": {"u9", 9_500},
		} {
			require.NoError(t, s.Put(ctx, "status", id, map[string]any{
				"author":         map[string]any{"userId": p.author},
				"postedAtMillis": p.at,
			}, false))
		}

		docs, err := s.Query(ctx, "status", docstore.And(
			docstore.Gt("postedAtMillis", int64(5_000)),
			docstore.In("author.userId", "u1", "u2"),
		))
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, ids(docs))

		docs, err = s.Query(ctx, "status", docstore.Lt("postedAtMillis", int64(5_000)))
		require.NoError(t, err)
		assert.Equal(t, []string{"old"}, ids(docs))
	})

	t.Run("subscribe redelivers full set", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		coll := "chats/c1/messages"

		snapshots := make(chan []docstore.Document, 16)
		sub, err := s.Subscribe(ctx, coll, docstore.All(), func(docs []docstore.Document, err error) {
			if err == nil {
				snapshots <- docs
			}
		})
		require.NoError(t, err)
		defer sub.Cancel()

		assert.Empty(t, next(t, snapshots))

		require.NoError(t, s.Put(ctx, coll, s.NewID(coll), map[string]any{"body": "hi"}, false))
		assert.Len(t, waitFor(t, snapshots, 1), 1)

		require.NoError(t, s.Put(ctx, coll, s.NewID(coll), map[string]any{"body": "hey"}, false))
		assert.Len(t, waitFor(t, snapshots, 2), 2)

		sub.Cancel()
		select {
		case <-sub.Done():
		case <-time.After(wait):
			t.Fatal("subscription did not stop")
		}
	})

	t.Run("new ids are unique", func(t *testing.T) {
		s := newStore(t)
		assert.NotEqual(t, s.NewID("chats"), s.NewID("chats"))
	})
}

func chat(aID, aPhone, bID, bPhone string) map[string]any {
	return map[string]any{
		"participantA": map[string]any{"userId": aID, "phoneNumber": aPhone},
		"participantB": map[string]any{"userId": bID, "phoneNumber": bPhone},
	}
}

func ids(docs []docstore.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func next(t *testing.T, ch <-chan []docstore.Document) []docstore.Document {
	t.Helper()
	select {
	case docs := <-ch:
		return docs
	case <-time.After(wait):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

// waitFor skips intermediate snapshots until one of size n arrives.
func waitFor(t *testing.T, ch <-chan []docstore.Document, n int) []docstore.Document {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case docs := <-ch:
			if len(docs) == n {
				return docs
			}
		case <-deadline:
			t.Fatalf("no snapshot with %d documents", n)
			return nil
		}
	}
}
