package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore/storetest"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) docstore.Store { return docstore.NewMemory() })
}

func TestMemoryUnsubscribeReleasesListener(t *testing.T) {
	m := docstore.NewMemory()
	delivered := make(chan struct{}, 1)
	sub, err := m.Subscribe(context.Background(), "status", docstore.All(), func([]docstore.Document, error) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)
	<-delivered
	assert.Equal(t, 1, m.Broker().Listeners("status"))

	sub.Cancel()
	<-sub.Done()
	assert.Equal(t, 0, m.Broker().Listeners("status"))
}

func TestFilterMatch(t *testing.T) {
	doc := map[string]any{
		"author":         map[string]any{"userId": "u1"},
		"postedAtMillis": float64(100),
	}

	assert.True(t, docstore.All().Match(doc))
	assert.True(t, docstore.Eq("author.userId", "u1").Match(doc))
	assert.False(t, docstore.Eq("author.name", "u1").Match(doc))
	assert.True(t, docstore.Gt("postedAtMillis", int64(99)).Match(doc))
	assert.False(t, docstore.Gt("postedAtMillis", 100).Match(doc))
	assert.True(t, docstore.Lt("postedAtMillis", 101).Match(doc))
	assert.True(t, docstore.In("author.userId", "u0", "u1").Match(doc))
	assert.False(t, docstore.In("author.userId").Match(doc))
	assert.False(t, docstore.Gt("author.userId", 1).Match(doc))
	assert.True(t, docstore.Or(docstore.Eq("x", 1), docstore.Eq("author.userId", "u1")).Match(doc))
	assert.False(t, docstore.And(docstore.Eq("x", 1), docstore.Eq("author.userId", "u1")).Match(doc))
}
