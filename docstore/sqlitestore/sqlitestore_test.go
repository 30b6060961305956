package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) docstore.Store {
		s, err := Open(filepath.Join(t.TempDir(), "chat.db"))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chat.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "user", "u1", map[string]any{"name": "A"}, false))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.Get(ctx, "user", "u1")
	require.NoError(t, err)
	assert.Equal(t, "A", doc.Data["name"])
}
