package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/chat"
	"github.com/ihazratummar/Neat-Roots-Chat-app/client"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/auth"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/logger"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/identity"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type fixture struct {
	srv     *httptest.Server
	factory *client.Factory
	tokens  *auth.Issuer
}

func newFixture(t *testing.T) *fixture {
	store := docstore.NewMemory()
	f := &client.Factory{
		Store:    store,
		Blobs:    blob.NewFS(t.TempDir(), "/uploads", 1<<20),
		Accounts: identity.NewAccounts(store),
		Log:      logger.Discard(),
	}
	tokens := auth.NewIssuer("test-secret", time.Hour)
	srv := httptest.NewServer(auth.Guard(tokens)(NewController(f, nil, logger.Discard())))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, factory: f, tokens: tokens}
}

// register signs a user up and returns their id and an access token.
func (fx *fixture) register(t *testing.T, name, phone string) (string, string) {
	t.Helper()
	c := fx.factory.New(false)
	defer c.Close()
	require.NoError(t, c.Users.Register(context.Background(), user.RegisterDto{
		Name: name, Phone: phone, Email: name + "@example.com", Password: "secret",
	}))
	id, err := c.UserID()
	require.NoError(t, err)
	token, err := fx.tokens.GenerateAccessToken(id)
	require.NoError(t, err)
	return id, token
}

func (fx *fixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expect reads frames until one of type typ satisfies match.
func expect[T any](t *testing.T, conn *websocket.Conn, typ string, match func(T) bool) T {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f inbound
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != typ {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(f.Data, &v))
		if match(v) {
			return v
		}
	}
}

func TestRejectsAnonymous(t *testing.T) {
	fx := newFixture(t)
	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http")
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestLiveViews(t *testing.T) {
	fx := newFixture(t)
	u1, token1 := fx.register(t, "u1", "111")
	u2, token2 := fx.register(t, "u2", "222")

	conn1 := fx.dial(t, token1)
	profile := expect(t, conn1, FrameProfile, func(p *user.Profile) bool { return p != nil })
	assert.Equal(t, "u1", profile.DisplayName)

	// The chat list may update before the ack arrives.
	require.NoError(t, conn1.WriteJSON(Request{ID: "1", Type: RequestAddChat, Phone: "222"}))
	chats := expect(t, conn1, FrameChats, func(rels []chat.Relationship) bool { return len(rels) == 1 })
	chatID := chats[0].ChatID
	assert.Equal(t, chat.PairID(u1, u2), chatID)

	require.NoError(t, conn1.WriteJSON(Request{ID: "2", Type: RequestAddChat, Phone: "222"}))
	failure := expect(t, conn1, FrameError, func(f Failure) bool { return f.ID == "2" })
	assert.Equal(t, apperr.CodeAlreadyExists, failure.Code)

	conn2 := fx.dial(t, token2)
	expect(t, conn2, FrameChats, func(rels []chat.Relationship) bool { return len(rels) == 1 })

	require.NoError(t, conn1.WriteJSON(Request{ID: "3", Type: RequestOpen, ChatID: chatID}))
	expect(t, conn1, FrameAck, func(a Ack) bool { return a.ID == "3" })
	require.NoError(t, conn2.WriteJSON(Request{ID: "4", Type: RequestSend, ChatID: chatID, Body: "hello"}))
	expect(t, conn2, FrameAck, func(a Ack) bool { return a.ID == "4" })

	view := expect(t, conn1, FrameMessages, func(v struct {
		ChatID   string         `json:"chatId"`
		Messages []chat.Message `json:"messages"`
	}) bool {
		return len(v.Messages) == 1
	})
	assert.Equal(t, chatID, view.ChatID)
	assert.Equal(t, u2, view.Messages[0].SenderID)
	assert.Equal(t, "hello", view.Messages[0].Body)

	require.NoError(t, conn1.WriteJSON(Request{ID: "5", Type: "bogus"}))
	failure = expect(t, conn1, FrameError, func(f Failure) bool { return f.ID == "5" })
	assert.Equal(t, apperr.CodeValidation, failure.Code)
}

func TestOpenForeignChatFails(t *testing.T) {
	fx := newFixture(t)
	_, token1 := fx.register(t, "u1", "111")
	u2, _ := fx.register(t, "u2", "222")
	u3, _ := fx.register(t, "u3", "333")

	conn := fx.dial(t, token1)
	require.NoError(t, conn.WriteJSON(Request{ID: "1", Type: RequestOpen, ChatID: chat.PairID(u2, u3)}))
	failure := expect(t, conn, FrameError, func(f Failure) bool { return f.ID == "1" })
	assert.Equal(t, apperr.CodeNotFound, failure.Code)
}

func TestSignOutOverSocket(t *testing.T) {
	fx := newFixture(t)
	_, token := fx.register(t, "u1", "111")

	conn := fx.dial(t, token)
	expect(t, conn, FrameProfile, func(p *user.Profile) bool { return p != nil })

	require.NoError(t, conn.WriteJSON(Request{ID: "1", Type: RequestSignOut}))
	expect(t, conn, FrameProfile, func(p *user.Profile) bool { return p == nil })
	notice := expect(t, conn, FrameNotice, func(n session.Notice) bool { return n.Message == "Logged Out" })
	assert.Empty(t, notice.Code)
}
