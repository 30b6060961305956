package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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
	"github.com/ihazratummar/Neat-Roots-Chat-app/status"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

func newServer(t *testing.T) *httptest.Server {
	store := docstore.NewMemory()
	a := &API{
		Clients: &client.Factory{
			Store:    store,
			Blobs:    blob.NewFS(t.TempDir(), "/uploads", 1<<20),
			Accounts: identity.NewAccounts(store),
			Log:      logger.Discard(),
		},
		Tokens: auth.NewIssuer("test-secret", time.Hour),
		Log:    logger.Discard(),
	}
	mux := http.NewServeMux()
	a.Register(mux)
	srv := httptest.NewServer(auth.Guard(a.Tokens)(mux))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func signUp(t *testing.T, srv *httptest.Server, name, phone string) LoginResult {
	t.Helper()
	var res LoginResult
	code := do(t, srv, http.MethodPost, "/api/auth/signup", "", user.RegisterDto{
		Name: name, Phone: phone, Email: name + "@example.com", Password: "secret",
	}, &res)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, res.AccessToken)
	return res
}

func TestAuth(t *testing.T) {
	srv := newServer(t)
	u1 := signUp(t, srv, "u1", "111")
	assert.Equal(t, "111", u1.User.PhoneNumber)

	var again LoginResult
	code := do(t, srv, http.MethodPost, "/api/auth/login", "", user.LoginDto{Email: "u1@example.com", Password: "secret"}, &again)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, u1.User.UserID, again.User.UserID)

	code = do(t, srv, http.MethodPost, "/api/auth/login", "", user.LoginDto{Email: "u1@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code = do(t, srv, http.MethodPost, "/api/auth/signup", "", user.RegisterDto{
		Name: "u2", Phone: "111", Email: "u2@example.com", Password: "secret",
	}, nil)
	assert.Equal(t, http.StatusConflict, code)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodGet, "/api/auth/login", "", nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/auth/other", "", nil, nil))
}

func TestProfile(t *testing.T) {
	srv := newServer(t)
	u1 := signUp(t, srv, "u1", "111")

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/users/me", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/users/me", "garbage", nil, nil))

	var me user.Profile
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/users/me", u1.AccessToken, nil, &me))
	assert.Equal(t, "u1", me.DisplayName)

	name := "Renamed"
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPatch, "/api/users/me", u1.AccessToken, user.Update{Name: &name}, &me))
	assert.Equal(t, "Renamed", me.DisplayName)
	assert.Equal(t, "111", me.PhoneNumber)

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/api/users/me/avatar", u1.AccessToken, buf.Bytes(), &me))
	assert.Contains(t, me.AvatarURL, "/uploads/images/")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/users/me/avatar", u1.AccessToken, []byte("text"), nil))
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodDelete, "/api/users/me", u1.AccessToken, nil, nil))
}

func TestChatsAndMessages(t *testing.T) {
	srv := newServer(t)
	u1 := signUp(t, srv, "u1", "111")
	u2 := signUp(t, srv, "u2", "222")
	u3 := signUp(t, srv, "u3", "333")

	var rel chat.Relationship
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/chats", u1.AccessToken, chat.NewChatDto{Phone: "222"}, &rel))
	assert.Equal(t, chat.PairID(u1.User.UserID, u2.User.UserID), rel.ChatID)

	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/chats", u2.AccessToken, chat.NewChatDto{Phone: "111"}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/chats", u1.AccessToken, chat.NewChatDto{Phone: "999"}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/chats", u1.AccessToken, chat.NewChatDto{Phone: "12a"}, nil))

	var list []chat.Relationship
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/chats", u2.AccessToken, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, rel.ChatID, list[0].ChatID)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/chats", u3.AccessToken, nil, &list))
	assert.Empty(t, list)

	path := "/api/chats/" + rel.ChatID
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path, u2.AccessToken, nil, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, path, u3.AccessToken, nil, nil))

	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, path+"/messages", u1.AccessToken, chat.SendDto{Body: "hi"}, nil))
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, path+"/messages", u2.AccessToken, chat.SendDto{Body: "hello"}, nil))
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, path+"/messages", u2.AccessToken, chat.SendDto{Body: "  "}, nil))
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, path+"/messages", u3.AccessToken, chat.SendDto{Body: "intruder"}, nil))

	var msgs []chat.Message
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, path+"/messages", u1.AccessToken, nil, &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, u1.User.UserID, msgs[0].SenderID)
	assert.Equal(t, "hello", msgs[1].Body)
	assert.LessOrEqual(t, msgs[0].SentAt, msgs[1].SentAt)
}

func TestStatus(t *testing.T) {
	srv := newServer(t)
	u1 := signUp(t, srv, "u1", "111")
	u2 := signUp(t, srv, "u2", "222")
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/chats", u1.AccessToken, chat.NewChatDto{Phone: "222"}, nil))

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	var post status.Post
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/status", u2.AccessToken, buf.Bytes(), &post))
	assert.Equal(t, u2.User.UserID, post.Author.UserID)

	var groups status.Groups
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/status", u1.AccessToken, nil, &groups))
	assert.Empty(t, groups.Own)
	require.Len(t, groups.Others, 1)
	assert.Equal(t, "u2", groups.Others[0].Author.DisplayName)

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/status", u2.AccessToken, nil, &groups))
	assert.Len(t, groups.Own, 1)
	assert.Empty(t, groups.Others)

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPut, "/api/status", u2.AccessToken, nil, nil))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusOf(apperr.ErrPhoneTaken))
	assert.Equal(t, http.StatusUnauthorized, StatusOf(apperr.ErrNotSignedIn))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(assert.AnError))
}
