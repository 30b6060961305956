// Package identity is the account collaborator: email/password accounts and
// the signed-in user of one client.
package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

//go:generate mockgen -destination=mocks/identity.go -package=mocks . Identity

type Identity interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
	Authenticate(ctx context.Context, email, password string) (string, error)
	CurrentUserID() (string, bool)
	SignOut()
	// DeleteAccount removes the account created or authenticated last and
	// signs it out.
	DeleteAccount(ctx context.Context) error
}

const collection = "accounts"

type account struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}

// Accounts is the registry shared by every client of a server.
type Accounts struct {
	store docstore.Store
}

func NewAccounts(store docstore.Store) *Accounts {
	return &Accounts{store: store}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create registers email and returns the new user id.
func (a *Accounts) Create(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", apperr.ErrEmptyCredentials
	}

	hash, err := hashPassword(password)
	if err != nil {
		return "", apperr.ErrSignUpFailed(err)
	}
	acc := account{UserID: uuid.NewString(), Email: email, PasswordHash: hash}
	data, err := docstore.Encode(acc)
	if err != nil {
		return "", apperr.ErrSignUpFailed(err)
	}

	err = a.store.Create(ctx, collection, email, data)
	if errors.Is(err, docstore.ErrExists) {
		return "", apperr.ErrAccountExists
	}
	if err != nil {
		return "", apperr.ErrSignUpFailed(err)
	}
	return acc.UserID, nil
}

// Verify checks the credentials and returns the account's user id.
func (a *Accounts) Verify(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", apperr.ErrEmptyCredentials
	}

	doc, err := a.store.Get(ctx, collection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return "", apperr.ErrBadCredentials
	}
	if err != nil {
		return "", apperr.ErrLoginFailed(err)
	}

	var acc account
	if err := doc.Decode(&acc); err != nil {
		return "", apperr.ErrLoginFailed(err)
	}
	if !checkPassword(acc.PasswordHash, password) {
		return "", apperr.ErrBadCredentials
	}
	return acc.UserID, nil
}

// Delete removes the account registered under email if it belongs to
// userID. A missing account is not an error.
func (a *Accounts) Delete(ctx context.Context, email, userID string) error {
	email = normalizeEmail(email)
	doc, err := a.store.Get(ctx, collection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "identity.Delete.Get")
	}

	var acc account
	if err := doc.Decode(&acc); err != nil {
		return errors.Wrap(err, "identity.Delete.Decode")
	}
	if acc.UserID != userID {
		return apperr.ErrBadCredentials
	}
	return errors.Wrap(a.store.Delete(ctx, collection, email), "identity.Delete.Delete")
}

// hashPassword returns base64(hash).base64(salt).
func hashPassword(password string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	hash := pbkdf2.Key([]byte(password), salt, 4096, 32, sha1.New)

	var hashed strings.Builder
	hashed.WriteString(base64.StdEncoding.EncodeToString(hash))
	hashed.WriteString(".")
	hashed.WriteString(base64.StdEncoding.EncodeToString(salt))
	return hashed.String(), nil
}

func checkPassword(stored, password string) bool {
	hashPart, saltPart, ok := strings.Cut(stored, ".")
	if !ok {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, 4096, len(want), sha1.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Client is the Identity of one connected client.
type Client struct {
	accounts *Accounts

	mu     sync.Mutex
	userID string
	email  string
}

type Option func(*Client)

// WithUser starts the client already signed in, as after a token check.
func WithUser(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

func NewClient(accounts *Accounts, opts ...Option) *Client {
	c := &Client{accounts: accounts}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (string, error) {
	id, err := c.accounts.Create(ctx, email, password)
	if err != nil {
		return "", err
	}
	c.setUser(id, email)
	return id, nil
}

func (c *Client) Authenticate(ctx context.Context, email, password string) (string, error) {
	id, err := c.accounts.Verify(ctx, email, password)
	if err != nil {
		return "", err
	}
	c.setUser(id, email)
	return id, nil
}

func (c *Client) CurrentUserID() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.userID != ""
}

func (c *Client) SignOut() {
	c.setUser("", "")
}

// DeleteAccount needs the email the client signed in with, so a client
// restored from a token cannot delete its account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	c.mu.Lock()
	id, email := c.userID, c.email
	c.mu.Unlock()
	if id == "" || email == "" {
		return apperr.ErrNotSignedIn
	}
	if err := c.accounts.Delete(ctx, email, id); err != nil {
		return err
	}
	c.setUser("", "")
	return nil
}

func (c *Client) setUser(id, email string) {
	c.mu.Lock()
	c.userID = id
	c.email = email
	c.mu.Unlock()
}
