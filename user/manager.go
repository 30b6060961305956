// Package user is the session and profile manager: it signs users in and
// out, owns the signed-in user's profile and tells the other components
// when a user becomes active.
package user

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"

	"github.com/ihazratummar/Neat-Roots-Chat-app/blob"
	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/identity"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/state"
)

type Manager struct {
	store    docstore.Store
	blobs    blob.Store
	identity identity.Identity
	session  *session.Session
	log      *slog.Logger

	// FollowProfile keeps Profile live while signed in. Short-lived
	// clients turn it off and read the profile once.
	FollowProfile bool

	// Profile is nil while signed out or before the profile is loaded.
	Profile  *state.Cell[*Profile]
	SignedIn *state.Cell[bool]
	Busy     *state.Cell[bool]

	mu        sync.Mutex
	onSignIn  []func(userID string)
	onSignOut []func()
}

func NewManager(store docstore.Store, blobs blob.Store, id identity.Identity, sess *session.Session, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		store:    store,
		blobs:    blobs,
		identity: id,
		session:  sess,
		log:      log.With("component", "user"),

		FollowProfile: true,
		Profile:       state.NewCell[*Profile](nil),
		SignedIn:      state.NewCell(false),
		Busy:          state.NewCell(false),
	}
}

// OnSignIn registers fn to run after a user is signed in and the profile is
// in place. Hooks run in registration order.
func (m *Manager) OnSignIn(fn func(userID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignIn = append(m.onSignIn, fn)
}

// OnSignOut registers fn to run after the session is closed.
func (m *Manager) OnSignOut(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSignOut = append(m.onSignOut, fn)
}

// Current returns the loaded profile of the signed-in user.
func (m *Manager) Current() (*Profile, error) {
	if _, ok := m.session.UserID(); !ok {
		return nil, apperr.ErrNotSignedIn
	}
	p := m.Profile.Get()
	if p == nil {
		return nil, apperr.ErrProfileNotFound
	}
	return p, nil
}

// activate opens the session for userID, loads or creates the profile,
// starts the live profile view and runs the sign-in hooks. A session still
// open for another user is ended first. On failure nothing stays signed
// in, and an account created for this activation is removed again.
func (m *Manager) activate(ctx context.Context, userID string, create *Update) (err error) {
	if current, open := m.session.UserID(); open && current != userID {
		m.log.Info("switching user", "from", current, "to", userID)
		m.endSession()
	}

	m.session.Open(userID)
	m.SignedIn.Set(true)
	defer func() {
		if err == nil {
			return
		}
		if create != nil {
			if derr := m.identity.DeleteAccount(ctx); derr != nil {
				m.log.Warn("cannot remove account after failed sign up", "userId", userID, "err", derr)
			}
		}
		m.identity.SignOut()
		m.endSession()
	}()

	if create != nil {
		if _, err := m.upsert(ctx, *create); err != nil {
			return err
		}
	} else if err := m.load(ctx, userID); err != nil {
		return err
	}

	if m.FollowProfile {
		if err := m.watchProfile(userID); err != nil {
			return apperr.OrTransport("cannot retrieve user", err)
		}
	}

	m.mu.Lock()
	hooks := append([]func(string){}, m.onSignIn...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn(userID)
	}

	m.log.Info("signed in", "userId", userID)
	return nil
}

// endSession closes the session, clears the profile and runs the sign-out
// hooks. The identity is left alone.
func (m *Manager) endSession() {
	m.session.Close()
	m.Profile.Set(nil)
	m.SignedIn.Set(false)

	m.mu.Lock()
	hooks := append([]func(){}, m.onSignOut...)
	m.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (m *Manager) load(ctx context.Context, userID string) error {
	doc, err := m.store.Get(ctx, Collection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		// Signed in before the profile was written; the live view picks it
		// up once it exists.
		return nil
	}
	if err != nil {
		return apperr.Transport("cannot retrieve user", err)
	}
	p, err := decodeProfile(*doc)
	if err != nil {
		return apperr.Transport("cannot retrieve user", err)
	}
	m.Profile.Set(&p)
	return nil
}

func (m *Manager) watchProfile(userID string) error {
	return m.session.Hold(session.KeyProfile,
		func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error) {
			return m.store.Subscribe(ctx, Collection, docstore.Eq("userId", userID), fn)
		},
		func(docs []docstore.Document, err error) {
			if err != nil {
				m.session.NotifyError(apperr.Transport("cannot retrieve user", err))
				return
			}
			for _, doc := range docs {
				if doc.ID != userID {
					continue
				}
				p, err := decodeProfile(doc)
				if err != nil {
					m.log.Warn("dropping undecodable profile", "userId", userID, "err", err)
					return
				}
				m.Profile.Set(&p)
			}
		})
}

func decodeProfile(doc docstore.Document) (Profile, error) {
	var p Profile
	if err := doc.Decode(&p); err != nil {
		return Profile{}, err
	}
	if p.UserID == "" {
		p.UserID = doc.ID
	}
	return p, nil
}
