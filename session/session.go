// Package session is the explicit replacement for a process-wide signed-in
// user. A Session is created once per client, opened with a user id after
// sign-in and closed on sign-out. All live deliveries for the client run on
// the session's single event loop, and every live subscription is held by
// the session under a key so Close can tear all of them down at once.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/state"
)

// Keys of the subscriptions a client holds. A key holds at most one
// subscription at a time.
const (
	KeyProfile  = "profile"
	KeyChats    = "chats"
	KeyMessages = "messages"
	KeyStatus   = "status"
)

type Notice struct {
	Code    apperr.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

// OpenFunc starts a live subscription delivering to fn.
type OpenFunc func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error)

type held struct {
	sub docstore.Subscription
}

// generation is one open/close cycle. Events queued for a closed
// generation are dropped.
type generation struct {
	ctx    context.Context
	cancel context.CancelFunc
	events []func()
	wake   chan struct{}
}

type Session struct {
	log *slog.Logger

	// Notices carries one-shot user messages ("Logged Out", failures).
	Notices *state.Queue[Notice]

	mu     sync.Mutex
	userID string
	gen    *generation
	held   map[string]*held
}

func New(log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		log:     log,
		Notices: state.NewQueue[Notice](),
		held:    make(map[string]*held),
	}
}

// Open binds the session to userID and starts its event loop. Opening for
// the user already bound is a no-op; opening for another user closes the
// current session first.
func (s *Session) Open(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != nil {
		if s.userID == userID {
			return
		}
		s.closeLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &generation{ctx: ctx, cancel: cancel, wake: make(chan struct{}, 1)}
	s.gen = g
	s.userID = userID
	go s.loop(g)

	s.log.Debug("session opened", "userId", userID)
}

// Close cancels every held subscription, stops the event loop and forgets
// the user. It is safe to call on a closed session and from inside an event
// handler.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	for key, h := range s.held {
		if h.sub != nil {
			h.sub.Cancel()
		}
		delete(s.held, key)
	}
	if s.gen != nil {
		s.gen.cancel()
		s.gen = nil
		s.log.Debug("session closed", "userId", s.userID)
	}
	s.userID = ""
}

func (s *Session) UserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.gen != nil
}

// Context is cancelled when the session closes. A closed session returns an
// already cancelled context.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.gen.ctx
}

// Dispatch queues fn on the event loop. Handlers run one at a time in
// queue order and must not block. Dispatch on a closed session drops fn.
func (s *Session) Dispatch(fn func()) {
	s.mu.Lock()
	g := s.gen
	if g == nil {
		s.mu.Unlock()
		return
	}
	g.events = append(g.events, fn)
	s.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (s *Session) loop(g *generation) {
	for {
		s.mu.Lock()
		events := g.events
		g.events = nil
		s.mu.Unlock()

		for _, fn := range events {
			if g.ctx.Err() != nil {
				return
			}
			fn()
		}

		select {
		case <-g.ctx.Done():
			return
		case <-g.wake:
		}
	}
}

// Hold opens a live subscription under key, cancelling whatever the key
// held before. Deliveries are dispatched onto the event loop and dropped
// once the key is released or replaced, so fn never sees a stale stream.
func (s *Session) Hold(key string, open OpenFunc, fn docstore.Listener) error {
	s.mu.Lock()
	if s.gen == nil {
		s.mu.Unlock()
		return apperr.ErrNotSignedIn
	}
	ctx := s.gen.ctx
	s.releaseLocked(key)
	h := &held{}
	s.held[key] = h
	s.mu.Unlock()

	sub, err := open(ctx, func(docs []docstore.Document, err error) {
		s.Dispatch(func() {
			if !s.holds(key, h) {
				return
			}
			fn(docs, err)
		})
	})
	if err != nil {
		s.mu.Lock()
		if s.held[key] == h {
			delete(s.held, key)
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held[key] != h {
		// Released or replaced while opening.
		sub.Cancel()
		return nil
	}
	h.sub = sub
	return nil
}

// Release cancels the subscription held under key. Releasing an empty key
// is a no-op.
func (s *Session) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked(key)
}

func (s *Session) releaseLocked(key string) {
	h, ok := s.held[key]
	if !ok {
		return
	}
	if h.sub != nil {
		h.sub.Cancel()
	}
	delete(s.held, key)
}

// Holding reports whether key currently holds a subscription.
func (s *Session) Holding(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.held[key]
	return ok
}

func (s *Session) holds(key string, h *held) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[key] == h
}

func (s *Session) Notify(message string) {
	s.Notices.Push(Notice{Message: message})
}

// NotifyError queues err as a notice and logs it.
func (s *Session) NotifyError(err error) {
	if err == nil {
		return
	}
	s.log.Warn("operation failed", "userId", s.currentUser(), "err", err)
	s.Notices.Push(Notice{Code: apperr.CodeOf(err), Message: apperr.Message(err)})
}

func (s *Session) currentUser() string {
	id, _ := s.UserID()
	return id
}
