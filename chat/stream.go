package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/state"
)

// Synchronizer keeps a live, time-ordered view of one chat's messages. It
// streams at most one chat at a time.
type Synchronizer struct {
	store   docstore.Store
	session *session.Session
	log     *slog.Logger

	// Now stamps outgoing messages.
	Now func() time.Time

	Messages *state.Cell[[]Message]
	Busy     *state.Cell[bool]

	mu     sync.Mutex
	active string

	// pub orders writes to Messages so a delivery that is already running
	// cannot land after Deactivate cleared the view.
	pub sync.Mutex
}

func NewSynchronizer(store docstore.Store, sess *session.Session, log *slog.Logger) *Synchronizer {
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{
		store:    store,
		session:  sess,
		log:      log.With("component", "messages"),
		Now:      time.Now,
		Messages: state.NewCell[[]Message](nil),
		Busy:     state.NewCell(false),
	}
}

// Active returns the streamed chat id, or "" when idle.
func (s *Synchronizer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate starts streaming chatID, replacing any chat streamed before.
func (s *Synchronizer) Activate(chatID string) error {
	if chatID == "" {
		return apperr.ErrEmptyChatID
	}

	s.mu.Lock()
	if s.active == chatID && s.session.Holding(session.KeyMessages) {
		s.mu.Unlock()
		return nil
	}
	s.active = chatID
	s.mu.Unlock()

	s.pub.Lock()
	s.Messages.Set(nil)
	s.pub.Unlock()
	s.Busy.Set(true)

	err := s.session.Hold(session.KeyMessages,
		func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error) {
			return s.store.Subscribe(ctx, MessagesCollection(chatID), docstore.All(), fn)
		},
		func(docs []docstore.Document, err error) {
			s.Busy.Set(false)
			if err != nil {
				s.session.NotifyError(apperr.Transport("cannot load messages", err))
				return
			}
			msgs := SortMessages(docstore.DecodeAll(docs, decodeMessage))

			s.pub.Lock()
			defer s.pub.Unlock()
			if s.Active() != chatID {
				return
			}
			s.Messages.Set(msgs)
		})
	if err != nil {
		s.mu.Lock()
		if s.active == chatID {
			s.active = ""
		}
		s.mu.Unlock()
		s.Busy.Set(false)
		return apperr.OrTransport("cannot load messages", err)
	}

	s.log.Debug("streaming chat", "chatId", chatID)
	return nil
}

// Deactivate stops streaming and clears the view. It does nothing when
// already idle.
func (s *Synchronizer) Deactivate() {
	s.mu.Lock()
	if s.active == "" {
		s.mu.Unlock()
		return
	}
	s.active = ""
	s.mu.Unlock()

	s.session.Release(session.KeyMessages)
	s.pub.Lock()
	s.Messages.Set([]Message{})
	s.pub.Unlock()
	s.Busy.Set(false)
}

// Send appends a message stamped with the current time. The sender sees it
// through the live view, not through an optimistic local append.
func (s *Synchronizer) Send(ctx context.Context, chatID, senderID, body string) error {
	if chatID == "" {
		return apperr.ErrEmptyChatID
	}
	if strings.TrimSpace(body) == "" {
		return apperr.ErrEmptyMessage
	}
	if senderID == "" {
		return apperr.ErrNotSignedIn
	}

	msg := Message{SenderID: senderID, Body: body, SentAt: s.Now().UnixMilli()}
	data, err := docstore.Encode(msg)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "cannot send message", err)
	}
	coll := MessagesCollection(chatID)
	if err := s.store.Put(ctx, coll, s.store.NewID(coll), data, false); err != nil {
		err = apperr.Transport("cannot send message", err)
		s.session.NotifyError(err)
		return err
	}
	return nil
}

// History returns the messages of chatID once, in display order.
func (s *Synchronizer) History(ctx context.Context, chatID string) ([]Message, error) {
	docs, err := s.store.Query(ctx, MessagesCollection(chatID), docstore.All())
	if err != nil {
		return nil, apperr.Transport("cannot load messages", err)
	}
	return SortMessages(docstore.DecodeAll(docs, decodeMessage)), nil
}

// SortMessages orders msgs by SentAt in place. Equal timestamps keep their
// arrival order.
func SortMessages(msgs []Message) []Message {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].SentAt < msgs[j].SentAt })
	return msgs
}
