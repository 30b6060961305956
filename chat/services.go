package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
	"github.com/ihazratummar/Neat-Roots-Chat-app/session"
	"github.com/ihazratummar/Neat-Roots-Chat-app/state"
	"github.com/ihazratummar/Neat-Roots-Chat-app/user"
)

// Resolver creates 1:1 chats between phone-identified users and keeps the
// signed-in user's chat list live.
type Resolver struct {
	store   docstore.Store
	session *session.Session
	profile *state.Cell[*user.Profile]
	log     *slog.Logger

	Chats *state.Cell[[]Relationship]
	Busy  *state.Cell[bool]

	// pub guards following and orders writes to Chats against Reset.
	pub       sync.Mutex
	following string
}

func NewResolver(store docstore.Store, sess *session.Session, profile *state.Cell[*user.Profile], log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		store:   store,
		session: sess,
		profile: profile,
		log:     log.With("component", "chat"),
		Chats:   state.NewCell[[]Relationship](nil),
		Busy:    state.NewCell(false),
	}
}

// ParticipantFilter matches every chat userID takes part in.
func ParticipantFilter(userID string) docstore.Filter {
	return docstore.Or(
		docstore.Eq("participantA.userId", userID),
		docstore.Eq("participantB.userId", userID),
	)
}

// pairFilter matches a chat between the two numbers in either order.
func pairFilter(phone, self string) docstore.Filter {
	return docstore.Or(
		docstore.And(
			docstore.Eq("participantA.phoneNumber", phone),
			docstore.Eq("participantB.phoneNumber", self),
		),
		docstore.And(
			docstore.Eq("participantA.phoneNumber", self),
			docstore.Eq("participantB.phoneNumber", phone),
		),
	)
}

// -- NEW CHAT --------------------------------------------------------------------

// RequestNewChat opens a chat between the signed-in user and the owner of
// phone. Both participants are snapshotted as they are now.
func (r *Resolver) RequestNewChat(ctx context.Context, phone string) (rel *Relationship, err error) {
	r.Busy.Set(true)
	defer func() {
		r.Busy.Set(false)
		r.session.NotifyError(err)
	}()

	phone = strings.TrimSpace(phone)
	if !user.ValidPhone(phone) {
		return nil, apperr.ErrInvalidPhone
	}
	self := r.profile.Get()
	if self == nil {
		return nil, apperr.ErrNotSignedIn
	}
	if phone == self.PhoneNumber {
		return nil, apperr.ErrSelfChat
	}

	existing, err := r.store.Query(ctx, Collection, pairFilter(phone, self.PhoneNumber))
	if err != nil {
		return nil, apperr.Transport("cannot check chats", err)
	}
	if len(existing) > 0 {
		return nil, apperr.ErrChatExists
	}

	found, err := r.store.Query(ctx, user.Collection, docstore.Eq("phoneNumber", phone))
	if err != nil {
		return nil, apperr.Transport("cannot look up number", err)
	}
	if len(found) == 0 {
		return nil, apperr.ErrNumberNotFound
	}
	var partner user.Profile
	if err := found[0].Decode(&partner); err != nil {
		return nil, apperr.Transport("cannot look up number", err)
	}
	if partner.UserID == "" {
		partner.UserID = found[0].ID
	}

	created := Relationship{
		ChatID:       PairID(self.UserID, partner.UserID),
		ParticipantA: self.Ref(),
		ParticipantB: partner.Ref(),
	}
	data, err := docstore.Encode(created)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "cannot create chat", err)
	}
	// The pair id makes a lost check-then-create race fail here instead of
	// producing a second chat.
	err = r.store.Create(ctx, Collection, created.ChatID, data)
	if errors.Is(err, docstore.ErrExists) {
		return nil, apperr.ErrChatExists
	}
	if err != nil {
		return nil, apperr.Transport("cannot create chat", err)
	}

	r.log.Info("chat created", "chatId", created.ChatID, "userId", self.UserID)
	return &created, nil
}

// -- LIVE LIST -------------------------------------------------------------------

// List returns userID's chats once.
func (r *Resolver) List(ctx context.Context, userID string) ([]Relationship, error) {
	docs, err := r.store.Query(ctx, Collection, ParticipantFilter(userID))
	if err != nil {
		return nil, apperr.Transport("cannot load chats", err)
	}
	return Relationships(docs), nil
}

// SubscribeChats keeps Chats equal to userID's chat list. The subscription
// is held by the session and ends on sign-out.
func (r *Resolver) SubscribeChats(userID string) error {
	r.pub.Lock()
	r.following = userID
	r.pub.Unlock()

	r.Busy.Set(true)
	err := r.session.Hold(session.KeyChats,
		func(ctx context.Context, fn docstore.Listener) (docstore.Subscription, error) {
			return r.store.Subscribe(ctx, Collection, ParticipantFilter(userID), fn)
		},
		func(docs []docstore.Document, err error) {
			r.Busy.Set(false)
			if err != nil {
				r.session.NotifyError(apperr.Transport("cannot load chats", err))
				return
			}
			rels := Relationships(docs)

			r.pub.Lock()
			defer r.pub.Unlock()
			if r.following != userID {
				return
			}
			r.Chats.Set(rels)
		})
	if err != nil {
		r.Busy.Set(false)
		err = apperr.OrTransport("cannot load chats", err)
		r.session.NotifyError(err)
	}
	return err
}

// Get returns chatID if userID takes part in it.
func (r *Resolver) Get(ctx context.Context, userID, chatID string) (*Relationship, error) {
	doc, err := r.store.Get(ctx, Collection, chatID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, apperr.NotFound("chat not found")
	}
	if err != nil {
		return nil, apperr.Transport("cannot load chat", err)
	}
	rel, err := decodeRelationship(*doc)
	if err != nil {
		return nil, apperr.Transport("cannot load chat", err)
	}
	if !rel.Has(userID) {
		return nil, apperr.NotFound("chat not found")
	}
	return &rel, nil
}

// Reset clears the published list after sign-out.
func (r *Resolver) Reset() {
	r.pub.Lock()
	r.following = ""
	r.Chats.Set(nil)
	r.pub.Unlock()
	r.Busy.Set(false)
}
