package user

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/ihazratummar/Neat-Roots-Chat-app/common/apperr"
	"github.com/ihazratummar/Neat-Roots-Chat-app/docstore"
)

// -- REGISTER --------------------------------------------------------------------

// Register creates the account and the profile bound to phone, then signs
// the new user in.
func (m *Manager) Register(ctx context.Context, dto RegisterDto) (err error) {
	m.Busy.Set(true)
	defer m.done(&err)

	name, phone := cleanName(dto.Name), strings.TrimSpace(dto.Phone)
	if name == "" || phone == "" || strings.TrimSpace(dto.Email) == "" || dto.Password == "" {
		return apperr.ErrEmptyFields
	}
	if !ValidPhone(phone) {
		return apperr.ErrInvalidPhone
	}

	taken, err := m.phoneOwner(ctx, phone)
	if err != nil {
		return err
	}
	if taken != "" {
		return apperr.ErrPhoneTaken
	}

	userID, err := m.identity.CreateAccount(ctx, dto.Email, dto.Password)
	if err != nil {
		return authError(err, apperr.ErrSignUpFailed)
	}

	return m.activate(ctx, userID, &Update{Name: &name, Phone: &phone})
}

// -- SIGN IN ---------------------------------------------------------------------

func (m *Manager) SignIn(ctx context.Context, dto LoginDto) (err error) {
	m.Busy.Set(true)
	defer m.done(&err)

	if strings.TrimSpace(dto.Email) == "" || dto.Password == "" {
		return apperr.ErrEmptyCredentials
	}

	userID, err := m.identity.Authenticate(ctx, dto.Email, dto.Password)
	if err != nil {
		return authError(err, apperr.ErrLoginFailed)
	}
	return m.activate(ctx, userID, nil)
}

// Restore resumes the user the identity already knows, as when a client
// reconnects with a valid token. It reports whether a user was restored.
func (m *Manager) Restore(ctx context.Context) (restored bool, err error) {
	userID, ok := m.identity.CurrentUserID()
	if !ok {
		return false, nil
	}
	if current, open := m.session.UserID(); open && current == userID {
		return true, nil
	}

	m.Busy.Set(true)
	defer m.done(&err)
	if err := m.activate(ctx, userID, nil); err != nil {
		return false, err
	}
	return true, nil
}

// -- PROFILE ---------------------------------------------------------------------

// UpsertProfile merges u into the stored profile, creating it when absent,
// and returns the profile as stored after the write.
func (m *Manager) UpsertProfile(ctx context.Context, u Update) (p *Profile, err error) {
	m.Busy.Set(true)
	defer m.done(&err)
	return m.upsert(ctx, u)
}

func (m *Manager) upsert(ctx context.Context, u Update) (*Profile, error) {
	userID, ok := m.session.UserID()
	if !ok {
		return nil, apperr.ErrNotSignedIn
	}

	data := map[string]any{"userId": userID}
	if u.Name != nil {
		data["displayName"] = cleanName(*u.Name)
	}
	if u.Phone != nil {
		phone := strings.TrimSpace(*u.Phone)
		if !ValidPhone(phone) {
			return nil, apperr.ErrInvalidPhone
		}
		owner, err := m.phoneOwner(ctx, phone)
		if err != nil {
			return nil, err
		}
		if owner != "" && owner != userID {
			return nil, apperr.ErrPhoneTaken
		}
		data["phoneNumber"] = phone
	}
	if u.AvatarURL != nil {
		data["avatarUrl"] = *u.AvatarURL
	}

	_, err := m.store.Get(ctx, Collection, userID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		for _, key := range []string{"displayName", "phoneNumber", "avatarUrl"} {
			if _, ok := data[key]; !ok {
				data[key] = ""
			}
		}
		err = m.store.Put(ctx, Collection, userID, data, false)
	case err == nil:
		err = m.store.Put(ctx, Collection, userID, data, true)
	}
	if err != nil {
		return nil, apperr.Transport("cannot update user", err)
	}

	doc, err := m.store.Get(ctx, Collection, userID)
	if err != nil {
		return nil, apperr.Transport("cannot retrieve user", err)
	}
	stored, err := decodeProfile(*doc)
	if err != nil {
		return nil, apperr.Transport("cannot retrieve user", err)
	}
	m.Profile.Set(&stored)
	return &stored, nil
}

// UploadAvatar stores image as a new blob and points the profile at it.
func (m *Manager) UploadAvatar(ctx context.Context, image []byte) (p *Profile, err error) {
	m.Busy.Set(true)
	defer m.done(&err)

	if _, ok := m.session.UserID(); !ok {
		return nil, apperr.ErrNotSignedIn
	}
	url, err := m.blobs.Upload(ctx, image, "images/"+uuid.NewString())
	if err != nil {
		return nil, apperr.OrTransport("upload failed", err)
	}
	return m.upsert(ctx, Update{AvatarURL: &url})
}

// -- SIGN OUT --------------------------------------------------------------------

// SignOut forgets the identity and closes the session, which cancels every
// live view the client holds.
func (m *Manager) SignOut() {
	userID, _ := m.session.UserID()

	m.identity.SignOut()
	m.endSession()
	m.Busy.Set(false)

	m.session.Notify("Logged Out")
	m.log.Info("signed out", "userId", userID)
}

// --------------------------------------------------------------------------------

// phoneOwner returns the id of the user whose profile holds phone, or "".
func (m *Manager) phoneOwner(ctx context.Context, phone string) (string, error) {
	docs, err := m.store.Query(ctx, Collection, docstore.Eq("phoneNumber", phone))
	if err != nil {
		return "", apperr.Transport("cannot check number", err)
	}
	if len(docs) == 0 {
		return "", nil
	}
	return docs[0].ID, nil
}

// done clears the busy flag and reports a failure as a notice.
func (m *Manager) done(err *error) {
	m.Busy.Set(false)
	if *err != nil {
		m.session.NotifyError(*err)
	}
}

func authError(err error, wrap func(error) error) error {
	if apperr.CodeOf(err) != apperr.CodeUnknown {
		return err
	}
	return wrap(err)
}

// ValidPhone reports whether s is a non-empty run of digits, the only form
// a number can be dialed in.
func ValidPhone(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func cleanName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
