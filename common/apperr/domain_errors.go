package apperr

var (
	ErrEmptyFields      = Validation("enter all fields")
	ErrEmptyCredentials = Validation("enter email and password")
	ErrInvalidPhone     = Validation("number must contain digits only")
	ErrSelfChat         = Validation("cannot start a chat with your own number")
	ErrEmptyMessage     = Validation("message is empty")
	ErrEmptyChatID      = Validation("chat id is required")
	ErrPhoneTaken       = Conflict("number already exists")
	ErrChatExists       = AlreadyExists("chat already exists")
	ErrNumberNotFound   = NotFound("number not found")
	ErrProfileNotFound  = NotFound("profile not found")
	ErrNotSignedIn      = Auth("not signed in")
	ErrBadCredentials   = Auth("invalid email or password")
	ErrAccountExists    = Auth("an account with this email already exists")
)

func ErrSignUpFailed(cause error) error {
	return Wrap(CodeAuth, "sign up failed", cause)
}

func ErrLoginFailed(cause error) error {
	return Wrap(CodeAuth, "login failed", cause)
}
