package apperr

type Code string

const (
	CodeUnknown       Code = "UNKNOWN"
	CodeValidation    Code = "VALIDATION"
	CodeConflict      Code = "CONFLICT"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeNotFound      Code = "NOT_FOUND"
	CodeAuth          Code = "AUTH"
	CodeTransport     Code = "TRANSPORT"
	CodeInternal      Code = "INTERNAL"
)
