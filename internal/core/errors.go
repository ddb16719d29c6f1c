package core

import "errors"

// Error taxonomy shared by storage adapters and services. Not-found and
// constraint errors reach callers unchanged; storage and schema errors are
// turned into warnings where they occur.
var (
	ErrNotFound             = errors.New("not found")
	ErrInUse                = errors.New("record is in use")
	ErrConstraint           = errors.New("constraint violation")
	ErrSchemaUnavailable    = errors.New("schema unavailable")
	ErrStorageNotConfigured = errors.New("storage not configured")
	ErrAlreadyUndone        = errors.New("log entry already undone")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UserMessage maps an error to the message shown to an operator. Only the
// "in use" case gets its own wording; everything else is generic.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInUse):
		return "this record is still referenced and cannot be deleted"
	case errors.Is(err, ErrNotFound):
		return "record not found"
	case errors.Is(err, ErrAlreadyUndone):
		return "this action was already undone"
	default:
		return "operation failed"
	}
}
