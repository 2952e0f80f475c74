package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized indicates a missing or expired session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the session role is too low for the action.
	ErrForbidden = errors.New("forbidden")
)

// UserSafeMessage returns an error message that can be shown to operators.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrConflict):
		return err.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid e-mail or password"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return "unexpected error"
	}
}
