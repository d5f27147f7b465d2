package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeError marks an error whose message may be shown to end users.
type UserSafeError struct {
	Message string
	Err     error
}

func (e *UserSafeError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserSafeError) Unwrap() error { return e.Err }

// UserSafe wraps err with a message safe to surface to the caller.
func UserSafe(message string, err error) error {
	return &UserSafeError{Message: message, Err: err}
}

// UserSafeMessage extracts a message suitable for end users from err.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe *UserSafeError
	if errors.As(err, &safe) {
		return safe.Message
	}
	if errors.Is(err, ErrNotFound) {
		return "The requested record was not found"
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return "Invalid email or password"
	}
	return "Something went wrong, please try again"
}
