// internal/automation/errors.go
package automation

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/citefill/internal/browser"
)

var (
	// ErrInvalidURL is returned before any browser is launched.
	ErrInvalidURL = errors.New("invalid form URL")
	// ErrLaunch wraps every browser start failure.
	ErrLaunch = errors.New("failed to launch browser")
	// ErrNavigation wraps failed or timed-out page loads.
	ErrNavigation = errors.New("failed to load form page")
)

// SessionError is a fatal session failure. State is the last state the
// session reached before failing.
type SessionError struct {
	SessionID string
	State     State
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("automation session %s failed after %s: %v", e.SessionID, e.State, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSetupError reports whether err stems from a missing browser installation
// rather than from the target page.
func IsSetupError(err error) bool {
	return errors.Is(err, browser.ErrExecutableNotFound)
}
