// internal/automation/types.go
package automation

import (
	"context"
	"time"

	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/formmap"
)

// State is a step in the life of an automation session. Sessions move
// through the states strictly in declaration order; PreviewHold is skipped in
// silent mode.
type State string

const (
	StateInit             State = "INIT"
	StateNavigated        State = "NAVIGATED"
	StateSnapshotBefore   State = "SNAPSHOT_BEFORE"
	StateFieldsDiscovered State = "FIELDS_DISCOVERED"
	StateFilling          State = "FILLING"
	StateSnapshotAfter    State = "SNAPSHOT_AFTER"
	StatePreviewHold      State = "PREVIEW_HOLD"
	StateClosed           State = "CLOSED"
)

// Page is the browser surface a session drives.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Snapshot(ctx context.Context) (string, error)
	Fill(ctx context.Context, selector, value string) error
	Close() error
}

// Launcher starts a fresh browser. headed is true for preview sessions.
type Launcher interface {
	Launch(ctx context.Context, headed bool) (Page, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, headed bool) (Page, error)

func (f LauncherFunc) Launch(ctx context.Context, headed bool) (Page, error) { return f(ctx, headed) }

// Event reports a state transition to an Observer.
type Event struct {
	SessionID string
	State     State
	At        time.Time
}

// Observer receives state transitions while Run is executing. It is called
// synchronously and must not block.
type Observer func(Event)

// Request is a form-fill request.
type Request struct {
	Fields []extraction.Field `json:"extractedFields"`
	// PreviewMode defaults to true when omitted.
	PreviewMode *bool  `json:"previewMode,omitempty"`
	FormURL     string `json:"formUrl,omitempty"`
}

// Preview reports whether the session runs headed with a hold before closing.
func (r Request) Preview() bool {
	return r.PreviewMode == nil || *r.PreviewMode
}

// FilledField reports one attempted fill. Selector is the selector used on
// success and the positional selector on failure.
type FilledField struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Success  bool   `json:"success"`
	Selector string `json:"selector,omitempty"`
}

// Screenshots holds base64-encoded full-page PNGs.
type Screenshots struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Result is the outcome of a completed session.
type Result struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	FormURL      string               `json:"formUrl"`
	FilledFields []FilledField        `json:"filledFields"`
	FormFields   []formmap.Input      `json:"formFields"`
	FieldMapping formmap.FieldMapping `json:"fieldMapping"`
	Screenshots  Screenshots          `json:"screenshots"`
}
