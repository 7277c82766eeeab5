// internal/automation/runner.go
package automation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/citefill/internal/browser/dom"
	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/formmap"
)

const completedMessage = "Form filling completed"

// Runner executes form-fill sessions. Each Run launches its own browser;
// sessions share nothing but the set of preview browsers awaiting closure.
type Runner struct {
	launcher Launcher
	cfg      config.AutomationConfig
	logger   *zap.Logger

	mu       sync.Mutex
	pending  map[string]*pendingClose
	shutdown bool
}

type pendingClose struct {
	page  Page
	timer *time.Timer
}

// NewRunner creates a Runner.
func NewRunner(launcher Launcher, cfg config.AutomationConfig, logger *zap.Logger) *Runner {
	return &Runner{
		launcher: launcher,
		cfg:      cfg,
		logger:   logger.Named("automation"),
		pending:  make(map[string]*pendingClose),
	}
}

// ValidateURL checks that raw is an absolute http or https URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, raw)
	}
	return nil
}

// session carries the per-run bookkeeping.
type session struct {
	id       string
	state    State
	observer Observer
	logger   *zap.Logger
}

func (s *session) transition(to State) {
	s.state = to
	s.logger.Info("Session state changed.", zap.String("state", string(to)))
	if s.observer != nil {
		s.observer(Event{SessionID: s.id, State: to, At: time.Now()})
	}
}

func (s *session) fail(err error) error {
	return &SessionError{SessionID: s.id, State: s.state, Err: err}
}

// Run drives one form-fill session to completion.
//
// The browser is closed before Run returns in silent mode. In preview mode Run
// holds the page open for the configured hold, returns, and the browser is
// closed by a timer after the configured close delay, independent of ctx.
// Once launched, a session runs to completion even if ctx is canceled; only
// the navigation timeout bounds it, and cancellation ends a preview hold early.
// obs may be nil; it sees every transition made before Run returns.
func (r *Runner) Run(ctx context.Context, req Request, obs Observer) (*Result, error) {
	formURL := req.FormURL
	if formURL == "" {
		formURL = r.cfg.DefaultFormURL
	}
	if err := ValidateURL(formURL); err != nil {
		return nil, err
	}
	preview := req.Preview()

	s := &session{id: uuid.NewString(), observer: obs}
	s.logger = r.logger.With(zap.String("session_id", s.id), zap.String("form_url", formURL), zap.Bool("preview", preview))
	s.transition(StateInit)

	work := context.WithoutCancel(ctx)
	page, err := r.launcher.Launch(work, preview)
	if err != nil {
		s.logger.Error("Browser launch failed.", zap.Error(err))
		return nil, s.fail(fmt.Errorf("%w: %w", ErrLaunch, err))
	}

	result, err := r.drive(work, s, page, formURL, req.Fields)
	var failure error
	if err != nil {
		s.logger.Error("Session failed.", zap.String("state", string(s.state)), zap.Error(err))
		failure = s.fail(err)
	} else if preview {
		s.transition(StatePreviewHold)
		// An abandoned request ends the hold early; the browser stays up
		// until its scheduled close either way.
		_ = sleep(ctx, r.cfg.PreviewHold)
	}

	if preview {
		r.scheduleClose(s.id, page, s.logger)
	} else {
		r.closePage(page, s.logger)
		s.transition(StateClosed)
	}

	if failure != nil {
		return nil, failure
	}
	return result, nil
}

// drive runs the session from navigation to the second screenshot. ctx is
// never canceled by the caller.
func (r *Runner) drive(ctx context.Context, s *session, page Page, formURL string, fields []extraction.Field) (*Result, error) {
	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavigationTimeout)
	err := page.Navigate(navCtx, formURL)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	s.transition(StateNavigated)

	_ = sleep(ctx, r.cfg.SettleDelay)

	before, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	s.transition(StateSnapshotBefore)

	snapshot, err := page.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	inputs, err := dom.DiscoverHTML(snapshot)
	if err != nil {
		return nil, err
	}
	s.transition(StateFieldsDiscovered)
	s.logger.Debug("Form inputs discovered.", zap.Int("count", len(inputs)))

	mapping := formmap.BuildMapping(fields)
	s.transition(StateFilling)
	filled := r.fill(ctx, s, page, formmap.Assign(inputs, mapping))

	after, err := page.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	s.transition(StateSnapshotAfter)

	return &Result{
		Success:      true,
		Message:      completedMessage,
		FormURL:      formURL,
		FilledFields: filled,
		FormFields:   inputs,
		FieldMapping: mapping,
		Screenshots: Screenshots{
			Before: base64.StdEncoding.EncodeToString(before),
			After:  base64.StdEncoding.EncodeToString(after),
		},
	}, nil
}

// fill writes every assignment in order. A failed fill is recorded and the
// session moves on.
func (r *Runner) fill(ctx context.Context, s *session, page Page, assignments []*formmap.Assignment) []FilledField {
	filled := make([]FilledField, 0, len(assignments))
	for _, a := range assignments {
		if a == nil {
			continue
		}

		target := formmap.FillTarget(a.Input)
		fillCtx, cancel := ctx, context.CancelFunc(func() {})
		if r.cfg.FillTimeout > 0 {
			fillCtx, cancel = context.WithTimeout(ctx, r.cfg.FillTimeout)
		}
		err := page.Fill(fillCtx, target, a.Value)
		cancel()

		result := FilledField{Field: a.Input.DisplayName(), Value: a.Value, Success: err == nil, Selector: target}
		if err != nil {
			s.logger.Warn("Field fill failed.", zap.String("selector", target), zap.String("key", string(a.Key)), zap.Error(err))
			result.Selector = a.Input.Selector
		}
		filled = append(filled, result)

		_ = sleep(ctx, r.cfg.PacingDelay)
	}
	return filled
}

func (r *Runner) closePage(page Page, logger *zap.Logger) {
	if err := page.Close(); err != nil {
		logger.Warn("Failed to close browser.", zap.Error(err))
	}
}

// scheduleClose closes a preview browser after the configured delay. Once
// Shutdown has run, pages are closed immediately instead.
func (r *Runner) scheduleClose(id string, page Page, logger *zap.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		go r.closePage(page, logger)
		return
	}

	// The callback takes r.mu, so it cannot run before the entry is stored.
	timer := time.AfterFunc(r.cfg.PreviewCloseDelay, func() {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()

		r.closePage(page, logger)
		logger.Info("Session state changed.", zap.String("state", string(StateClosed)))
	})
	r.pending[id] = &pendingClose{page: page, timer: timer}
}

// Pending returns the number of preview browsers awaiting their scheduled close.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Shutdown closes every preview browser that is still waiting for its timer.
// Browsers whose timer has already fired are left to the timer.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.shutdown = true
	pending := r.pending
	r.pending = make(map[string]*pendingClose)
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for id, p := range pending {
		if !p.timer.Stop() {
			continue
		}
		g.Go(func() error {
			done := make(chan error, 1)
			go func() { done <- p.page.Close() }()
			select {
			case err := <-done:
				if err != nil {
					return fmt.Errorf("closing preview session %s: %w", id, err)
				}
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
