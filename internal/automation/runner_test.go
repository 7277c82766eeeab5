// internal/automation/runner_test.go
package automation

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/citefill/internal/browser"
	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/formmap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const appealPage = `<html><body><form>
<label for="cit">Citation Number</label><input id="cit" name="citation_number">
<div><input name="license_plate" placeholder="Plate"></div>
<div><input name="citation_num" type="text"></div>
<div><input name="email" type="email"></div>
<input type="submit" name="fine_amount_submit" value="Submit">
</form></body></html>`

// fakePage records every call the runner makes.
type fakePage struct {
	mu        sync.Mutex
	calls     []string
	fills     map[string]string
	html      string
	failFill  map[string]error
	navErr    error
	navDelay  time.Duration
	closed    int
	closedAt  time.Time
	closeHook func()
	fillHook  func()
}

func newFakePage(html string) *fakePage {
	return &fakePage{html: html, fills: map[string]string{}, failFill: map[string]error{}}
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate " + url)
	if p.navDelay > 0 {
		select {
		case <-time.After(p.navDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.navErr
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.record("screenshot")
	return []byte("png"), nil
}

func (p *fakePage) Snapshot(ctx context.Context) (string, error) {
	p.record("snapshot")
	return p.html, nil
}

func (p *fakePage) Fill(ctx context.Context, selector, value string) error {
	p.record("fill " + selector)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fillHook != nil {
		p.fillHook()
	}
	if err := p.failFill[selector]; err != nil {
		return err
	}
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Close() error {
	p.record("close")
	p.mu.Lock()
	p.closed++
	p.closedAt = time.Now()
	hook := p.closeHook
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakePage) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeLauncher struct {
	page   *fakePage
	err    error
	headed []bool
}

func (l *fakeLauncher) Launch(ctx context.Context, headed bool) (Page, error) {
	l.headed = append(l.headed, headed)
	if l.err != nil {
		return nil, l.err
	}
	return l.page, nil
}

func fastConfig() config.AutomationConfig {
	return config.AutomationConfig{
		DefaultFormURL:    config.DefaultFormURL,
		NavigationTimeout: time.Second,
		FillTimeout:       time.Second,
		PreviewHold:       30 * time.Millisecond,
		PreviewCloseDelay: 60 * time.Millisecond,
	}
}

func citationFields() []extraction.Field {
	return extraction.Extract("Citation Number: ABC123456\nFine Amount: $75.00", nil, nil)
}

func boolPtr(b bool) *bool { return &b }

func collect(events *[]State) Observer {
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		*events = append(*events, e.State)
	}
}

func TestRun_SilentMode(t *testing.T) {
	page := newFakePage(appealPage)
	launcher := &fakeLauncher{page: page}
	runner := NewRunner(launcher, fastConfig(), zaptest.NewLogger(t))

	var states []State
	res, err := runner.Run(context.Background(), Request{
		Fields:      citationFields(),
		PreviewMode: boolPtr(false),
		FormURL:     "https://forms.example.com/appeal",
	}, collect(&states))
	require.NoError(t, err)

	assert.Equal(t, []bool{false}, launcher.headed, "silent sessions run headless")
	assert.Equal(t, 1, page.closeCount(), "browser closed before Run returns")
	assert.Equal(t, 0, runner.Pending())
	assert.Equal(t, []State{
		StateInit, StateNavigated, StateSnapshotBefore, StateFieldsDiscovered,
		StateFilling, StateSnapshotAfter, StateClosed,
	}, states)

	assert.True(t, res.Success)
	assert.Equal(t, "Form filling completed", res.Message)
	assert.Equal(t, "https://forms.example.com/appeal", res.FormURL)
	assert.Equal(t, formmap.FieldMapping{
		formmap.CitationNumber: "ABC123456",
		formmap.FineAmount:     "75.00",
	}, res.FieldMapping)
	assert.Len(t, res.FormFields, 5)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("png")), res.Screenshots.Before)
	assert.Equal(t, res.Screenshots.Before, res.Screenshots.After)

	// citation_number by id, citation_num by name; the submit input is never filled.
	assert.Equal(t, []FilledField{
		{Field: "Citation Number", Value: "ABC123456", Success: true, Selector: "#cit"},
		{Field: "citation_num", Value: "ABC123456", Success: true, Selector: `[name="citation_num"]`},
	}, res.FilledFields)
	assert.Equal(t, map[string]string{"#cit": "ABC123456", `[name="citation_num"]`: "ABC123456"}, page.fills)

	assert.Equal(t, []string{
		"navigate https://forms.example.com/appeal",
		"screenshot", "snapshot",
		"fill #cit", `fill [name="citation_num"]`,
		"screenshot", "close",
	}, page.calls)
}

func TestRun_PreviewMode(t *testing.T) {
	page := newFakePage(appealPage)
	closed := make(chan struct{})
	page.closeHook = func() { close(closed) }

	cfg := fastConfig()
	// The close timer logs after the test body returns, so no zaptest logger here.
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zap.NewNop())

	var states []State
	start := time.Now()
	res, err := runner.Run(context.Background(), Request{Fields: citationFields()}, collect(&states))
	returned := time.Now()
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.GreaterOrEqual(t, returned.Sub(start), cfg.PreviewHold, "Run holds before returning")
	assert.Equal(t, 0, page.closeCount(), "browser stays open after Run returns")
	assert.Equal(t, 1, runner.Pending())
	assert.Equal(t, StatePreviewHold, states[len(states)-1])
	assert.NotContains(t, states, StateClosed)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("preview browser was never closed")
	}
	page.mu.Lock()
	closedAt := page.closedAt
	page.mu.Unlock()
	assert.GreaterOrEqual(t, closedAt.Sub(returned), cfg.PreviewCloseDelay-5*time.Millisecond)
	assert.Eventually(t, func() bool { return runner.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestRun_PreviewCloseIgnoresRequestCancellation(t *testing.T) {
	page := newFakePage(appealPage)
	closed := make(chan struct{})
	page.closeHook = func() { close(closed) }

	cfg := fastConfig()
	cfg.PreviewHold = 0
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := runner.Run(ctx, Request{Fields: citationFields()}, nil)
	require.NoError(t, err)
	cancel()

	assert.Equal(t, 0, page.closeCount(), "request cancellation does not close the preview browser")
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("preview browser was never closed")
	}
}

func TestRun_RequestCancellationDoesNotStopSession(t *testing.T) {
	page := newFakePage(appealPage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page.fillHook = cancel

	cfg := fastConfig()
	cfg.PacingDelay = 20 * time.Millisecond
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zaptest.NewLogger(t))

	var states []State
	res, err := runner.Run(ctx, Request{Fields: citationFields(), PreviewMode: boolPtr(false)}, collect(&states))
	require.NoError(t, err)

	assert.Equal(t, []FilledField{
		{Field: "Citation Number", Value: "ABC123456", Success: true, Selector: "#cit"},
		{Field: "citation_num", Value: "ABC123456", Success: true, Selector: `[name="citation_num"]`},
	}, res.FilledFields, "every assignment is attempted after the caller goes away")
	assert.NotEmpty(t, res.Screenshots.After)

	page.mu.Lock()
	calls := append([]string(nil), page.calls...)
	page.mu.Unlock()
	assert.Equal(t, []string{
		"navigate https://forms.example.com/appeal", "screenshot", "snapshot",
		"fill #cit", `fill [name="citation_num"]`, "screenshot", "close",
	}, calls)
	assert.Equal(t, StateSnapshotAfter, states[len(states)-2])
	assert.Equal(t, StateClosed, states[len(states)-1])
}

func TestRun_RequestCancellationEndsPreviewHold(t *testing.T) {
	page := newFakePage(appealPage)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	page.fillHook = cancel

	cfg := fastConfig()
	cfg.PreviewHold = 10 * time.Second
	cfg.PreviewCloseDelay = time.Minute
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zap.NewNop())

	start := time.Now()
	res, err := runner.Run(ctx, Request{Fields: citationFields(), FormURL: "https://forms.example.com/appeal"}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, res.FilledFields, 2)
	assert.Equal(t, 1, runner.Pending(), "the browser still waits for its scheduled close")

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Equal(t, 1, page.closeCount())
}

func TestRun_FillFailureIsRecorded(t *testing.T) {
	page := newFakePage(appealPage)
	page.failFill["#cit"] = errors.New("element is not editable")
	runner := NewRunner(&fakeLauncher{page: page}, fastConfig(), zaptest.NewLogger(t))

	res, err := runner.Run(context.Background(), Request{Fields: citationFields(), PreviewMode: boolPtr(false)}, nil)
	require.NoError(t, err)

	require.Len(t, res.FilledFields, 2)
	assert.Equal(t, FilledField{Field: "Citation Number", Value: "ABC123456", Success: false, Selector: "input:nth-of-type(1)"}, res.FilledFields[0])
	assert.True(t, res.FilledFields[1].Success, "later fields are still attempted")
	assert.Equal(t, 1, page.closeCount())
}

func TestRun_PacingBetweenFills(t *testing.T) {
	page := newFakePage(appealPage)
	cfg := fastConfig()
	cfg.PacingDelay = 25 * time.Millisecond
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zaptest.NewLogger(t))

	start := time.Now()
	_, err := runner.Run(context.Background(), Request{Fields: citationFields(), PreviewMode: boolPtr(false)}, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*cfg.PacingDelay)
}

func TestRun_NoMatchingFields(t *testing.T) {
	page := newFakePage(appealPage)
	runner := NewRunner(&fakeLauncher{page: page}, fastConfig(), zaptest.NewLogger(t))

	res, err := runner.Run(context.Background(), Request{PreviewMode: boolPtr(false)}, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.FilledFields)
	assert.NotNil(t, res.FilledFields)
	assert.Empty(t, res.FieldMapping)
}

func TestRun_DefaultFormURL(t *testing.T) {
	page := newFakePage(appealPage)
	runner := NewRunner(&fakeLauncher{page: page}, fastConfig(), zaptest.NewLogger(t))

	res, err := runner.Run(context.Background(), Request{PreviewMode: boolPtr(false)}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultFormURL, res.FormURL)
	assert.Equal(t, "navigate "+config.DefaultFormURL, page.calls[0])
}

func TestRun_InvalidURLNeverLaunches(t *testing.T) {
	launcher := &fakeLauncher{page: newFakePage(appealPage)}
	runner := NewRunner(launcher, fastConfig(), zaptest.NewLogger(t))

	for _, raw := range []string{"not a url", "ftp://example.com", "/relative", "https://"} {
		_, err := runner.Run(context.Background(), Request{FormURL: raw}, nil)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	assert.Empty(t, launcher.headed)
}

func TestRun_LaunchFailure(t *testing.T) {
	t.Run("missing executable is a setup error", func(t *testing.T) {
		launcher := &fakeLauncher{err: fmt.Errorf("%w: exec: \"google-chrome\": executable file not found in $PATH", browser.ErrExecutableNotFound)}
		runner := NewRunner(launcher, fastConfig(), zaptest.NewLogger(t))

		_, err := runner.Run(context.Background(), Request{}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrLaunch)
		assert.True(t, IsSetupError(err))

		var serr *SessionError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, StateInit, serr.State)
	})

	t.Run("other launch failures", func(t *testing.T) {
		launcher := &fakeLauncher{err: errors.New("chrome crashed")}
		runner := NewRunner(launcher, fastConfig(), zaptest.NewLogger(t))

		_, err := runner.Run(context.Background(), Request{}, nil)
		assert.ErrorIs(t, err, ErrLaunch)
		assert.False(t, IsSetupError(err))
	})
}

func TestRun_NavigationFailure(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		page := newFakePage(appealPage)
		page.navErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
		runner := NewRunner(&fakeLauncher{page: page}, fastConfig(), zaptest.NewLogger(t))

		_, err := runner.Run(context.Background(), Request{PreviewMode: boolPtr(false)}, nil)
		assert.ErrorIs(t, err, ErrNavigation)
		assert.Equal(t, 1, page.closeCount(), "silent sessions close on failure")

		var serr *SessionError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, StateInit, serr.State, "the error reports the state reached before teardown")
	})

	t.Run("timeout", func(t *testing.T) {
		page := newFakePage(appealPage)
		page.navDelay = time.Second
		cfg := fastConfig()
		cfg.NavigationTimeout = 20 * time.Millisecond
		runner := NewRunner(&fakeLauncher{page: page}, cfg, zaptest.NewLogger(t))

		_, err := runner.Run(context.Background(), Request{PreviewMode: boolPtr(false)}, nil)
		assert.ErrorIs(t, err, ErrNavigation)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("preview failure still schedules close", func(t *testing.T) {
		page := newFakePage(appealPage)
		page.navErr = errors.New("boom")
		runner := NewRunner(&fakeLauncher{page: page}, fastConfig(), zaptest.NewLogger(t))

		_, err := runner.Run(context.Background(), Request{}, nil)
		assert.ErrorIs(t, err, ErrNavigation)
		assert.Equal(t, 1, runner.Pending())
		require.NoError(t, runner.Shutdown(context.Background()))
		assert.Equal(t, 1, page.closeCount())
	})
}

func TestShutdown(t *testing.T) {
	cfg := fastConfig()
	cfg.PreviewHold = 0
	cfg.PreviewCloseDelay = time.Hour

	page := newFakePage(appealPage)
	runner := NewRunner(&fakeLauncher{page: page}, cfg, zaptest.NewLogger(t))
	_, err := runner.Run(context.Background(), Request{}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, runner.Pending())

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Equal(t, 1, page.closeCount())
	assert.Equal(t, 0, runner.Pending())

	// Sessions finishing after shutdown close right away.
	late := newFakePage(appealPage)
	runner.launcher = &fakeLauncher{page: late}
	_, err = runner.Run(context.Background(), Request{}, nil)
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return late.closeCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, runner.Pending())
}

func TestRequestPreviewDefault(t *testing.T) {
	assert.True(t, Request{}.Preview())
	assert.True(t, Request{PreviewMode: boolPtr(true)}.Preview())
	assert.False(t, Request{PreviewMode: boolPtr(false)}.Preview())
}
