// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Page is a single tab in its own browser process.
type Page struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	closeOnce   sync.Once
}

// ID identifies the page in logs.
func (p *Page) ID() string { return p.id }

// run executes actions on the tab, bounded by ctx as well as the tab's lifetime.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		// Report the caller's deadline rather than the derived cancellation.
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}

// Navigate loads url and waits until the document body is ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.logger.Debug("Navigating.", zap.String("url", url))
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Screenshot captures the full scrollable page as PNG.
func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 selects lossless PNG encoding.
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Snapshot serializes the current document.
func (p *Page) Snapshot(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("DOM snapshot failed: %w", err)
	}
	return html, nil
}

// fillScript replaces an element's value and fires the events frameworks
// listen for. It returns an empty string on success and a reason otherwise.
const fillScript = `(function(selector, value) {
	const el = document.querySelector(selector);
	if (!el) {
		return "no element matches selector";
	}
	if (el.disabled || el.readOnly) {
		return "element is not editable";
	}
	if (!("value" in el) || el.type === "hidden") {
		return "element does not accept a value";
	}
	try {
		el.focus();
		el.value = value;
		el.dispatchEvent(new Event("input", { bubbles: true }));
		el.dispatchEvent(new Event("change", { bubbles: true }));
	} catch (e) {
		return String(e);
	}
	return "";
})(%s, %s)`

// ErrNotFillable is returned when the target element cannot take a value.
var ErrNotFillable = errors.New("element cannot be filled")

// Fill sets the value of the element matching the CSS selector.
func (p *Page) Fill(ctx context.Context, selector, value string) error {
	sel, err := json.MarshalToString(selector)
	if err != nil {
		return fmt.Errorf("failed to encode selector: %w", err)
	}
	val, err := json.MarshalToString(value)
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}

	var reason string
	script := fmt.Sprintf(fillScript, sel, val)
	if err := p.run(ctx, chromedp.Evaluate(script, &reason, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithSilent(true)
	})); err != nil {
		return fmt.Errorf("fill %s failed: %w", selector, err)
	}
	if reason != "" {
		return fmt.Errorf("%w: %s: %s", ErrNotFillable, selector, reason)
	}
	return nil
}

// Close shuts the tab and the browser process. It is safe to call more than once.
func (p *Page) Close() error {
	var err error
	p.closeOnce.Do(func() {
		// chromedp.Cancel closes the browser gracefully and waits for it.
		if cerr := chromedp.Cancel(p.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
		p.cancel()
		p.allocCancel()
		p.logger.Debug("Browser closed.")
	})
	return err
}
