// internal/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context that carries the values and deadline of
// primary and is canceled when either primary or secondary is done. chromedp
// keeps its target in context values, so primary is always the tab context
// and secondary the caller's operation context.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps the parent's values but none of its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context with the values of ctx that is never canceled.
// Browser lifetimes hang off detached contexts so they can outlive the
// request that launched them.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
