// internal/automation/chrome.go
package automation

import (
	"context"

	"github.com/xkilldash9x/citefill/internal/browser"
)

// ChromeLauncher launches sessions on a local Chrome via chromedp.
func ChromeLauncher(l *browser.Launcher) Launcher {
	return LauncherFunc(func(ctx context.Context, headed bool) (Page, error) {
		page, err := l.Launch(ctx, headed)
		if err != nil {
			return nil, err
		}
		return page, nil
	})
}
