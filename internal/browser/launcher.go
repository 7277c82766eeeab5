// internal/browser/launcher.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/config"
)

// ErrExecutableNotFound reports that no browser binary could be started.
var ErrExecutableNotFound = errors.New("browser executable not found")

// Launcher starts one browser process per page.
type Launcher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewLauncher creates a launcher for the given browser settings.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger) *Launcher {
	return &Launcher{cfg: cfg, logger: logger.Named("browser")}
}

type flag struct {
	name  string
	value interface{}
}

// allocatorFlags lists the command-line switches for a launch. Headed
// launches are used for preview so the user can watch the fill.
func allocatorFlags(cfg config.BrowserConfig, headed bool) []flag {
	flags := []flag{
		{"headless", !headed},
		{"disable-gpu", true},
		{"no-first-run", true},
		{"no-default-browser-check", true},
		{"enable-automation", true},
		{"window-size", fmt.Sprintf("%d,%d", cfg.Width, cfg.Height)},
	}
	if cfg.NoSandbox {
		flags = append(flags, flag{"no-sandbox", true})
	}
	if headed {
		flags = append(flags, flag{"hide-scrollbars", false}, flag{"mute-audio", false})
	}
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(arg, "="); found {
			flags = append(flags, flag{key, value})
		} else if arg != "" {
			flags = append(flags, flag{arg, true})
		}
	}
	return flags
}

// AllocatorOptions converts the launch settings into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig, headed bool) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(cfg.Args)+10)
	// Start from chromedp's defaults and override, so switches such as
	// disable-background-networking are kept.
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg, headed) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Launch starts a browser and opens a blank tab sized to the configured
// viewport. The browser's lifetime is not bound to ctx: only Page.Close ends
// it. ctx bounds the launch itself.
func (l *Launcher) Launch(ctx context.Context, headed bool) (*Page, error) {
	id := uuid.NewString()
	logger := l.logger.With(zap.String("page_id", id), zap.Bool("headed", headed))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(l.cfg, headed)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	page := &Page{
		id:          id,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      logger,
	}

	// The first Run starts the process; it must run on the tab context itself
	// or the browser would die with ctx.
	launched := make(chan error, 1)
	go func() {
		launched <- chromedp.Run(tabCtx,
			emulation.SetDeviceMetricsOverride(int64(l.cfg.Width), int64(l.cfg.Height), 1, false),
		)
	}()

	select {
	case err := <-launched:
		if err != nil {
			_ = page.Close()
			return nil, classifyLaunchError(err)
		}
	case <-ctx.Done():
		_ = page.Close()
		return nil, fmt.Errorf("browser launch abandoned: %w", ctx.Err())
	}

	logger.Debug("Browser launched.")
	return page, nil
}

func classifyLaunchError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || strings.Contains(err.Error(), "executable file not found") ||
		strings.Contains(err.Error(), "no such file or directory") {
		return fmt.Errorf("%w: %v", ErrExecutableNotFound, err)
	}
	return fmt.Errorf("failed to launch browser: %w", err)
}
