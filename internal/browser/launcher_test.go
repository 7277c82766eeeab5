// internal/browser/launcher_test.go
package browser

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/citefill/internal/config"
)

func flagValue(flags []flag, name string) (interface{}, bool) {
	var (
		v     interface{}
		found bool
	)
	// Later flags override earlier ones, as they do in the allocator.
	for _, f := range flags {
		if f.name == name {
			v, found = f.value, true
		}
	}
	return v, found
}

func TestAllocatorFlags(t *testing.T) {
	base := config.BrowserConfig{Width: 1280, Height: 720, NoSandbox: true}

	t.Run("silent launch is headless", func(t *testing.T) {
		flags := allocatorFlags(base, false)
		v, _ := flagValue(flags, "headless")
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "window-size")
		assert.Equal(t, "1280,720", v)
		_, ok := flagValue(flags, "no-sandbox")
		assert.True(t, ok)
	})

	t.Run("preview launch is headed", func(t *testing.T) {
		v, _ := flagValue(allocatorFlags(base, true), "headless")
		assert.Equal(t, false, v)
	})

	t.Run("sandbox kept unless disabled", func(t *testing.T) {
		cfg := base
		cfg.NoSandbox = false
		_, ok := flagValue(allocatorFlags(cfg, false), "no-sandbox")
		assert.False(t, ok)
	})

	t.Run("extra args", func(t *testing.T) {
		cfg := base
		cfg.Args = []string{"--lang=en-US", "disable-dev-shm-usage", ""}
		flags := allocatorFlags(cfg, false)
		v, _ := flagValue(flags, "lang")
		assert.Equal(t, "en-US", v)
		v, _ = flagValue(flags, "disable-dev-shm-usage")
		assert.Equal(t, true, v)
		_, ok := flagValue(flags, "")
		assert.False(t, ok)
	})

	t.Run("options include exec path", func(t *testing.T) {
		cfg := base
		withoutPath := AllocatorOptions(cfg, false)
		cfg.ExecPath = "/usr/bin/chromium"
		assert.Len(t, AllocatorOptions(cfg, false), len(withoutPath)+1)
	})
}

func TestClassifyLaunchError(t *testing.T) {
	missing := &exec.Error{Name: "google-chrome", Err: exec.ErrNotFound}
	assert.ErrorIs(t, classifyLaunchError(missing), ErrExecutableNotFound)
	assert.ErrorIs(t, classifyLaunchError(fmt.Errorf("start: %v", missing)), ErrExecutableNotFound)

	other := classifyLaunchError(errors.New("websocket url timeout reached"))
	assert.NotErrorIs(t, other, ErrExecutableNotFound)
	assert.Contains(t, other.Error(), "failed to launch browser")
}
