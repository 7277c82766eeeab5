// File: cmd/deps.go
package cmd

import (
	"io"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/automation"
	"github.com/xkilldash9x/citefill/internal/browser"
	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/docai"
)

// Factories for the external systems the commands drive, replaced in tests.
var (
	newBackend  = docai.New
	newLauncher = func(cfg config.BrowserConfig, logger *zap.Logger) automation.Launcher {
		return automation.ChromeLauncher(browser.NewLauncher(cfg, logger))
	}
)

// writeJSON prints v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
