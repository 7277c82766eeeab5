// File: cmd/serve.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/automation"
	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/observability"
	"github.com/xkilldash9x/citefill/internal/server"
)

// newServeCmd creates the `serve` command, which hosts the HTTP API until
// interrupted.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document processing and form filling API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			backend, err := newBackend(cfg.DocAI(), logger)
			if err != nil {
				return fmt.Errorf("failed to create document backend: %w", err)
			}
			if cfg.DocAI().Backend == config.BackendDocumentAI && (cfg.DocAI().ProjectID == "" || cfg.DocAI().ProcessorID == "") {
				logger.Warn("Document AI project or processor id is not set; uploads will fail until it is configured.")
			}

			runner := automation.NewRunner(newLauncher(cfg.Browser(), logger), cfg.Automation(), logger)
			logger.Info("Starting citefill server.", zap.String("version", Version), zap.String("backend", cfg.DocAI().Backend))
			return server.New(cfg, backend, runner, logger).Run(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().String("backend", "", "document backend, documentai or pdftext (overrides docai.backend)")
	bindFlag(cmd, "addr", "server.addr")
	bindFlag(cmd, "backend", "docai.backend")
	return cmd
}
