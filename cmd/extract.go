// File: cmd/extract.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/intake"
	"github.com/xkilldash9x/citefill/internal/observability"
)

// newExtractCmd creates the `extract` command, which runs one file through
// the configured backend and prints the extracted fields.
func newExtractCmd() *cobra.Command {
	var fieldsOnly bool

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract citation fields from a PDF, JPEG or PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			up, err := intake.NewValidator(cfg.Upload()).FromFile(args[0])
			if err != nil {
				return err
			}
			backend, err := newBackend(cfg.DocAI(), logger)
			if err != nil {
				return fmt.Errorf("failed to create document backend: %w", err)
			}

			doc, err := backend.Process(cmd.Context(), up)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", up.Name, err)
			}
			fields := doc.Fields()
			logger.Info("Document processed.", zap.String("name", up.Name), zap.Int("fields", len(fields)))

			if fieldsOnly {
				return writeJSON(cmd.OutOrStdout(), fields)
			}
			return writeJSON(cmd.OutOrStdout(), extraction.Result{Text: doc.Text, Fields: fields})
		},
	}

	cmd.Flags().BoolVar(&fieldsOnly, "fields-only", false, "print only the extracted field list")
	cmd.Flags().String("backend", "", "document backend, documentai or pdftext (overrides docai.backend)")
	bindFlag(cmd, "backend", "docai.backend")
	return cmd
}
