// File: cmd/fill.go
package cmd

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/automation"
	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/formmap"
	"github.com/xkilldash9x/citefill/internal/observability"
)

// fillSummary is what `fill` prints; screenshots go to files instead.
type fillSummary struct {
	FormURL      string                   `json:"formUrl"`
	FilledFields []automation.FilledField `json:"filledFields"`
	FieldMapping formmap.FieldMapping     `json:"fieldMapping"`
	FormFields   int                      `json:"formFields"`
}

// newFillCmd creates the `fill` command, which runs one form-fill session
// from the command line.
func newFillCmd() *cobra.Command {
	var fieldsArg, formURL, shotsDir string
	var preview bool

	cmd := &cobra.Command{
		Use:   "fill",
		Short: "Fill the appeal form with extracted fields",
		Long: `Fill the appeal form with extracted fields.

--fields takes a JSON field list, "@path" to read it from a file, or "-" for
stdin. Both a bare list and the output of "citefill extract" are accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			data, err := readFieldsArg(cmd.InOrStdin(), fieldsArg)
			if err != nil {
				return err
			}
			fields, err := parseFields(data)
			if err != nil {
				return err
			}

			runner := automation.NewRunner(newLauncher(cfg.Browser(), logger), cfg.Automation(), logger)
			defer func() {
				if err := runner.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
					logger.Warn("Failed to close preview browser.", zap.Error(err))
				}
			}()

			stderr := cmd.ErrOrStderr()
			observer := func(ev automation.Event) {
				fmt.Fprintf(stderr, "%s  %s\n", ev.At.Format(time.TimeOnly), ev.State)
			}
			req := automation.Request{Fields: fields, FormURL: formURL, PreviewMode: &preview}
			result, err := runner.Run(cmd.Context(), req, observer)
			if err != nil {
				return err
			}

			if shotsDir != "" {
				if err := writeScreenshots(shotsDir, result.Screenshots); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), fillSummary{
				FormURL:      result.FormURL,
				FilledFields: result.FilledFields,
				FieldMapping: result.FieldMapping,
				FormFields:   len(result.FormFields),
			})
		},
	}

	cmd.Flags().StringVarP(&fieldsArg, "fields", "f", "", `extracted fields as JSON, "@file" or "-" for stdin`)
	cmd.Flags().StringVarP(&formURL, "url", "u", "", "form URL (default automation.default_form_url)")
	cmd.Flags().BoolVar(&preview, "preview", false, "show the browser and hold it open after filling")
	cmd.Flags().StringVar(&shotsDir, "screenshots", "", "directory to write before.png and after.png to")
	cmd.Flags().Duration("preview-hold", 0, "how long a preview stays open (overrides automation.preview_hold)")
	_ = cmd.MarkFlagRequired("fields")
	bindFlag(cmd, "preview-hold", "automation.preview_hold")
	return cmd
}

func readFieldsArg(stdin io.Reader, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read fields from stdin: %w", err)
		}
		return data, nil
	case strings.HasPrefix(arg, "@"):
		path, err := homedir.Expand(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, fmt.Errorf("invalid fields path: %w", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read fields file: %w", err)
		}
		return data, nil
	default:
		return []byte(arg), nil
	}
}

// parseFields accepts a bare field list or an object carrying
// "extractedFields", as printed by extract and returned by the API.
func parseFields(data []byte) ([]extraction.Field, error) {
	trimmed := strings.TrimSpace(string(data))
	var fields []extraction.Field
	if strings.HasPrefix(trimmed, "{") {
		var wrapped extraction.Result
		if err := json.UnmarshalFromString(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("invalid fields JSON: %w", err)
		}
		fields = wrapped.Fields
	} else if err := json.UnmarshalFromString(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("invalid fields JSON: %w", err)
	}
	if len(fields) == 0 {
		return nil, errors.New("no extracted fields provided")
	}
	return fields, nil
}

func writeScreenshots(dir string, shots automation.Screenshots) error {
	dir, err := homedir.Expand(dir)
	if err != nil {
		return fmt.Errorf("invalid screenshot directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	for name, encoded := range map[string]string{"before.png": shots.Before, "after.png": shots.After} {
		img, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), img, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	return nil
}
