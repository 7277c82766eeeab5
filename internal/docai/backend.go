// internal/docai/backend.go
package docai

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/config"
)

// New returns the backend selected by cfg.Backend.
func New(cfg config.DocAIConfig, logger *zap.Logger) (Backend, error) {
	switch cfg.Backend {
	case config.BackendDocumentAI:
		return NewDocumentAI(cfg, logger), nil
	case config.BackendPDFText:
		return NewPDFText(logger), nil
	default:
		return nil, fmt.Errorf("unknown document backend %q", cfg.Backend)
	}
}
