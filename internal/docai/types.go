// internal/docai/types.go
package docai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/citefill/internal/extraction"
)

// Upload is a validated document ready for processing.
type Upload struct {
	Name     string
	MimeType string
	Content  []byte
}

// Document is the backend output the field extractor consumes.
type Document struct {
	Text       string
	Entities   []extraction.Entity
	FormFields []extraction.FormFieldPair
}

// Fields runs the field extractor over the document.
func (d *Document) Fields() []extraction.Field {
	return extraction.Extract(d.Text, d.Entities, d.FormFields)
}

// Backend turns an uploaded document into text, entities and form fields.
type Backend interface {
	Process(ctx context.Context, up Upload) (*Document, error)
}

var (
	// ErrMissingConfig means the project or processor id is not configured.
	ErrMissingConfig = errors.New("document AI project or processor id is not configured")
	// ErrAuth means no usable credentials could be obtained.
	ErrAuth = errors.New("document AI authentication failed")
	// ErrUnsupportedType is returned by backends that cannot read the upload's type.
	ErrUnsupportedType = errors.New("unsupported document type")
)

// BackendError is a non-2xx answer from the document service.
type BackendError struct {
	Status  int
	Message string
	Body    string
	// SchemaMissing is set when the processor rejected the request for lack
	// of an entity schema, even after retrying with a minimal request.
	SchemaMissing bool
	Retried       bool
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Body
	}
	return fmt.Sprintf("document AI returned status %d: %s", e.Status, msg)
}
