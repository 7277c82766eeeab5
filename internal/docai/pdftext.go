// internal/docai/pdftext.go
package docai

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/extraction"
)

// PDFText reads the embedded text layer and any filled AcroForm fields of a
// PDF locally. It does no OCR, so scanned citations and images yield nothing
// useful; it exists for development and for born-digital citations.
type PDFText struct {
	logger *zap.Logger
}

// NewPDFText creates the local PDF backend.
func NewPDFText(logger *zap.Logger) *PDFText {
	return &PDFText{logger: logger.Named("pdftext")}
}

// Process extracts text page by page and form fields from the AcroForm.
func (p *PDFText) Process(ctx context.Context, up Upload) (*Document, error) {
	if up.MimeType != "application/pdf" {
		return nil, fmt.Errorf("%w: %s (the pdftext backend reads PDFs only)", ErrUnsupportedType, up.MimeType)
	}

	text, err := plainText(ctx, up.Content)
	if err != nil {
		return nil, err
	}

	fields, err := acroFormFields(up.Content)
	if err != nil {
		// The text layer is still useful without the form.
		p.logger.Warn("Failed to read AcroForm fields.", zap.String("name", up.Name), zap.Error(err))
	}

	p.logger.Debug("Extracted PDF text layer.", zap.String("name", up.Name), zap.Int("chars", len(text)), zap.Int("form_fields", len(fields)))
	return &Document{Text: text, FormFields: fields}, nil
}

func plainText(ctx context.Context, content []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var sb strings.Builder
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to extract text from page %d: %w", n, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// acroFormFields returns the name and value of every terminal text field in
// the document's interactive form, in declaration order.
func acroFormFields(content []byte) ([]extraction.FormFieldPair, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(content), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}

	root, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}
	formObj, found := root.Find("AcroForm")
	if !found {
		return nil, nil
	}
	form, err := ctx.DereferenceDict(formObj)
	if err != nil || form == nil {
		return nil, err
	}
	fieldsObj, found := form.Find("Fields")
	if !found {
		return nil, nil
	}
	fields, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference form fields: %w", err)
	}

	var out []extraction.FormFieldPair
	for _, f := range fields {
		out = collectField(ctx, f, "", out, 0)
	}
	return out, nil
}

// maxFieldDepth bounds recursion through malformed Kids cycles.
const maxFieldDepth = 16

func collectField(ctx *model.Context, obj types.Object, parent string, out []extraction.FormFieldPair, depth int) []extraction.FormFieldPair {
	if depth > maxFieldDepth {
		return out
	}
	dict, err := ctx.DereferenceDict(obj)
	if err != nil || dict == nil {
		return out
	}

	name := parent
	if t, found := dict.Find("T"); found {
		if partial, err := ctx.DereferenceStringOrHexLiteral(t, model.V10, nil); err == nil && partial != "" {
			if name != "" {
				name += "."
			}
			name += partial
		}
	}

	// A terminal field carries its value itself; its Kids, if any, are
	// widget annotations.
	if v, found := dict.Find("V"); found {
		if value, err := ctx.DereferenceStringOrHexLiteral(v, model.V10, nil); err == nil {
			return append(out, extraction.FormFieldPair{Name: name, Value: value})
		}
		return out
	}

	kidsObj, found := dict.Find("Kids")
	if !found {
		return out
	}
	kids, err := ctx.DereferenceArray(kidsObj)
	if err != nil {
		return out
	}
	for _, k := range kids {
		out = collectField(ctx, k, name, out, depth+1)
	}
	return out
}
