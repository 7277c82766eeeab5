// internal/docai/documentai.go
package docai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	documentai "google.golang.org/api/documentai/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/extraction"
)

// Processor types that change how the process request is built.
const (
	FormParserProcessor       = "FORM_PARSER_PROCESSOR"
	OCRProcessor              = "OCR_PROCESSOR"
	CustomExtractionProcessor = "CUSTOM_EXTRACTION_PROCESSOR"
)

const formParserFieldMask = "text,entities,pages.formFields"

// DocumentAI processes documents with a Google Cloud Document AI processor
// over its REST API.
type DocumentAI struct {
	cfg    config.DocAIConfig
	logger *zap.Logger

	// credentials is replaced in tests. A nil token source with a nil error
	// means the client runs without authentication.
	credentials func(ctx context.Context, cfg config.DocAIConfig) (oauth2.TokenSource, error)
}

// NewDocumentAI creates a Document AI backend. Configuration is checked per
// request so a misconfigured server still starts and reports the problem to
// callers.
func NewDocumentAI(cfg config.DocAIConfig, logger *zap.Logger) *DocumentAI {
	return &DocumentAI{
		cfg:         cfg,
		logger:      logger.Named("docai"),
		credentials: tokenSource,
	}
}

// Endpoint returns the regional REST endpoint for the configured location.
func (d *DocumentAI) Endpoint() string {
	if d.cfg.Endpoint != "" {
		return d.cfg.Endpoint
	}
	return fmt.Sprintf("https://%s-documentai.googleapis.com/", d.cfg.Location)
}

func (d *DocumentAI) processorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", d.cfg.ProjectID, d.cfg.Location, d.cfg.ProcessorID)
}

func (d *DocumentAI) service(ctx context.Context) (*documentai.Service, error) {
	ts, err := d.credentials(ctx, d.cfg)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithEndpoint(d.Endpoint())}
	if ts != nil {
		opts = append(opts, option.WithTokenSource(ts))
	} else {
		opts = append(opts, option.WithoutAuthentication())
	}

	svc, err := documentai.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create document AI client: %w", err)
	}
	return svc, nil
}

// Process sends the upload to the configured processor.
func (d *DocumentAI) Process(ctx context.Context, up Upload) (*Document, error) {
	if d.cfg.ProjectID == "" || d.cfg.ProcessorID == "" {
		return nil, ErrMissingConfig
	}
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	svc, err := d.service(ctx)
	if err != nil {
		return nil, err
	}
	processors := svc.Projects.Locations.Processors
	name := d.processorName()
	logger := d.logger.With(zap.String("processor", name), zap.String("mime_type", up.MimeType), zap.Int("bytes", len(up.Content)))

	processorType := d.processorType(ctx, processors, name, logger)
	logger.Info("Processing document.", zap.String("processor_type", processorType))

	resp, err := processors.Process(name, buildRequest(processorType, up)).Context(ctx).Do()
	retried := false
	if err != nil && needsMinimalRetry(err) {
		logger.Warn("Processor rejected request for missing entity types; retrying with a minimal request.")
		retried = true
		resp, err = processors.Process(name, minimalRequest(up)).Context(ctx).Do()
	}
	if err != nil {
		return nil, toBackendError(err, retried)
	}

	return fromAPIDocument(resp.Document), nil
}

// processorType asks the service what kind of processor name refers to,
// assuming a form parser when it cannot tell.
func (d *DocumentAI) processorType(ctx context.Context, processors *documentai.ProjectsLocationsProcessorsService, name string, logger *zap.Logger) string {
	p, err := processors.Get(name).Context(ctx).Do()
	if err != nil {
		logger.Debug("Could not fetch processor info, assuming form parser.", zap.Error(err))
		return FormParserProcessor
	}
	if p.Type == "" {
		return FormParserProcessor
	}
	return p.Type
}

func rawDocument(up Upload) *documentai.GoogleCloudDocumentaiV1RawDocument {
	return &documentai.GoogleCloudDocumentaiV1RawDocument{
		MimeType: up.MimeType,
		Content:  base64.StdEncoding.EncodeToString(up.Content),
	}
}

func ocrOptions() *documentai.GoogleCloudDocumentaiV1ProcessOptions {
	return &documentai.GoogleCloudDocumentaiV1ProcessOptions{
		OcrConfig: &documentai.GoogleCloudDocumentaiV1OcrConfig{
			EnableNativePdfParsing:   true,
			EnableImageQualityScores: true,
			EnableSymbol:             true,
		},
	}
}

// buildRequest adds the hints each processor type accepts. Custom extraction
// and unknown processors get the raw document only.
func buildRequest(processorType string, up Upload) *documentai.GoogleCloudDocumentaiV1ProcessRequest {
	req := minimalRequest(up)
	switch processorType {
	case FormParserProcessor:
		req.FieldMask = formParserFieldMask
		req.ProcessOptions = ocrOptions()
	case OCRProcessor:
		req.ProcessOptions = ocrOptions()
	}
	return req
}

func minimalRequest(up Upload) *documentai.GoogleCloudDocumentaiV1ProcessRequest {
	return &documentai.GoogleCloudDocumentaiV1ProcessRequest{RawDocument: rawDocument(up)}
}

func mentionsEntityTypes(gerr *googleapi.Error) bool {
	return strings.Contains(gerr.Body, "entity_types") || strings.Contains(gerr.Message, "entity_types")
}

func needsMinimalRetry(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest && mentionsEntityTypes(gerr)
}

func toBackendError(err error, retried bool) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("document AI request failed: %w", err)
	}
	return &BackendError{
		Status:        gerr.Code,
		Message:       gerr.Message,
		Body:          gerr.Body,
		SchemaMissing: gerr.Code == http.StatusBadRequest && mentionsEntityTypes(gerr),
		Retried:       retried,
	}
}

func anchorContent(a *documentai.GoogleCloudDocumentaiV1DocumentTextAnchor) string {
	if a == nil {
		return ""
	}
	return a.Content
}

func layoutContent(l *documentai.GoogleCloudDocumentaiV1DocumentPageLayout) string {
	if l == nil {
		return ""
	}
	return anchorContent(l.TextAnchor)
}

// fromAPIDocument keeps the text, every entity and the form fields of the
// first page.
func fromAPIDocument(doc *documentai.GoogleCloudDocumentaiV1Document) *Document {
	out := &Document{}
	if doc == nil {
		return out
	}
	out.Text = doc.Text

	for _, e := range doc.Entities {
		if e == nil {
			continue
		}
		text := anchorContent(e.TextAnchor)
		if text == "" {
			text = e.MentionText
		}
		out.Entities = append(out.Entities, extraction.Entity{Type: e.Type, Text: text, Confidence: e.Confidence})
	}

	if len(doc.Pages) > 0 && doc.Pages[0] != nil {
		for _, f := range doc.Pages[0].FormFields {
			if f == nil {
				continue
			}
			out.FormFields = append(out.FormFields, extraction.FormFieldPair{
				Name:  layoutContent(f.FieldName),
				Value: layoutContent(f.FieldValue),
			})
		}
	}
	return out
}
