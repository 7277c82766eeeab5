// internal/intake/upload.go
package intake

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/citefill/internal/config"
	"github.com/xkilldash9x/citefill/internal/docai"
)

// FileField is the multipart form field carrying the upload.
const FileField = "file"

// multipartOverhead is the allowance for boundaries and part headers on top of
// the file size limit.
const multipartOverhead = 1 << 20

// ErrValidation marks uploads rejected before any backend call.
var ErrValidation = errors.New("upload rejected")

// ValidationError carries the client-facing reason an upload was rejected.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

const (
	msgNoFile      = "No file provided"
	msgInvalidType = "Invalid file type. Please upload a PDF, JPG, or PNG file."
)

// Validator checks uploads against the configured type and size limits.
type Validator struct {
	maxBytes int64
	allowed  []string
}

// NewValidator creates a Validator from the upload configuration.
func NewValidator(cfg config.UploadConfig) *Validator {
	return &Validator{maxBytes: cfg.MaxBytes, allowed: cfg.AllowedTypes}
}

// MaxBytes is the largest accepted file.
func (v *Validator) MaxBytes() int64 { return v.maxBytes }

func (v *Validator) tooLarge() error {
	return &ValidationError{Message: fmt.Sprintf("File too large. Please upload a file smaller than %s.", humanSize(v.maxBytes))}
}

func humanSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	if n >= 1<<10 && n%(1<<10) == 0 {
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}

// Validate checks a file already held in memory. declaredType is the type the
// client claimed; parameters are ignored, and an empty or generic type falls
// back to the sniffed one. Content that sniffs as a different allowed type is
// passed on with the sniffed type.
func (v *Validator) Validate(name, declaredType string, content []byte) (docai.Upload, error) {
	if len(content) == 0 {
		return docai.Upload{}, &ValidationError{Message: msgNoFile}
	}

	declared := baseType(declaredType)
	sniffed := baseType(http.DetectContentType(content))
	if declared == "" || declared == "application/octet-stream" {
		declared = sniffed
	}
	if !slices.Contains(v.allowed, declared) || !slices.Contains(v.allowed, sniffed) {
		return docai.Upload{}, &ValidationError{Message: msgInvalidType}
	}
	if int64(len(content)) > v.maxBytes {
		return docai.Upload{}, v.tooLarge()
	}
	return docai.Upload{Name: name, MimeType: sniffed, Content: content}, nil
}

func baseType(t string) string {
	if t == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(t)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(t))
	}
	return mt
}

// FromRequest reads the file part of a multipart upload. The request body is
// capped so an oversized upload is rejected without being buffered.
func (v *Validator) FromRequest(w http.ResponseWriter, r *http.Request) (docai.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, v.maxBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		return docai.Upload{}, &ValidationError{Message: msgNoFile}
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return docai.Upload{}, &ValidationError{Message: msgNoFile}
		}
		if err != nil {
			return docai.Upload{}, v.readError(err)
		}
		if part.FormName() != FileField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		content, err := io.ReadAll(io.LimitReader(part, v.maxBytes+1))
		_ = part.Close()
		if err != nil {
			return docai.Upload{}, v.readError(err)
		}
		if int64(len(content)) > v.maxBytes {
			return docai.Upload{}, v.tooLarge()
		}
		return v.Validate(part.FileName(), part.Header.Get("Content-Type"), content)
	}
}

func (v *Validator) readError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return v.tooLarge()
	}
	return fmt.Errorf("%w: failed to read upload: %v", ErrValidation, err)
}

// FromFile loads and validates a file from disk. The declared type comes from
// the file extension.
func (v *Validator) FromFile(path string) (docai.Upload, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return docai.Upload{}, fmt.Errorf("invalid path %q: %w", path, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return docai.Upload{}, fmt.Errorf("failed to stat %s: %w", expanded, err)
	}
	if info.Size() > v.maxBytes {
		return docai.Upload{}, v.tooLarge()
	}
	content, err := os.ReadFile(expanded)
	if err != nil {
		return docai.Upload{}, fmt.Errorf("failed to read %s: %w", expanded, err)
	}
	return v.Validate(filepath.Base(expanded), mime.TypeByExtension(strings.ToLower(filepath.Ext(expanded))), content)
}
