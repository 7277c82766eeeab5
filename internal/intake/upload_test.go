// internal/intake/upload_test.go
package intake

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/citefill/internal/config"
)

var (
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< >>\nendobj\n")
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpgBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func newValidator(maxBytes int64) *Validator {
	return NewValidator(config.UploadConfig{
		MaxBytes:     maxBytes,
		AllowedTypes: []string{"application/pdf", "image/jpeg", "image/png"},
	})
}

func validationMessage(t *testing.T, err error) string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	return verr.Message
}

func TestValidate(t *testing.T) {
	v := newValidator(10 << 20)

	t.Run("accepted types", func(t *testing.T) {
		for _, tc := range []struct {
			declared, want string
			content        []byte
		}{
			{"application/pdf", "application/pdf", pdfBytes},
			{"image/png", "image/png", pngBytes},
			{"image/jpeg", "image/jpeg", jpgBytes},
			{"", "application/pdf", pdfBytes},
			{"application/octet-stream", "image/png", pngBytes},
			{"application/pdf; charset=binary", "application/pdf", pdfBytes},
			// A mislabelled image goes on with its real type.
			{"image/jpeg", "image/png", pngBytes},
		} {
			up, err := v.Validate("upload", tc.declared, tc.content)
			require.NoError(t, err, tc.declared)
			assert.Equal(t, tc.want, up.MimeType, tc.declared)
			assert.Equal(t, tc.content, up.Content)
			assert.Equal(t, "upload", up.Name)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		_, err := v.Validate("x.pdf", "application/pdf", nil)
		assert.Equal(t, "No file provided", validationMessage(t, err))
	})

	t.Run("declared type not allowed", func(t *testing.T) {
		_, err := v.Validate("x.gif", "image/gif", pdfBytes)
		assert.Equal(t, "Invalid file type. Please upload a PDF, JPG, or PNG file.", validationMessage(t, err))
	})

	t.Run("content does not match an allowed type", func(t *testing.T) {
		_, err := v.Validate("x.pdf", "application/pdf", []byte("hello, plain text"))
		assert.Equal(t, "Invalid file type. Please upload a PDF, JPG, or PNG file.", validationMessage(t, err))
	})

	t.Run("size boundary", func(t *testing.T) {
		small := newValidator(int64(len(pdfBytes)))
		_, err := small.Validate("x.pdf", "application/pdf", pdfBytes)
		require.NoError(t, err)

		tiny := newValidator(int64(len(pdfBytes) - 1))
		_, err = tiny.Validate("x.pdf", "application/pdf", pdfBytes)
		assert.Contains(t, validationMessage(t, err), "File too large")
	})

	t.Run("default limit message", func(t *testing.T) {
		assert.Equal(t, "File too large. Please upload a file smaller than 10MB.", v.tooLarge().Error())
	})
}

func multipartRequest(t *testing.T, field, filename, contentType string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/process-document", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestFromRequest(t *testing.T) {
	t.Run("reads the file part", func(t *testing.T) {
		v := newValidator(10 << 20)
		up, err := v.FromRequest(httptest.NewRecorder(), multipartRequest(t, FileField, "ticket.pdf", "application/pdf", pdfBytes))
		require.NoError(t, err)
		assert.Equal(t, "ticket.pdf", up.Name)
		assert.Equal(t, "application/pdf", up.MimeType)
		assert.Equal(t, pdfBytes, up.Content)
	})

	t.Run("missing file part", func(t *testing.T) {
		v := newValidator(10 << 20)
		_, err := v.FromRequest(httptest.NewRecorder(), multipartRequest(t, "document", "ticket.pdf", "application/pdf", pdfBytes))
		assert.Equal(t, "No file provided", validationMessage(t, err))
	})

	t.Run("not multipart", func(t *testing.T) {
		v := newValidator(10 << 20)
		req := httptest.NewRequest(http.MethodPost, "/api/process-document", bytes.NewReader(pdfBytes))
		req.Header.Set("Content-Type", "application/pdf")
		_, err := v.FromRequest(httptest.NewRecorder(), req)
		assert.Equal(t, "No file provided", validationMessage(t, err))
	})

	t.Run("oversized file", func(t *testing.T) {
		v := newValidator(1 << 10)
		content := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("A"), 1<<10)...)
		_, err := v.FromRequest(httptest.NewRecorder(), multipartRequest(t, FileField, "big.pdf", "application/pdf", content))
		assert.Equal(t, "File too large. Please upload a file smaller than 1KB.", validationMessage(t, err))
	})
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	v := newValidator(10 << 20)

	path := filepath.Join(dir, "ticket.PNG")
	require.NoError(t, os.WriteFile(path, pngBytes, 0o600))
	up, err := v.FromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ticket.PNG", up.Name)
	assert.Equal(t, "image/png", up.MimeType)

	_, err = v.FromFile(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)

	big := filepath.Join(dir, "big.pdf")
	require.NoError(t, os.WriteFile(big, bytes.Repeat([]byte("A"), 2048), 0o600))
	_, err = newValidator(1024).FromFile(big)
	assert.Contains(t, validationMessage(t, err), "File too large")
}
