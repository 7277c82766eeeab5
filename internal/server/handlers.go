// internal/server/handlers.go
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/citefill/internal/automation"
	"github.com/xkilldash9x/citefill/internal/extraction"
	"github.com/xkilldash9x/citefill/internal/formmap"
)

// maxFillRequestBytes caps the JSON body of a fill request.
const maxFillRequestBytes = 1 << 20

type processResponse struct {
	Success         bool               `json:"success"`
	Text            string             `json:"text"`
	ExtractedFields []extraction.Field `json:"extractedFields"`
	// ProcessingTime is the completion time in Unix milliseconds.
	ProcessingTime int64 `json:"processingTime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleFieldAliases(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, formmap.Aliases())
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	up, err := s.validator.FromRequest(w, r)
	if err != nil {
		logger.Info("Upload rejected.", zap.Error(err))
		s.respondDocumentError(w, logger, err)
		return
	}
	logger.Info("File received.", zap.String("name", up.Name), zap.Int("bytes", len(up.Content)), zap.String("mime_type", up.MimeType))

	doc, err := s.backend.Process(r.Context(), up)
	if err != nil {
		s.respondDocumentError(w, logger, err)
		return
	}

	fields := doc.Fields()
	logger.Info("Document processed.", zap.Int("fields", len(fields)), zap.Int("chars", len(doc.Text)))
	s.respondJSON(w, http.StatusOK, processResponse{
		Success:         true,
		Text:            doc.Text,
		ExtractedFields: fields,
		ProcessingTime:  time.Now().UnixMilli(),
	})
}

func (s *Server) respondDocumentError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, body := documentError(err)
	if status >= http.StatusInternalServerError || status == http.StatusUnauthorized || status == http.StatusForbidden {
		logger.Error("Document processing failed.", zap.Int("status", status), zap.Error(err))
	} else {
		logger.Warn("Document processing failed.", zap.Int("status", status), zap.Error(err))
	}
	s.respondJSON(w, status, body)
}

// decodeFillRequest reads and checks a fill request. It returns a non-nil
// error response when the request must be rejected before any browser work.
func decodeFillRequest(data []byte) (automation.Request, *errorResponse) {
	var req automation.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, &errorResponse{Error: msgInvalidBody, Details: err.Error()}
	}
	if len(req.Fields) == 0 {
		return req, &errorResponse{Error: msgNoFields}
	}
	if req.FormURL != "" {
		if err := automation.ValidateURL(req.FormURL); err != nil {
			return req, &errorResponse{Error: msgInvalidURL}
		}
	}
	return req, nil
}

func (s *Server) handleFillForm(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("request_id", middleware.GetReqID(r.Context())))

	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFillRequestBytes)).Decode(&raw); err != nil {
		s.respondJSON(w, http.StatusBadRequest, errorResponse{Error: msgInvalidBody, Details: err.Error()})
		return
	}
	req, rejected := decodeFillRequest(raw)
	if rejected != nil {
		logger.Info("Fill request rejected.", zap.String("reason", rejected.Error))
		s.respondJSON(w, http.StatusBadRequest, rejected)
		return
	}

	result, err := s.filler.Run(r.Context(), req, nil)
	if err != nil {
		status, body := fillError(err)
		logger.Error("Form filling failed.", zap.Int("status", status), zap.Error(err))
		s.respondJSON(w, status, body)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// respondJSON writes data as a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Failed to write response.", zap.Error(err))
	}
}
