package evidence

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nao1215/cookieaudit/internal/model"
)

// Route paths of the sink.
const (
	PathEvidence = "/v1/evidence"
	PathFinalize = "/v1/finalize"
	PathStatus   = "/v1/status"
)

// maxRequestBody caps the size of a decoded request body.
const maxRequestBody = 1 << 20

// Error codes of the envelope.
const (
	CodeMalformed     = "malformed_request"
	CodeMissingParams = "missing_params"
	CodeInvalidToken  = "invalid_token"
	CodeExpiredToken  = "expired_token"
	CodeInternal      = "internal_error"
)

// EvidenceRequest is the body of POST /v1/evidence.
type EvidenceRequest struct {
	ScanID         string                    `json:"scanId"`
	Token          string                    `json:"token"`
	Cookies        []model.CookieObservation `json:"cookies"`
	LocalStorage   []string                  `json:"localStorage"`
	SessionStorage []string                  `json:"sessionStorage"`
}

// Evidence converts the request to page evidence.
func (r EvidenceRequest) Evidence() model.PageEvidence {
	return model.PageEvidence{
		ScanID:             r.ScanID,
		Cookies:            r.Cookies,
		LocalStorageKeys:   r.LocalStorage,
		SessionStorageKeys: r.SessionStorage,
	}
}

// EvidenceResponse is the data of a successful evidence submission.
type EvidenceResponse struct {
	Status string `json:"status"`
	Page   string `json:"page"`
}

// FinalizeRequest is the body of POST /v1/finalize.
type FinalizeRequest struct {
	Pages []model.PageDescriptor `json:"pages"`
	Token string                 `json:"token"`
}

// APIError is the error object of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Response is the envelope of every sink response.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Handler serves the sink over HTTP.
type Handler struct {
	svc    *Service
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler creates the HTTP handler of svc.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{svc: svc, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST "+PathEvidence, h.handleEvidence)
	h.mux.HandleFunc("POST "+PathFinalize, h.handleFinalize)
	h.mux.HandleFunc("GET "+PathStatus, h.handleStatus)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleEvidence(w http.ResponseWriter, r *http.Request) {
	var req EvidenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.svc.Submit(r.Context(), req.Token, req.Evidence()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, EvidenceResponse{Status: "ok", Page: req.ScanID})
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var req FinalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	live, err := h.svc.Finalize(r.Context(), req.Pages, req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, live)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Scan-Token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	st, err := h.svc.Status(r.Context(), token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, st)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		h.logger.Debug("dropping malformed request", "path", r.URL.Path, "error", err)
		h.writeError(w, ErrMalformedRequest)
		return false
	}
	return true
}

// statusFor maps an error to its HTTP status and envelope code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest, CodeMalformed
	case errors.Is(err, ErrMissingParams):
		return http.StatusBadRequest, CodeMissingParams
	case errors.Is(err, ErrExpiredToken):
		return http.StatusForbidden, CodeExpiredToken
	case errors.Is(err, ErrInvalidToken):
		return http.StatusForbidden, CodeInvalidToken
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	h.write(w, status, Response{Error: &APIError{Code: code, Message: msg}})
}

func (h *Handler) writeData(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, status, Response{Success: true, Data: data})
}

func (h *Handler) write(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}
