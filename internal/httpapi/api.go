// Package httpapi serves the form filler over HTTP for the browser client.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a3tai/pdf-form-filler/internal/dispatch"
	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/history"
	"github.com/a3tai/pdf-form-filler/internal/logging"
	"github.com/a3tai/pdf-form-filler/internal/match"
)

// DefaultMaxUploadBytes limits a multipart request when Options leaves it unset
const DefaultMaxUploadBytes = 100 * 1024 * 1024

// multipartOverhead is allowed on top of the file limit for boundaries and
// the data field.
const multipartOverhead = 1024 * 1024

// exposedHeaders are readable by cross-origin clients
var exposedHeaders = []string{"Content-Disposition", "X-Session-ID", "X-Request-ID", "X-Fields-Filled", "X-Fields-Total"}

// Options configures an API
type Options struct {
	Dispatcher     *dispatch.Dispatcher
	Logger         *logging.Logger
	CORSOrigins    []string
	MaxUploadBytes int64
}

// API holds the HTTP handlers
type API struct {
	dispatcher     *dispatch.Dispatcher
	logger         *logging.Logger
	origins        []string
	maxUploadBytes int64
}

// New creates the API
func New(opts Options) *API {
	a := &API{
		dispatcher:     opts.Dispatcher,
		logger:         opts.Logger,
		origins:        opts.CORSOrigins,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	if a.dispatcher == nil {
		a.dispatcher = dispatch.New(dispatch.Options{Logger: opts.Logger})
	}
	if a.logger == nil {
		a.logger = logging.Nop()
	}
	if len(a.origins) == 0 {
		a.origins = []string{"*"}
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = DefaultMaxUploadBytes
	}
	return a
}

// Handler returns the routed handler with CORS applied
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/{$}", a.handleRoot)
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /api/history", a.handleHistory)
	mux.HandleFunc("POST /api/parse-data", a.handleParseData)
	mux.HandleFunc("POST /api/inspect-form", a.handleInspectForm)
	mux.HandleFunc("POST /api/preview-match", a.handlePreviewMatch)
	mux.HandleFunc("POST /api/fill-form", a.handleFillForm)
	mux.HandleFunc("POST /api/send-email", a.handleSendEmail)

	return a.cors(mux)
}

// NewServer wraps handler in an http.Server with conservative timeouts.
// The write timeout leaves room for a fill of a large document.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := a.allowOrigin(origin); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))
			if allowed != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			} else {
				h.Set("Access-Control-Allow-Headers", "Content-Type")
			}
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or
// "" when the origin is not allowed.
func (a *API) allowOrigin(origin string) string {
	for _, o := range a.origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func (a *API) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "PDF Form Filler API"})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		Sessions:     a.dispatcher.Store().Len(),
		EmailEnabled: a.dispatcher.EmailConfigured(),
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			a.writeError(w, ferrors.New(ferrors.KindInvalidInput, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	events, err := a.dispatcher.Recent(r.Context(), limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	resp := historyResponse{Events: events}
	if resp.Events == nil {
		resp.Events = []history.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleParseData(w http.ResponseWriter, r *http.Request) {
	var req parseDataRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	rec, err := a.dispatcher.ParseData(req.RawData)
	if err != nil {
		a.writeError(w, err)
		return
	}

	keys := rec.Keys()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, parseDataResponse{Success: true, Data: rec.Map(), Keys: keys})
}

func (a *API) handleInspectForm(w http.ResponseWriter, r *http.Request) {
	upload, err := a.readUpload(w, r, false)
	if err != nil {
		a.writeError(w, err)
		return
	}

	fields, err := a.dispatcher.Inspect(r.Context(), upload.pdf)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inspectResponse{Filename: upload.filename, Fields: fields})
}

func (a *API) handlePreviewMatch(w http.ResponseWriter, r *http.Request) {
	upload, err := a.readUpload(w, r, true)
	if err != nil {
		a.writeError(w, err)
		return
	}

	bindings, err := a.dispatcher.Preview(r.Context(), upload.pdf, upload.data)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Bindings: bindings, Summary: match.Summarize(bindings)})
}

func (a *API) handleFillForm(w http.ResponseWriter, r *http.Request) {
	upload, err := a.readUpload(w, r, true)
	if err != nil {
		a.writeError(w, err)
		return
	}

	result, err := a.dispatcher.HandleFill(r.Context(), dispatch.FillRequest{
		PDF:      upload.pdf,
		Text:     upload.data,
		Filename: upload.filename,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	h.Set("Content-Length", strconv.Itoa(len(result.Bytes)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Session-ID", result.SessionID)
	h.Set("X-Request-ID", result.RequestID)
	h.Set("X-Fields-Filled", strconv.Itoa(result.Summary.Filled))
	h.Set("X-Fields-Total", strconv.Itoa(result.Summary.Total))
	h.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Bytes); err != nil {
		a.logger.Warnf("failed to write filled document: %v", err)
	}
}

func (a *API) handleSendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		a.writeError(w, err)
		return
	}

	err := a.dispatcher.HandleEmail(r.Context(), dispatch.EmailRequest{
		SessionID: req.SessionID,
		To:        req.RecipientEmail,
		Subject:   req.Subject,
		Body:      req.Message,
	})
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sendEmailResponse{Success: true, Message: "Email sent successfully"})
}

type uploadForm struct {
	pdf      []byte
	filename string
	data     string
}

// readUpload parses a multipart request carrying "file" and, when withData
// is set, the "data" text field.
func (a *API) readUpload(w http.ResponseWriter, r *http.Request, withData bool) (*uploadForm, error) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errTooLarge
		}
		return nil, ferrors.Wrap(ferrors.KindInvalidInput, err, "invalid multipart form")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, ferrors.New(ferrors.KindInvalidInput, "file is required")
	}
	defer file.Close()

	if header.Size > a.maxUploadBytes {
		return nil, errTooLarge
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindInvalidInput, err, "failed to read uploaded file")
	}

	u := &uploadForm{pdf: data, filename: header.Filename}
	if withData {
		u.data = r.FormValue("data")
		if strings.TrimSpace(u.data) == "" {
			return nil, ferrors.New(ferrors.KindInvalidInput, "no personal data provided")
		}
	}
	return u, nil
}

// errTooLarge maps to 413 rather than the generic 400 of InvalidInput
var errTooLarge = ferrors.New(ferrors.KindInvalidInput, "file too large").WithContext("upload")

func (a *API) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, multipartOverhead)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return ferrors.Wrap(ferrors.KindInvalidInput, err, "invalid JSON body")
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if err == errTooLarge {
		status = http.StatusRequestEntityTooLarge
	}

	kind := ferrors.KindOf(err)
	detail := err.Error()
	if e, ok := ferrors.As(err); ok {
		detail = e.Detail()
	}
	if status >= http.StatusInternalServerError {
		a.logger.Errorf("request failed: %v", err)
	} else {
		a.logger.Debugf("request rejected: %v", err)
	}

	writeJSON(w, status, errorResponse{Detail: detail, Kind: kind.String()})
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch ferrors.KindOf(err) {
	case ferrors.KindInvalidInput:
		return http.StatusBadRequest
	case ferrors.KindMalformedDocument:
		return http.StatusUnprocessableEntity
	case ferrors.KindSessionNotFound:
		return http.StatusNotFound
	case ferrors.KindEmailNotConfigured:
		return http.StatusServiceUnavailable
	case ferrors.KindEmailSendFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
