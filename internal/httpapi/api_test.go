package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/pdf-form-filler/internal/dispatch"
	"github.com/a3tai/pdf-form-filler/internal/email"
	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/testutil"
)

const applicantData = "First Name: Jane\nLast Name: Doe\nEmail: jane@example.com\nState: NY\n"

type fakeSender struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []email.Message
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) Send(_ context.Context, msg email.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestAPI(t *testing.T, sender email.Sender, opts ...func(*Options)) http.Handler {
	t.Helper()
	o := Options{Dispatcher: dispatch.New(dispatch.Options{Sender: sender})}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o).Handler()
}

func multipartRequest(t *testing.T, path string, pdf []byte, filename, data string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if pdf != nil {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(pdf)
		require.NoError(t, err)
	}
	if data != "" {
		require.NoError(t, mw.WriteField("data", data))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, v any) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAPI_RootAndHealth(t *testing.T) {
	h := newTestAPI(t, &fakeSender{configured: true})

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"PDF Form Filler API"}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0,"email_enabled":true}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAPI_CORS(t *testing.T) {
	t.Run("wildcard", func(t *testing.T) {
		h := newTestAPI(t, nil)
		req := httptest.NewRequest(http.MethodOptions, "/api/fill-form", nil)
		req.Header.Set("Origin", "http://app.test")
		req.Header.Set("Access-Control-Request-Method", "POST")

		rec := serve(h, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
		assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "X-Session-ID")
	})

	t.Run("configured origins", func(t *testing.T) {
		h := newTestAPI(t, nil, func(o *Options) { o.CORSOrigins = []string{"http://app.test"} })

		req := httptest.NewRequest(http.MethodGet, "/api/", nil)
		req.Header.Set("Origin", "http://app.test")
		rec := serve(h, req)
		assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

		req = httptest.NewRequest(http.MethodGet, "/api/", nil)
		req.Header.Set("Origin", "http://evil.test")
		rec = serve(h, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestAPI_ParseData(t *testing.T) {
	h := newTestAPI(t, nil)

	rec := serve(h, jsonRequest(t, "/api/parse-data", parseDataRequest{RawData: "First Name: Jane\nTime: 10:30\njunk"}))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp parseDataResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]string{"first name": "Jane", "time": "10:30"}, resp.Data)
	assert.Equal(t, []string{"first name", "time"}, resp.Keys)

	rec = serve(h, jsonRequest(t, "/api/parse-data", parseDataRequest{RawData: "   "}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, rec).Kind)

	req := httptest.NewRequest(http.MethodPost, "/api/parse-data", strings.NewReader("{not json"))
	rec = serve(h, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_InspectAndPreview(t *testing.T) {
	h := newTestAPI(t, nil)

	rec := serve(h, multipartRequest(t, "/api/inspect-form", testutil.SampleForm(), "app.pdf", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var inspect struct {
		Filename string            `json:"filename"`
		Fields   []json.RawMessage `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inspect))
	assert.Equal(t, "app.pdf", inspect.Filename)
	assert.Len(t, inspect.Fields, 8)

	rec = serve(h, multipartRequest(t, "/api/preview-match", testutil.SampleForm(), "app.pdf", applicantData))
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Summary struct {
			Total  int `json:"total"`
			Filled int `json:"filled"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preview))
	assert.Equal(t, 8, preview.Summary.Total)
	assert.Equal(t, 4, preview.Summary.Filled)
}

func TestAPI_FillThenEmail(t *testing.T) {
	sender := &fakeSender{configured: true}
	h := newTestAPI(t, sender)

	rec := serve(h, multipartRequest(t, "/api/fill-form", testutil.SampleForm(), "application.pdf", applicantData))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=application_filled.pdf", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "4", rec.Header().Get("X-Fields-Filled"))
	assert.Equal(t, "8", rec.Header().Get("X-Fields-Total"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))

	sessionID := rec.Header().Get("X-Session-ID")
	require.Len(t, sessionID, 64)

	send := sendEmailRequest{RecipientEmail: "hr@example.com", SessionID: sessionID, Subject: "Application"}
	rec = serve(h, jsonRequest(t, "/api/send-email", send))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"message":"Email sent successfully"}`, rec.Body.String())
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Application", sender.sent[0].Subject)

	rec = serve(h, jsonRequest(t, "/api/send-email", send))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SESSION_NOT_FOUND", decodeError(t, rec).Kind)
}

func TestAPI_FillErrors(t *testing.T) {
	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		kind   string
	}{
		{
			name:   "missing file",
			req:    func(t *testing.T) *http.Request { return multipartRequest(t, "/api/fill-form", nil, "", applicantData) },
			status: http.StatusBadRequest,
			kind:   "INVALID_INPUT",
		},
		{
			name: "missing data",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/fill-form", testutil.SampleForm(), "a.pdf", "")
			},
			status: http.StatusBadRequest,
			kind:   "INVALID_INPUT",
		},
		{
			name: "not a pdf",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/fill-form", []byte("plain text"), "a.pdf", applicantData)
			},
			status: http.StatusBadRequest,
			kind:   "INVALID_INPUT",
		},
		{
			name: "no form",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/fill-form", testutil.PlainPDF(), "a.pdf", applicantData)
			},
			status: http.StatusUnprocessableEntity,
			kind:   "MALFORMED_DOCUMENT",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/fill-form", strings.NewReader("x"))
			},
			status: http.StatusBadRequest,
			kind:   "INVALID_INPUT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestAPI(t, nil)
			rec := serve(h, tt.req(t))
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.NotEmpty(t, resp.Detail)
		})
	}
}

func TestAPI_FillTooLarge(t *testing.T) {
	h := newTestAPI(t, nil, func(o *Options) { o.MaxUploadBytes = 100 })

	rec := serve(h, multipartRequest(t, "/api/fill-form", testutil.SampleForm(), "a.pdf", applicantData))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAPI_EmailErrors(t *testing.T) {
	fill := func(t *testing.T, h http.Handler) string {
		rec := serve(h, multipartRequest(t, "/api/fill-form", testutil.SampleForm(), "a.pdf", applicantData))
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Header().Get("X-Session-ID")
	}

	t.Run("not configured", func(t *testing.T) {
		h := newTestAPI(t, &fakeSender{configured: false})
		id := fill(t, h)
		rec := serve(h, jsonRequest(t, "/api/send-email", sendEmailRequest{RecipientEmail: "hr@example.com", SessionID: id}))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "EMAIL_NOT_CONFIGURED", decodeError(t, rec).Kind)
	})

	t.Run("send failure", func(t *testing.T) {
		h := newTestAPI(t, &fakeSender{configured: true, err: errors.New("relay refused")})
		id := fill(t, h)
		rec := serve(h, jsonRequest(t, "/api/send-email", sendEmailRequest{RecipientEmail: "hr@example.com", SessionID: id}))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, "EMAIL_SEND_FAILURE", decodeError(t, rec).Kind)
	})

	t.Run("bad recipient", func(t *testing.T) {
		h := newTestAPI(t, &fakeSender{configured: true})
		id := fill(t, h)
		rec := serve(h, jsonRequest(t, "/api/send-email", sendEmailRequest{RecipientEmail: "nobody", SessionID: id}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAPI_History(t *testing.T) {
	h := newTestAPI(t, nil)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/history?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind ferrors.Kind
		want int
	}{
		{ferrors.KindInvalidInput, http.StatusBadRequest},
		{ferrors.KindMalformedDocument, http.StatusUnprocessableEntity},
		{ferrors.KindFillError, http.StatusInternalServerError},
		{ferrors.KindSessionNotFound, http.StatusNotFound},
		{ferrors.KindEmailNotConfigured, http.StatusServiceUnavailable},
		{ferrors.KindEmailSendFailure, http.StatusBadGateway},
		{ferrors.KindUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(ferrors.New(tt.kind, "x")), tt.kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}
