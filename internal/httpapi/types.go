package httpapi

import (
	"github.com/a3tai/pdf-form-filler/internal/history"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
)

type errorResponse struct {
	Detail string `json:"detail"`
	Kind   string `json:"kind"`
}

type healthResponse struct {
	Status       string `json:"status"`
	Sessions     int    `json:"sessions"`
	EmailEnabled bool   `json:"email_enabled"`
}

type historyResponse struct {
	Events []history.Event `json:"events"`
}

type parseDataRequest struct {
	RawData string `json:"raw_data"`
}

type parseDataResponse struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data"`
	Keys    []string          `json:"keys"`
}

type inspectResponse struct {
	Filename string                 `json:"filename,omitempty"`
	Fields   []extraction.FormField `json:"fields"`
}

type previewResponse struct {
	Bindings []match.Binding `json:"bindings"`
	Summary  match.Summary   `json:"summary"`
}

type sendEmailRequest struct {
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	SessionID      string `json:"session_id"`
}

type sendEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
