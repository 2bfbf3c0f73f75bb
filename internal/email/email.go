// Package email delivers filled documents as mail attachments.
package email

import (
	"context"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
)

// DemoSender is the placeholder address shipped in sample configuration;
// a mailer using it counts as unconfigured.
const DemoSender = "demo@example.com"

// ErrNotConfigured matches, via errors.Is, the error Send returns when no
// usable mail settings exist. It is a sentinel only; never return or modify it.
var ErrNotConfigured = ferrors.ErrEmailNotConfigured

// notConfigured returns a fresh error so callers may attach context to it
func notConfigured() error {
	return ferrors.New(ferrors.KindEmailNotConfigured, "email delivery is not configured")
}

// Message is one outgoing mail with a single attachment
type Message struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// Sender delivers messages. Implementations must honour ctx cancellation
// and must not retry.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
