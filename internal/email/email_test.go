package email

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
)

func TestSMTPConfig_Configured(t *testing.T) {
	tests := []struct {
		name   string
		config SMTPConfig
		want   bool
	}{
		{name: "complete", config: SMTPConfig{Host: "smtp.example.org", From: "forms@example.org", Password: "secret"}, want: true},
		{name: "no host", config: SMTPConfig{From: "forms@example.org", Password: "secret"}},
		{name: "no sender", config: SMTPConfig{Host: "smtp.example.org", Password: "secret"}},
		{name: "no password", config: SMTPConfig{Host: "smtp.example.org", From: "forms@example.org"}},
		{name: "demo sender", config: SMTPConfig{Host: "smtp.example.org", From: "Demo@Example.com", Password: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.Configured())
		})
	}
}

func TestSMTPSender_NotConfigured(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{From: DemoSender, Password: "x", Host: "localhost"}, nil)

	err := sender.Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ferrors.ErrEmailNotConfigured)
	assert.ErrorIs(t, err, ErrNotConfigured)

	// each failure is its own value; decorating one leaves the next intact
	first, ok := ferrors.As(err)
	require.True(t, ok)
	first.WithContext("smtp settings missing")

	again, ok := ferrors.As(sender.Send(context.Background(), Message{To: "a@example.com"}))
	require.True(t, ok)
	assert.Empty(t, again.Context)
	assert.Equal(t, "email delivery is not configured", again.Message)
	assert.Empty(t, ErrNotConfigured.Context)
}

func TestSMTPSender_InvalidRecipient(t *testing.T) {
	sender := NewSMTPSender(SMTPConfig{Host: "localhost", From: "forms@example.org", Password: "x"}, nil)

	err := sender.Send(context.Background(), Message{To: "not an address"})
	assert.Equal(t, ferrors.KindInvalidInput, ferrors.KindOf(err))
}

func TestBuildMessage(t *testing.T) {
	attachment := bytes.Repeat([]byte("%PDF-1.7 data "), 20)
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	raw, err := BuildMessage("forms@example.org", Message{
		To:             "jane@example.com",
		Subject:        "Formulaire complété",
		Body:           "Please find the completed form attached.",
		Attachment:     attachment,
		AttachmentName: "application_filled.pdf",
	}, now)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "forms@example.org", msg.Header.Get("From"))
	assert.Equal(t, "jane@example.com", msg.Header.Get("To"))
	assert.True(t, strings.HasSuffix(msg.Header.Get("Message-ID"), "@example.org>"))

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Formulaire complété", subject)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	mr := multipart.NewReader(msg.Body, params["boundary"])

	body, err := mr.NextPart()
	require.NoError(t, err)
	text, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "Please find the completed form attached.", string(text))

	att, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "application_filled.pdf", att.FileName())
	assert.Equal(t, "base64", att.Header.Get("Content-Transfer-Encoding"))

	encoded, err := io.ReadAll(att)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(encoded)), "\r\n") {
		assert.LessOrEqual(t, len(line), base64LineLength)
	}

	_, err = mr.NextPart()
	assert.Equal(t, io.EOF, err)
}

// fakeSMTP is a minimal SMTP server that records one transaction
type fakeSMTP struct {
	ln       net.Listener
	mu       sync.Mutex
	from     string
	rcpt     string
	data     string
	authed   bool
	rejectTo bool
}

func newFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTP{ln: ln}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeSMTP) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTP) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 fake ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])

		switch verb {
		case "EHLO", "HELO":
			reply("250-fake")
			reply("250 AUTH PLAIN")
		case "AUTH":
			s.mu.Lock()
			s.authed = true
			s.mu.Unlock()
			reply("235 2.7.0 Authentication successful")
		case "MAIL":
			s.mu.Lock()
			s.from = line
			s.mu.Unlock()
			reply("250 OK")
		case "RCPT":
			s.mu.Lock()
			s.rcpt = line
			reject := s.rejectTo
			s.mu.Unlock()
			if reject {
				reply("550 mailbox unavailable")
				continue
			}
			reply("250 OK")
		case "DATA":
			reply("354 go ahead")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.mu.Lock()
			s.data = data.String()
			s.mu.Unlock()
			reply("250 queued")
		case "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSMTPSender_Send(t *testing.T) {
	server := newFakeSMTP(t)

	sender := NewSMTPSender(SMTPConfig{
		Host:     "127.0.0.1",
		Port:     server.port(),
		From:     "forms@example.org",
		Password: "secret",
		Timeout:  5 * time.Second,
	}, nil)

	err := sender.Send(context.Background(), Message{
		To:             "Jane Doe <jane@example.com>",
		Subject:        "Completed Form",
		Body:           "Please find the completed form attached.",
		Attachment:     []byte("%PDF-1.7"),
		AttachmentName: "form_filled.pdf",
	})
	require.NoError(t, err)

	server.mu.Lock()
	defer server.mu.Unlock()
	assert.True(t, server.authed)
	assert.Contains(t, server.from, "forms@example.org")
	assert.Contains(t, server.rcpt, "<jane@example.com>")
	assert.Contains(t, server.data, "Subject: Completed Form")
	assert.Contains(t, server.data, "filename=form_filled.pdf")
}

func TestSMTPSender_SendFailure(t *testing.T) {
	server := newFakeSMTP(t)
	server.mu.Lock()
	server.rejectTo = true
	server.mu.Unlock()

	sender := NewSMTPSender(SMTPConfig{
		Host: "127.0.0.1", Port: server.port(), From: "forms@example.org", Password: "secret",
	}, nil)

	err := sender.Send(context.Background(), Message{To: "jane@example.com"})
	require.Error(t, err)
	assert.Equal(t, ferrors.KindEmailSendFailure, ferrors.KindOf(err))
}

func TestSMTPSender_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(SMTPConfig{
		Host: "127.0.0.1", Port: port, From: "forms@example.org", Password: "secret",
	}, nil)

	err = sender.Send(context.Background(), Message{To: "jane@example.com"})
	require.Error(t, err)
	assert.Equal(t, ferrors.KindEmailSendFailure, ferrors.KindOf(err))
	assert.NotContains(t, err.Error(), "secret")
}
