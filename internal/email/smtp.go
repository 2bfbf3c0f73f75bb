package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/logging"
)

// DefaultTimeout bounds one delivery attempt when ctx has no deadline
const DefaultTimeout = 30 * time.Second

// SMTPConfig holds outgoing mail settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Configured reports whether the settings are usable for delivery
func (c SMTPConfig) Configured() bool {
	from := strings.TrimSpace(c.From)
	return c.Host != "" && from != "" && c.Password != "" && !strings.EqualFold(from, DemoSender)
}

// SMTPSender sends mail through one SMTP relay, using STARTTLS when the
// server offers it and implicit TLS on port 465.
type SMTPSender struct {
	config SMTPConfig
	logger *logging.Logger
	now    func() time.Time
}

// NewSMTPSender creates an SMTP sender
func NewSMTPSender(config SMTPConfig, logger *logging.Logger) *SMTPSender {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.Username == "" {
		config.Username = config.From
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &SMTPSender{config: config, logger: logger, now: time.Now}
}

// Configured reports whether Send can attempt delivery
func (s *SMTPSender) Configured() bool {
	return s.config.Configured()
}

// Send delivers msg once. When settings are missing it fails without
// touching the network, with an error matching ErrNotConfigured.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if !s.Configured() {
		return notConfigured()
	}

	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidInput, err, "invalid recipient address")
	}

	body, err := BuildMessage(s.config.From, msg, s.now())
	if err != nil {
		return ferrors.Wrap(ferrors.KindEmailSendFailure, err, "failed to build message")
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	if err := s.deliver(ctx, rcpt.Address, body); err != nil {
		return ferrors.Wrap(ferrors.KindEmailSendFailure, err, "failed to send email")
	}

	s.logger.Infof("email with %q sent via %s", msg.AttachmentName, s.config.Host)
	return nil
}

func (s *SMTPSender) deliver(ctx context.Context, to string, body []byte) error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	tlsConfig := &tls.Config{ServerName: s.config.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if s.config.Port == 465 {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	// unblock the protocol exchange if ctx is cancelled mid-session
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok && s.config.Port != 465 {
		if err := c.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	} else {
		s.logger.Warnf("smtp server %s does not offer AUTH, sending unauthenticated", s.config.Host)
	}

	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish data: %w", err)
	}

	return c.Quit()
}
