// Package dispatch orchestrates the fill and email paths over the parser,
// catalog, matcher, filler, session store and mailer.
package dispatch

import (
	"context"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/pdf-form-filler/internal/email"
	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/history"
	"github.com/a3tai/pdf-form-filler/internal/logging"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/pdf/fill"
	"github.com/a3tai/pdf-form-filler/internal/record"
	"github.com/a3tai/pdf-form-filler/internal/session"
)

// Email defaults used when a request leaves them empty
const (
	DefaultSubject = "Completed Form"
	DefaultBody    = "Please find the completed form attached."
)

// DefaultDateFormat renders today's date for the automatic date entry
const DefaultDateFormat = "01/02/2006"

// dateKey is the label the automatic date is bound under
const dateKey = "date"

// Options wires a Dispatcher. Nil components get working defaults except
// Store, which is created with default settings.
type Options struct {
	Validator *pdf.Validator
	Extractor *extraction.PDFCPUFormExtractor
	Matcher   *match.Matcher
	Filler    *fill.Filler
	Store     *session.Store
	Sender    email.Sender
	History   history.Recorder
	Logger    *logging.Logger

	// AutoDate fills a field labelled "date" with today's date when the data
	// has no date entry
	AutoDate     bool
	DateFormat   string
	EmailTimeout time.Duration
	Now          func() time.Time
}

// FillRequest is the input of the fill path
type FillRequest struct {
	PDF      []byte
	Text     string
	Filename string
}

// FillResult is the output of a successful fill
type FillResult struct {
	RequestID string          `json:"request_id"`
	SessionID string          `json:"session_id"`
	Filename  string          `json:"filename"`
	Pages     int             `json:"pages"`
	Bindings  []match.Binding `json:"bindings"`
	Summary   match.Summary   `json:"summary"`
	Bytes     []byte          `json:"-"`
}

// EmailRequest is the input of the email path
type EmailRequest struct {
	SessionID string
	To        string
	Subject   string
	Body      string
}

// Dispatcher runs requests; it holds no per-request state and is safe for
// concurrent use.
type Dispatcher struct {
	validator    *pdf.Validator
	extractor    *extraction.PDFCPUFormExtractor
	matcher      *match.Matcher
	filler       *fill.Filler
	store        *session.Store
	sender       email.Sender
	history      history.Recorder
	logger       *logging.Logger
	autoDate     bool
	dateFormat   string
	emailTimeout time.Duration
	now          func() time.Time
}

// New creates a dispatcher
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		validator:    opts.Validator,
		extractor:    opts.Extractor,
		matcher:      opts.Matcher,
		filler:       opts.Filler,
		store:        opts.Store,
		sender:       opts.Sender,
		history:      opts.History,
		logger:       opts.Logger,
		autoDate:     opts.AutoDate,
		dateFormat:   opts.DateFormat,
		emailTimeout: opts.EmailTimeout,
		now:          opts.Now,
	}

	if d.logger == nil {
		d.logger = logging.Nop()
	}
	if d.validator == nil {
		d.validator = pdf.NewValidator(100 * 1024 * 1024)
	}
	if d.extractor == nil {
		d.extractor = extraction.NewPDFCPUFormExtractor(d.logger)
	}
	if d.matcher == nil {
		d.matcher = match.NewMatcher(nil)
	}
	if d.filler == nil {
		d.filler = fill.NewFiller(d.logger)
	}
	if d.store == nil {
		d.store = session.NewStore(session.Config{Logger: d.logger})
	}
	if d.history == nil {
		d.history = history.Nop{}
	}
	if d.dateFormat == "" {
		d.dateFormat = DefaultDateFormat
	}
	if d.emailTimeout <= 0 {
		d.emailTimeout = email.DefaultTimeout
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d
}

// Store returns the session store backing the email path
func (d *Dispatcher) Store() *session.Store {
	return d.store
}

// EmailConfigured reports whether a sender that can deliver is wired
func (d *Dispatcher) EmailConfigured() bool {
	if d.sender == nil {
		return false
	}
	if c, ok := d.sender.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Recent returns the newest audit events, newest first
func (d *Dispatcher) Recent(ctx context.Context, limit int) ([]history.Event, error) {
	return d.history.Recent(ctx, limit)
}

// ParseData parses personal data text without touching any document
func (d *Dispatcher) ParseData(text string) (*record.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ferrors.New(ferrors.KindInvalidInput, "no personal data provided")
	}
	return record.Parse(text), nil
}

// Inspect validates a document and lists its form fields
func (d *Dispatcher) Inspect(ctx context.Context, pdfBytes []byte) ([]extraction.FormField, error) {
	if _, err := d.validate(pdfBytes); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}
	return d.extractor.ExtractFormsFromBytes(pdfBytes)
}

// Preview runs parse, catalog and match without writing a document
func (d *Dispatcher) Preview(ctx context.Context, pdfBytes []byte, text string) ([]match.Binding, error) {
	rec, err := d.ParseData(text)
	if err != nil {
		return nil, err
	}

	fields, err := d.Inspect(ctx, pdfBytes)
	if err != nil {
		return nil, err
	}

	return d.bind(fields, rec), nil
}

// HandleFill runs the fill path. No session is stored unless every stage
// succeeds.
func (d *Dispatcher) HandleFill(ctx context.Context, req FillRequest) (*FillResult, error) {
	requestID := uuid.NewString()
	log := d.logger.With("req=" + requestID[:8])

	result, err := d.fill(ctx, req, requestID, log)
	if err != nil {
		log.Warnf("fill failed: %v", err)
		d.record(ctx, log, history.Event{
			RequestID: requestID,
			Kind:      history.KindFill,
			Filename:  req.Filename,
			Outcome:   ferrors.KindOf(err).String(),
		})
		return nil, err
	}

	log.Infof("filled %d of %d fields (exact %d, synonym %d, fuzzy %d)",
		result.Summary.Filled, result.Summary.Total,
		result.Summary.Exact, result.Summary.Synonym, result.Summary.Fuzzy)
	d.record(ctx, log, history.Event{
		RequestID:     requestID,
		Kind:          history.KindFill,
		SessionPrefix: result.SessionID,
		Filename:      result.Filename,
		FieldsTotal:   result.Summary.Total,
		FieldsFilled:  result.Summary.Filled,
		Outcome:       "ok",
	})
	return result, nil
}

func (d *Dispatcher) fill(ctx context.Context, req FillRequest, requestID string, log *logging.Logger) (*FillResult, error) {
	rec, err := d.ParseData(req.Text)
	if err != nil {
		return nil, err
	}
	log.Debugf("parsed %d entries", rec.Len())

	pages, err := d.validate(req.PDF)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	fields, err := d.extractor.ExtractFormsFromBytes(req.PDF)
	if err != nil {
		return nil, err
	}
	log.Debugf("catalog lists %d fields", len(fields))

	bindings := d.bind(fields, rec)

	filled, err := d.filler.Fill(req.PDF, bindings)
	if err != nil {
		if _, ok := ferrors.As(err); !ok {
			err = ferrors.Wrap(ferrors.KindFillError, err, "failed to fill form")
		}
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	filename := d.outputName(req.Filename)
	id, err := d.store.Put(session.Artifact{
		Bytes:          filled,
		Filename:       filename,
		SourceFilename: req.Filename,
	})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindFillError, err, "failed to store filled document")
	}

	return &FillResult{
		RequestID: requestID,
		SessionID: id,
		Filename:  filename,
		Pages:     pages,
		Bindings:  bindings,
		Summary:   match.Summarize(bindings),
		Bytes:     filled,
	}, nil
}

// HandleEmail sends the artifact of a session. The session is consumed only
// when delivery succeeds; on any failure it stays available for a retry.
func (d *Dispatcher) HandleEmail(ctx context.Context, req EmailRequest) error {
	requestID := uuid.NewString()
	log := d.logger.With("req=" + requestID[:8])

	err := d.email(ctx, req, log)

	outcome := "ok"
	if err != nil {
		outcome = ferrors.KindOf(err).String()
		log.Warnf("email failed: %v", err)
	}
	d.record(ctx, log, history.Event{
		RequestID:     requestID,
		Kind:          history.KindEmail,
		SessionPrefix: req.SessionID,
		Outcome:       outcome,
	})
	return err
}

func (d *Dispatcher) email(ctx context.Context, req EmailRequest, log *logging.Logger) error {
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		return ferrors.New(ferrors.KindInvalidInput, "session id is required")
	}

	to, err := mail.ParseAddress(strings.TrimSpace(req.To))
	if err != nil {
		return ferrors.Wrap(ferrors.KindInvalidInput, err, "invalid recipient email address")
	}

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = DefaultSubject
	}
	body := req.Body
	if strings.TrimSpace(body) == "" {
		body = DefaultBody
	}

	artifact, err := d.store.Acquire(id)
	if err != nil {
		return err
	}

	if !d.EmailConfigured() {
		d.store.Release(id)
		return ferrors.New(ferrors.KindEmailNotConfigured, "email delivery is not configured")
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.emailTimeout)
	defer cancel()

	err = d.sender.Send(sendCtx, email.Message{
		To:             to.String(),
		Subject:        subject,
		Body:           body,
		Attachment:     artifact.Bytes,
		AttachmentName: artifact.Filename,
	})
	if err != nil {
		d.store.Release(id)
		switch ferrors.KindOf(err) {
		case ferrors.KindEmailNotConfigured, ferrors.KindEmailSendFailure, ferrors.KindInvalidInput:
			return err
		default:
			return ferrors.Wrap(ferrors.KindEmailSendFailure, err, "failed to send email")
		}
	}

	d.store.Delete(id)
	log.Infof("delivered %s", artifact.Filename)
	return nil
}

// bind matches fields to the record. With AutoDate, today's date goes to a
// field labelled "date" (or a synonym) that the data left empty; it never
// competes with the data's own keys.
func (d *Dispatcher) bind(fields []extraction.FormField, rec *record.Record) []match.Binding {
	bindings := d.matcher.Match(fields, rec)
	if !d.autoDate {
		return bindings
	}
	if _, ok := rec.Get(dateKey); ok {
		return bindings
	}
	return d.matcher.Supplement(bindings, dateKey, d.now().Format(d.dateFormat))
}

func (d *Dispatcher) validate(pdfBytes []byte) (int, error) {
	if len(pdfBytes) == 0 {
		return 0, ferrors.New(ferrors.KindInvalidInput, "no PDF provided")
	}
	return d.validator.ValidateBytes(pdfBytes)
}

// outputName derives the filled document's filename
func (d *Dispatcher) outputName(source string) string {
	base := filepath.Base(strings.ReplaceAll(source, "\\", "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if source == "" || stem == "" || stem == "." || stem == "/" {
		return "filled_form_" + d.now().Format("20060102_150405") + ".pdf"
	}
	return stem + "_filled.pdf"
}

func (d *Dispatcher) record(ctx context.Context, log *logging.Logger, e history.Event) {
	e.At = d.now()
	if err := d.history.Record(context.WithoutCancel(ctx), e); err != nil {
		log.Warnf("failed to record history: %v", err)
	}
}

func cancelled(err error) error {
	return ferrors.Wrap(ferrors.KindFillError, err, "request cancelled")
}
