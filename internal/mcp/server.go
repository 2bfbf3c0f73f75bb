package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/a3tai/pdf-form-filler/internal/config"
	"github.com/a3tai/pdf-form-filler/internal/descriptions"
	"github.com/a3tai/pdf-form-filler/internal/dispatch"
	ferrors "github.com/a3tai/pdf-form-filler/internal/errors"
	"github.com/a3tai/pdf-form-filler/internal/logging"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/pdf/extraction"
	"github.com/a3tai/pdf-form-filler/internal/pdf/security"
)

// outputPerm is the mode of filled documents written by form_fill
const outputPerm = 0o644

// Server represents the MCP server instance
type Server struct {
	config     *config.Config
	dispatcher *dispatch.Dispatcher
	paths      *security.PathValidator
	validator  *pdf.Validator
	logger     *logging.Logger
	mcpServer  *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, dispatcher *dispatch.Dispatcher, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if logger == nil {
		logger = logging.Nop()
	}

	paths, err := security.NewPathValidator(cfg.PDFDirectory)
	if err != nil {
		return nil, fmt.Errorf("invalid PDF directory: %w", err)
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:     cfg,
		dispatcher: dispatcher,
		paths:      paths,
		validator:  pdf.NewValidator(cfg.MaxFileSize),
		logger:     logger,
		mcpServer:  mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool(
		"form_parse_data",
		mcp.WithDescription(descriptions.GetToolDescription("form_parse_data")),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Personal data, one 'Label: Value' entry per line"),
		),
	), s.handleFormParseData)

	s.mcpServer.AddTool(mcp.NewTool(
		"form_list_fields",
		mcp.WithDescription(descriptions.GetToolDescription("form_list_fields")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF form, absolute or relative to the configured directory"),
		),
	), s.handleFormListFields)

	s.mcpServer.AddTool(mcp.NewTool(
		"form_preview_match",
		mcp.WithDescription(descriptions.GetToolDescription("form_preview_match")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF form"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Personal data, one 'Label: Value' entry per line"),
		),
	), s.handleFormPreviewMatch)

	s.mcpServer.AddTool(mcp.NewTool(
		"form_fill",
		mcp.WithDescription(descriptions.GetToolDescription("form_fill")),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the PDF form"),
		),
		mcp.WithString("data",
			mcp.Required(),
			mcp.Description("Personal data, one 'Label: Value' entry per line"),
		),
		mcp.WithString("output",
			mcp.Description("Where to write the filled PDF (defaults to <name>_filled.pdf next to the source)"),
		),
	), s.handleFormFill)

	s.mcpServer.AddTool(mcp.NewTool(
		"form_send_email",
		mcp.WithDescription(descriptions.GetToolDescription("form_send_email")),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by form_fill"),
		),
		mcp.WithString("recipient",
			mcp.Required(),
			mcp.Description("Recipient email address"),
		),
		mcp.WithString("subject",
			mcp.Description("Email subject (default: "+dispatch.DefaultSubject+")"),
		),
		mcp.WithString("message",
			mcp.Description("Email body text"),
		),
	), s.handleFormSendEmail)

	s.mcpServer.AddTool(mcp.NewTool(
		"form_server_info",
		mcp.WithDescription(descriptions.GetToolDescription("form_server_info")),
	), s.handleFormServerInfo)
}

func (s *Server) handleFormParseData(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	rec, err := s.dispatcher.ParseData(data)
	if err != nil {
		return toolError(err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Parsed %d entries:\n", rec.Len())
	for _, e := range rec.Entries() {
		value := e.Value
		if value == "" {
			value = "(blank)"
		}
		fmt.Fprintf(&b, "  %s: %s\n", e.Key, value)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleFormListFields(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resolved, data, err := s.readPDF(path)
	if err != nil {
		return toolError(err), nil
	}

	fields, err := s.dispatcher.Inspect(ctx, data)
	if err != nil {
		return toolError(err), nil
	}

	return mcp.NewToolResultText(formatFields(resolved, fields)), nil
}

func (s *Server) handleFormPreviewMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	_, data, err := s.readPDF(path)
	if err != nil {
		return toolError(err), nil
	}

	bindings, err := s.dispatcher.Preview(ctx, data, text)
	if err != nil {
		return toolError(err), nil
	}

	return mcp.NewToolResultText("Match preview (nothing written)\n\n" + formatReport(bindings)), nil
}

func (s *Server) handleFormFill(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	source, data, err := s.readPDF(path)
	if err != nil {
		return toolError(err), nil
	}

	result, err := s.dispatcher.HandleFill(ctx, dispatch.FillRequest{
		PDF:      data,
		Text:     text,
		Filename: filepath.Base(source),
	})
	if err != nil {
		return toolError(err), nil
	}

	output := optionalString(request, "output")
	if output == "" {
		output = filepath.Join(filepath.Dir(source), result.Filename)
	}
	target, err := s.paths.ResolveOutput(output)
	if err == nil && target == source {
		err = fmt.Errorf("output would overwrite the source document")
	}
	if err == nil {
		err = os.WriteFile(target, result.Bytes, outputPerm)
	}
	if err != nil {
		// the session is useless if the caller never saw the document
		s.dispatcher.Store().Delete(result.SessionID)
		return mcp.NewToolResultError(fmt.Sprintf("failed to write filled PDF: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Filled %d of %d fields\n", result.Summary.Filled, result.Summary.Total)
	fmt.Fprintf(&b, "Output: %s (%d bytes)\n", target, len(result.Bytes))
	fmt.Fprintf(&b, "Session ID: %s\n", result.SessionID)
	if s.dispatcher.EmailConfigured() {
		fmt.Fprintf(&b, "Use form_send_email with this session id within %s to email the document.\n", s.config.SessionTTL)
	}
	b.WriteString("\n")
	b.WriteString(formatReport(result.Bindings))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleFormSendEmail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	recipient, err := request.RequireString("recipient")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	err = s.dispatcher.HandleEmail(ctx, dispatch.EmailRequest{
		SessionID: sessionID,
		To:        recipient,
		Subject:   optionalString(request, "subject"),
		Body:      optionalString(request, "message"),
	})
	if err != nil {
		return toolError(err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Email sent to %s", recipient)), nil
}

func (s *Server) handleFormServerInfo(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.formatServerInfo()), nil
}

func optionalString(request mcp.CallToolRequest, key string) string {
	if v, ok := request.GetArguments()[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// readPDF confines path to the configured directory and loads the document
func (s *Server) readPDF(path string) (string, []byte, error) {
	resolved, err := s.paths.Resolve(path)
	if err != nil {
		return "", nil, ferrors.Wrap(ferrors.KindInvalidInput, err, "invalid path")
	}
	data, err := s.validator.ReadFile(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, data, nil
}

// toolError renders err for the model, prefixed with its kind when known
func toolError(err error) *mcp.CallToolResult {
	if e, ok := ferrors.As(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", e.Kind, e.Detail()))
	}
	return mcp.NewToolResultError(err.Error())
}

func formatFields(path string, fields []extraction.FormField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Form fields in %s: %d\n\n", filepath.Base(path), len(fields))

	for i, f := range fields {
		kind := string(f.Kind)
		if f.Radio {
			kind = "radio"
		}
		fmt.Fprintf(&b, "%d. %s [%s]", i+1, f.Name, kind)
		if f.AltName != "" {
			fmt.Fprintf(&b, " %q", f.AltName)
		}
		var flags []string
		if f.Required {
			flags = append(flags, "required")
		}
		if f.ReadOnly {
			flags = append(flags, "read-only")
		}
		if f.MaxLength > 0 {
			flags = append(flags, fmt.Sprintf("max %d", f.MaxLength))
		}
		if len(flags) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(flags, ", "))
		}
		b.WriteString("\n")
		if len(f.Choices) > 0 {
			fmt.Fprintf(&b, "   options: %s\n", strings.Join(f.Choices, ", "))
		}
		if f.Value != "" && f.Value != "Off" {
			fmt.Fprintf(&b, "   current value: %s\n", f.Value)
		}
	}
	return b.String()
}

func formatReport(bindings []match.Binding) string {
	summary := match.Summarize(bindings)

	var b strings.Builder
	fmt.Fprintf(&b, "Summary: %d exact, %d synonym, %d fuzzy, %d unmatched\n\n",
		summary.Exact, summary.Synonym, summary.Fuzzy, summary.Unmatched)

	for _, bd := range bindings {
		if bd.HasValue() {
			value := bd.Value
			if value == "" {
				value = "(blank)"
			}
			fmt.Fprintf(&b, "✓ %s = %s  [%s from %q]", bd.Field.Name, value, bd.Confidence, bd.MatchedKey)
			if bd.Reason != "" {
				fmt.Fprintf(&b, "  (%s)", bd.Reason)
			}
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "✗ %s  (%s)\n", bd.Field.Name, bd.Reason)
	}
	return b.String()
}

func (s *Server) formatServerInfo() string {
	var b strings.Builder

	fmt.Fprintf(&b, "📋 %s v%s\n\n", s.config.ServerName, s.config.Version)
	fmt.Fprintf(&b, "📁 Directory: %s\n", s.paths.Root())
	fmt.Fprintf(&b, "📏 Max file size: %d bytes\n", s.config.MaxFileSize)
	fmt.Fprintf(&b, "⏱️  Session lifetime: %s\n", s.config.SessionTTL)
	if s.dispatcher.EmailConfigured() {
		b.WriteString("✉️  Email: configured\n")
	} else {
		b.WriteString("✉️  Email: not configured (set SMTP_SERVER, SENDER_EMAIL and SENDER_PASSWORD)\n")
	}

	b.WriteString("\n🛠️  Tools:\n")
	for _, name := range descriptions.GetAllToolNames() {
		fmt.Fprintf(&b, "  • %s\n", name)
	}

	b.WriteString("\n💡 Usage:\n")
	b.WriteString("  1. form_list_fields to see what the form asks for\n")
	b.WriteString("  2. form_preview_match with your 'Label: Value' data\n")
	b.WriteString("  3. form_fill to write <name>_filled.pdf\n")
	b.WriteString("  4. form_send_email with the returned session id\n")

	return b.String()
}

// Run serves MCP over standard I/O until the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if s.config.IsDebug() {
		s.logger.Debugf("starting MCP server in stdio mode, directory %s", s.paths.Root())
	}

	stdio := server.NewStdioServer(s.mcpServer)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
