package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/a3tai/pdf-form-filler/internal/config"
	"github.com/a3tai/pdf-form-filler/internal/dispatch"
	"github.com/a3tai/pdf-form-filler/internal/email"
	"github.com/a3tai/pdf-form-filler/internal/history"
	"github.com/a3tai/pdf-form-filler/internal/httpapi"
	"github.com/a3tai/pdf-form-filler/internal/logging"
	"github.com/a3tai/pdf-form-filler/internal/match"
	"github.com/a3tai/pdf-form-filler/internal/mcp"
	"github.com/a3tai/pdf-form-filler/internal/pdf"
	"github.com/a3tai/pdf-form-filler/internal/session"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// shutdownTimeout bounds graceful HTTP shutdown
const shutdownTimeout = 10 * time.Second

// setupLogging returns the application logger for the configured mode.
// In stdio mode stdout belongs to the MCP protocol, so logs go to stderr and
// only when debugging.
func setupLogging(cfg *config.Config) *logging.Logger {
	var w io.Writer = os.Stderr
	if cfg.IsStdioMode() && !cfg.IsDebug() {
		w = io.Discard
	}
	log.SetOutput(w)
	return logging.New(cfg.LogLevel, w)
}

// loadPolicy builds the matching policy from the synonyms file and threshold
func loadPolicy(cfg *config.Config) (*match.Policy, error) {
	policy := match.DefaultPolicy()
	if cfg.SynonymsFile != "" {
		p, err := match.LoadPolicy(cfg.SynonymsFile)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	if cfg.FuzzyThreshold > 0 {
		policy = match.NewPolicy(cfg.FuzzyThreshold, policy.Synonyms, policy.Stopwords)
	}
	return policy, nil
}

// openHistory opens the audit log, or a no-op recorder when none is configured
func openHistory(cfg *config.Config) (history.Recorder, error) {
	if cfg.HistoryDB == "" {
		return history.Nop{}, nil
	}
	return history.Open(cfg.HistoryDB)
}

// newDispatcher wires every component from the configuration
func newDispatcher(cfg *config.Config, logger *logging.Logger, recorder history.Recorder) (*dispatch.Dispatcher, error) {
	policy, err := loadPolicy(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load matching policy: %w", err)
	}

	smtp := cfg.SMTP()
	if !smtp.Configured() {
		logger.Infof("email delivery disabled: SMTP settings incomplete")
	}

	return dispatch.New(dispatch.Options{
		Validator: pdf.NewValidator(cfg.MaxFileSize),
		Matcher:   match.NewMatcher(policy),
		Store: session.NewStore(session.Config{
			TTL:        cfg.SessionTTL,
			MaxEntries: cfg.MaxSessions,
			Logger:     logger.With("session"),
		}),
		Sender:       email.NewSMTPSender(smtp, logger.With("smtp")),
		History:      recorder,
		Logger:       logger,
		AutoDate:     cfg.AutoDate,
		DateFormat:   cfg.DateFormat,
		EmailTimeout: cfg.EmailTimeout,
	}), nil
}

// runServerMode serves the HTTP API until a signal arrives or it fails
func runServerMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config,
	d *dispatch.Dispatcher, logger *logging.Logger,
) error {
	api := httpapi.New(httpapi.Options{
		Dispatcher:     d,
		Logger:         logger.With("http"),
		CORSOrigins:    cfg.CORSOrigins,
		MaxUploadBytes: cfg.MaxFileSize,
	})
	srv := httpapi.NewServer(cfg.Address(), api.Handler())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on http://%s/api/", cfg.Address())
		serverErrCh <- srv.ListenAndServe()
	}()

	select {
	case sig := <-signalCh:
		logger.Infof("received signal %s, shutting down", sig)
	case err := <-serverErrCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Infof("server stopped")
	return nil
}

// runStdioMode serves MCP until the parent process closes stdin
func runStdioMode(ctx context.Context, cancel context.CancelFunc, cfg *config.Config,
	d *dispatch.Dispatcher, logger *logging.Logger,
) error {
	server, err := mcp.NewServer(cfg, d, logger)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer cancel()

	return server.Run(ctx)
}

func run(cfg *config.Config) error {
	logger := setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}
	logger.Debugf("starting with configuration: %s", cfg)

	recorder, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer recorder.Close()

	d, err := newDispatcher(cfg, logger, recorder)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.Store().Start(ctx, cfg.SweepInterval)

	if cfg.IsServerMode() {
		return runServerMode(ctx, cancel, cfg, d, logger)
	}
	return runStdioMode(ctx, cancel, cfg, d, logger)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "pdf-form-filler: %v\n", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("PDF Form Filler\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
