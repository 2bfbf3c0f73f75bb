package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/a3tai/pdf-form-filler/internal/email"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Default values
	DefaultPort          = 8001
	DefaultHost          = "127.0.0.1"
	DefaultLogLevel      = "info"
	DefaultMaxFileSize   = 100 * 1024 * 1024 // 100MB
	DefaultSessionTTL    = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxSessions   = 1000
	DefaultDateFormat    = "01/02/2006"
	DefaultSMTPPort      = 587
	DefaultEmailTimeout  = 30 * time.Second
	DefaultEnvFile       = ".env"

	// Directory permissions
	DefaultDirPerm = 0o750

	envPrefix = "PDF_FILLER"
)

// Config holds all configuration for the form filler
type Config struct {
	// Server configuration
	Mode        string // "server" or "stdio"
	Host        string
	Port        int
	CORSOrigins []string

	// PDF configuration
	PDFDirectory string
	MaxFileSize  int64 // Maximum PDF file size in bytes

	// Sessions
	SessionTTL    time.Duration
	SweepInterval time.Duration
	MaxSessions   int

	// Matching
	SynonymsFile   string
	FuzzyThreshold float64 // 0 keeps the policy's own threshold
	AutoDate       bool
	DateFormat     string

	// HistoryDB is a sqlite path; empty disables the audit log
	HistoryDB string

	// Outgoing mail
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	EmailTimeout time.Duration

	// Application configuration
	Version    string
	ServerName string
	LogLevel   string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	currentDir, err := os.Getwd()
	if err != nil {
		currentDir = "."
	}

	return &Config{
		Mode:          ModeStdio,
		Host:          DefaultHost,
		Port:          DefaultPort,
		CORSOrigins:   []string{"*"},
		PDFDirectory:  currentDir,
		MaxFileSize:   DefaultMaxFileSize,
		SessionTTL:    DefaultSessionTTL,
		SweepInterval: DefaultSweepInterval,
		MaxSessions:   DefaultMaxSessions,
		AutoDate:      false,
		DateFormat:    DefaultDateFormat,
		SMTPPort:      DefaultSMTPPort,
		EmailTimeout:  DefaultEmailTimeout,
		Version:       "1.0.0",
		ServerName:    "pdf-form-filler",
		LogLevel:      DefaultLogLevel,
	}
}

// LoadFromFlags parses command line flags, the environment and an optional
// .env file, and returns a validated configuration. Flags win over the
// environment, which wins over defaults.
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	setupViperEnvironment(cfg)
	defineCommandLineFlags(cfg)
	bindFlagsToViper()
	setupUsageMessage()

	// Check for version flag before parsing
	if err := checkVersionFlag(); err != nil {
		return nil, err
	}

	pflag.Parse()

	if err := loadEnvFile(viper.GetString("env-file")); err != nil {
		return nil, err
	}

	populateConfigFromViper(cfg)

	if cfg.PDFDirectory != "" {
		if expandedPath, err := filepath.Abs(cfg.PDFDirectory); err == nil {
			cfg.PDFDirectory = expandedPath
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadEnvFile adds variables from path to the process environment without
// overriding ones already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("cannot load env file %s: %w", path, err)
	}
	return nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(cfg *Config) {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("mode", cfg.Mode)
	viper.SetDefault("host", cfg.Host)
	viper.SetDefault("port", cfg.Port)
	viper.SetDefault("cors-origins", cfg.CORSOrigins)
	viper.SetDefault("dir", cfg.PDFDirectory)
	viper.SetDefault("loglevel", cfg.LogLevel)
	viper.SetDefault("maxfilesize", cfg.MaxFileSize)
	viper.SetDefault("session-ttl", cfg.SessionTTL)
	viper.SetDefault("sweep-interval", cfg.SweepInterval)
	viper.SetDefault("max-sessions", cfg.MaxSessions)
	viper.SetDefault("auto-date", cfg.AutoDate)
	viper.SetDefault("date-format", cfg.DateFormat)
	viper.SetDefault("smtp-port", cfg.SMTPPort)
	viper.SetDefault("email-timeout", cfg.EmailTimeout)
	viper.SetDefault("env-file", DefaultEnvFile)

	// The mail settings also answer to the variable names of existing
	// deployments' .env files.
	_ = viper.BindEnv("smtp-host", envPrefix+"_SMTP_HOST", "SMTP_SERVER")
	_ = viper.BindEnv("smtp-port", envPrefix+"_SMTP_PORT", "SMTP_PORT")
	_ = viper.BindEnv("smtp-user", envPrefix+"_SMTP_USER", "SMTP_USERNAME")
	_ = viper.BindEnv("smtp-password", envPrefix+"_SMTP_PASSWORD", "SENDER_PASSWORD")
	_ = viper.BindEnv("smtp-from", envPrefix+"_SMTP_FROM", "SENDER_EMAIL")
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(cfg *Config) {
	pflag.String("mode", cfg.Mode, "Server mode: 'stdio' for MCP standard I/O, 'server' for HTTP server")
	pflag.String("host", cfg.Host, "Server host address (server mode only)")
	pflag.Int("port", cfg.Port, "Server port (server mode only)")
	pflag.StringSlice("cors-origins", cfg.CORSOrigins, "Allowed CORS origins (server mode only)")
	pflag.String("dir", cfg.PDFDirectory, "Directory the MCP tools may read and write PDFs in")
	pflag.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	pflag.Int64("maxfilesize", cfg.MaxFileSize, "Maximum PDF file size in bytes")
	pflag.Duration("session-ttl", cfg.SessionTTL, "How long a filled document stays available for email")
	pflag.Duration("sweep-interval", cfg.SweepInterval, "How often expired sessions are removed")
	pflag.Int("max-sessions", cfg.MaxSessions, "Maximum stored sessions, 0 for unlimited")
	pflag.String("synonyms", "", "YAML file with synonym groups, stopwords and threshold")
	pflag.Float64("fuzzy-threshold", 0, "Minimum fuzzy match score in (0, 1]; 0 keeps the policy value")
	pflag.Bool("auto-date", cfg.AutoDate, "Fill today's date when the data has no date entry")
	pflag.String("date-format", cfg.DateFormat, "Go time layout for the automatic date")
	pflag.String("history-db", "", "SQLite file for the fill and email audit log")
	pflag.String("smtp-host", "", "SMTP server host")
	pflag.Int("smtp-port", cfg.SMTPPort, "SMTP server port")
	pflag.String("smtp-user", "", "SMTP username (defaults to the sender address)")
	pflag.String("smtp-password", "", "SMTP password")
	pflag.String("smtp-from", "", "Sender email address")
	pflag.Duration("email-timeout", cfg.EmailTimeout, "Upper bound for one email delivery")
	pflag.String("env-file", DefaultEnvFile, "Optional .env file loaded before reading the environment")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper() {
	pflag.VisitAll(func(f *pflag.Flag) {
		_ = viper.BindPFlag(f.Name, f)
	})
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nPDF Form Filler - fills PDF forms from \"Label: Value\" data\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                    # MCP over stdio, current directory\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=server                      # HTTP API on %s:%d\n",
			os.Args[0], DefaultHost, DefaultPort)
		fmt.Fprintf(os.Stderr, "  %s --mode=server --history-db=fills.db # with an audit log\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PDF_FILLER_<FLAG>   Any flag, upper-cased with '-' as '_'\n")
		fmt.Fprintf(os.Stderr, "  SMTP_SERVER         SMTP server host\n")
		fmt.Fprintf(os.Stderr, "  SMTP_PORT           SMTP server port\n")
		fmt.Fprintf(os.Stderr, "  SENDER_EMAIL        Sender email address\n")
		fmt.Fprintf(os.Stderr, "  SENDER_PASSWORD     SMTP password\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag() error {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(cfg *Config) {
	cfg.Mode = viper.GetString("mode")
	cfg.Host = viper.GetString("host")
	cfg.Port = viper.GetInt("port")
	cfg.CORSOrigins = splitOrigins(viper.GetStringSlice("cors-origins"))
	cfg.PDFDirectory = viper.GetString("dir")
	cfg.LogLevel = viper.GetString("loglevel")
	cfg.MaxFileSize = viper.GetInt64("maxfilesize")
	cfg.SessionTTL = viper.GetDuration("session-ttl")
	cfg.SweepInterval = viper.GetDuration("sweep-interval")
	cfg.MaxSessions = viper.GetInt("max-sessions")
	cfg.SynonymsFile = viper.GetString("synonyms")
	cfg.FuzzyThreshold = viper.GetFloat64("fuzzy-threshold")
	cfg.AutoDate = viper.GetBool("auto-date")
	cfg.DateFormat = viper.GetString("date-format")
	cfg.HistoryDB = viper.GetString("history-db")
	cfg.SMTPHost = viper.GetString("smtp-host")
	cfg.SMTPPort = viper.GetInt("smtp-port")
	cfg.SMTPUser = viper.GetString("smtp-user")
	cfg.SMTPPassword = viper.GetString("smtp-password")
	cfg.SMTPFrom = viper.GetString("smtp-from")
	cfg.EmailTimeout = viper.GetDuration("email-timeout")
}

// splitOrigins accepts both repeated values and one comma separated value,
// which is how an origin list arrives from the environment.
func splitOrigins(values []string) []string {
	var out []string
	for _, v := range values {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	if c.PDFDirectory == "" {
		return errors.New("PDF directory cannot be empty")
	}

	// Check if PDF directory exists, create if it doesn't
	if _, err := os.Stat(c.PDFDirectory); os.IsNotExist(err) {
		if err := os.MkdirAll(c.PDFDirectory, DefaultDirPerm); err != nil {
			return fmt.Errorf("cannot create PDF directory %s: %w", c.PDFDirectory, err)
		}
	} else if err != nil {
		return fmt.Errorf("cannot access PDF directory %s: %w", c.PDFDirectory, err)
	}

	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.SessionTTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.MaxSessions < 0 {
		return errors.New("max sessions cannot be negative")
	}

	if c.FuzzyThreshold < 0 || c.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy threshold must be in (0, 1], got %v", c.FuzzyThreshold)
	}
	if c.AutoDate && strings.TrimSpace(c.DateFormat) == "" {
		return errors.New("date format cannot be empty when auto-date is enabled")
	}

	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return errors.New("SMTP port must be between 1 and 65535")
	}
	if c.EmailTimeout <= 0 {
		return errors.New("email timeout must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// SMTP returns the outgoing mail settings
func (c *Config) SMTP() email.SMTPConfig {
	return email.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUser,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
		Timeout:  c.EmailTimeout,
	}
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration. The SMTP
// password is never included.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, PDFDirectory: %s, LogLevel: %s, MaxFileSize: %d, "+
		"SessionTTL: %s, SMTPHost: %s, SMTPFrom: %s, EmailConfigured: %t}",
		c.Mode, c.Host, c.Port, c.PDFDirectory, c.LogLevel, c.MaxFileSize,
		c.SessionTTL, c.SMTPHost, c.SMTPFrom, c.SMTP().Configured())
}

// IsServerMode returns true if the HTTP API should be served
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the MCP server runs over standard I/O
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
