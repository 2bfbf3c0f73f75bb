package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envNames are every variable LoadFromFlags may read
var envNames = []string{
	"PDF_FILLER_MODE", "PDF_FILLER_HOST", "PDF_FILLER_PORT", "PDF_FILLER_DIR",
	"PDF_FILLER_LOGLEVEL", "PDF_FILLER_MAXFILESIZE", "PDF_FILLER_SESSION_TTL",
	"PDF_FILLER_CORS_ORIGINS", "PDF_FILLER_AUTO_DATE", "PDF_FILLER_SMTP_HOST",
	"PDF_FILLER_SMTP_PORT", "PDF_FILLER_SMTP_FROM", "PDF_FILLER_SMTP_PASSWORD",
	"SMTP_SERVER", "SMTP_PORT", "SENDER_EMAIL", "SENDER_PASSWORD",
}

// load runs LoadFromFlags with args on fresh flag and viper state
func load(t *testing.T, args ...string) (*Config, error) {
	t.Helper()

	originalArgs := os.Args
	t.Cleanup(func() {
		os.Args = originalArgs
		resetFlags()
	})

	os.Args = append([]string{"pdf-form-filler"}, args...)
	resetFlags()
	return LoadFromFlags()
}

func resetFlags() {
	pflag.CommandLine = pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	viper.Reset()
}

// clearEnv blanks every variable for the test; viper treats empty as unset
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func TestLoadFromFlags_DefaultConfig(t *testing.T) {
	clearEnv(t)

	cfg, err := load(t, "--dir="+t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != ModeStdio {
		t.Errorf("Mode = %v, want %v", cfg.Mode, ModeStdio)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %v, want %v", cfg.Port, DefaultPort)
	}
	if cfg.SessionTTL != DefaultSessionTTL {
		t.Errorf("SessionTTL = %v, want %v", cfg.SessionTTL, DefaultSessionTTL)
	}
	if cfg.AutoDate {
		t.Error("AutoDate should default to false")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if cfg.SMTP().Configured() {
		t.Error("SMTP should not be configured by default")
	}
}

func TestLoadFromFlags_ValidFlags(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, cfg *Config)
	}{
		{
			name: "server mode with custom host and port",
			args: []string{"--mode=server", "--host=0.0.0.0", "--port=9090"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Address() != "0.0.0.0:9090" {
					t.Errorf("Address() = %v, want 0.0.0.0:9090", cfg.Address())
				}
			},
		},
		{
			name: "session settings",
			args: []string{"--session-ttl=5m", "--sweep-interval=10s", "--max-sessions=3"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.SessionTTL != 5*time.Minute || cfg.SweepInterval != 10*time.Second || cfg.MaxSessions != 3 {
					t.Errorf("got ttl=%v sweep=%v max=%v", cfg.SessionTTL, cfg.SweepInterval, cfg.MaxSessions)
				}
			},
		},
		{
			name: "matching settings",
			args: []string{"--fuzzy-threshold=0.75", "--auto-date", "--synonyms=policy.yaml"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.FuzzyThreshold != 0.75 || !cfg.AutoDate || cfg.SynonymsFile != "policy.yaml" {
					t.Errorf("got threshold=%v autodate=%v synonyms=%v", cfg.FuzzyThreshold, cfg.AutoDate, cfg.SynonymsFile)
				}
			},
		},
		{
			name: "cors origins",
			args: []string{"--cors-origins=http://a.test,http://b.test"},
			check: func(t *testing.T, cfg *Config) {
				if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
					t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
				}
			},
		},
		{
			name: "smtp settings",
			args: []string{"--smtp-host=mail.test", "--smtp-from=forms@corp.test", "--smtp-password=pw", "--smtp-port=465"},
			check: func(t *testing.T, cfg *Config) {
				smtp := cfg.SMTP()
				if !smtp.Configured() || smtp.Port != 465 || smtp.Host != "mail.test" {
					t.Errorf("SMTP() = %+v", smtp)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg, err := load(t, append(tt.args, "--dir="+t.TempDir())...)
			if err != nil {
				t.Fatalf("LoadFromFlags() unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadFromFlags_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()

	t.Setenv("PDF_FILLER_MODE", "server")
	t.Setenv("PDF_FILLER_PORT", "3000")
	t.Setenv("PDF_FILLER_DIR", tempDir)
	t.Setenv("PDF_FILLER_LOGLEVEL", "warn")
	t.Setenv("PDF_FILLER_SESSION_TTL", "90s")
	t.Setenv("PDF_FILLER_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := load(t)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != ModeServer {
		t.Errorf("Mode = %v, want server", cfg.Mode)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %v, want 3000", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Errorf("SessionTTL = %v, want 90s", cfg.SessionTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoadFromFlags_LegacySMTPVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMTP_SERVER", "smtp.legacy.test")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("SENDER_EMAIL", "forms@legacy.test")
	t.Setenv("SENDER_PASSWORD", "secret")

	cfg, err := load(t, "--dir="+t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.SMTPHost != "smtp.legacy.test" || cfg.SMTPPort != 2525 || cfg.SMTPFrom != "forms@legacy.test" {
		t.Errorf("got host=%v port=%v from=%v", cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	}
	if !cfg.SMTP().Configured() {
		t.Error("SMTP should be configured from legacy variables")
	}
	if strings.Contains(cfg.String(), "secret") {
		t.Error("String() must not include the SMTP password")
	}
}

func TestLoadFromFlags_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that is already present, even empty
	os.Unsetenv("SMTP_SERVER")
	os.Unsetenv("SENDER_EMAIL")
	t.Cleanup(func() {
		os.Unsetenv("SMTP_SERVER")
		os.Unsetenv("SENDER_EMAIL")
	})

	envFile := filepath.Join(t.TempDir(), "backend.env")
	content := "SMTP_SERVER=smtp.file.test\nSENDER_EMAIL=demo@example.com\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(t, "--dir="+t.TempDir(), "--env-file="+envFile)
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.SMTPHost != "smtp.file.test" {
		t.Errorf("SMTPHost = %v, want smtp.file.test", cfg.SMTPHost)
	}
	if cfg.SMTP().Configured() {
		t.Error("demo sender must count as unconfigured")
	}
}

func TestLoadFromFlags_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	_, err := load(t, "--dir="+t.TempDir(), "--env-file="+filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}
}

func TestLoadFromFlags_FlagOverridesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PDF_FILLER_MODE", "server")
	t.Setenv("PDF_FILLER_PORT", "3000")
	t.Setenv("SMTP_SERVER", "env.test")

	cfg, err := load(t, "--mode=stdio", "--port=8888", "--smtp-host=flag.test", "--dir="+t.TempDir())
	if err != nil {
		t.Fatalf("LoadFromFlags() unexpected error: %v", err)
	}

	if cfg.Mode != ModeStdio {
		t.Errorf("Mode = %v, want stdio (should override env)", cfg.Mode)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %v, want 8888 (should override env)", cfg.Port)
	}
	if cfg.SMTPHost != "flag.test" {
		t.Errorf("SMTPHost = %v, want flag.test (should override env)", cfg.SMTPHost)
	}
}

func TestLoadFromFlags_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"mode", []string{"--mode=invalid"}, "mode must be either 'stdio' or 'server'"},
		{"port", []string{"--mode=server", "--port=99999"}, "port must be between 1 and 65535"},
		{"log level", []string{"--loglevel=loud"}, "invalid log level"},
		{"threshold", []string{"--fuzzy-threshold=1.5"}, "fuzzy threshold"},
		{"ttl", []string{"--session-ttl=0s"}, "session TTL must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := load(t, append(tt.args, "--dir="+t.TempDir())...)
			if err == nil {
				t.Fatal("LoadFromFlags() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadFromFlags() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFlags_VersionFlag(t *testing.T) {
	clearEnv(t)
	_, err := load(t, "--version")
	if err == nil || err.Error() != "version requested" {
		t.Errorf("LoadFromFlags() error = %v, want 'version requested'", err)
	}
}
