package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newCommand(t *testing.T, source Source, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd, source); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func TestLoadConfig_MboxDefaults(t *testing.T) {
	cmd := newCommand(t, SourceMbox, "--mbox", "archive.mbox", "--log-level", "WARNING")

	cfg, err := LoadConfig(cmd, SourceMbox)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MboxPath != "archive.mbox" {
		t.Errorf("MboxPath = %q", cfg.MboxPath)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Output != "-" || cfg.Format != FormatJSON || cfg.StateBackend != "file" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.StateDir, filepath.Join(".rawmail", "state")) {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoadConfig_EnvironmentLayer(t *testing.T) {
	t.Setenv("RAWMAIL_MBOX", "from-env.mbox")
	t.Setenv("RAWMAIL_STATE_BACKEND", "badger")
	t.Setenv("RAWMAIL_FORMAT", "yaml")

	cmd := newCommand(t, SourceMbox, "--format", "json")
	cfg, err := LoadConfig(cmd, SourceMbox)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.MboxPath != "from-env.mbox" {
		t.Errorf("MboxPath = %q, want from-env.mbox", cfg.MboxPath)
	}
	if cfg.StateBackend != "badger" {
		t.Errorf("StateBackend = %q, want badger", cfg.StateBackend)
	}
	if cfg.Format != FormatJSON {
		t.Errorf("Format = %q, flag should win over env", cfg.Format)
	}
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rawmail.yaml")
	content := "imap-host: imap.example.com\nimap-user: jane\nimap-pass: secret\nmailbox: Archive\nexclude-header:\n  - \"(?i)subject: spam\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newCommand(t, SourceIMAP, "--config", path, "--batch-size", "10")
	cfg, err := LoadConfig(cmd, SourceIMAP)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAPHost != "imap.example.com" || cfg.IMAPUser != "jane" || cfg.IMAPPass != "secret" {
		t.Errorf("unexpected imap settings: %+v", cfg)
	}
	if cfg.Mailbox != "Archive" || cfg.BatchSize != 10 || cfg.IMAPPort != 993 {
		t.Errorf("unexpected mailbox settings: %+v", cfg)
	}
	if len(cfg.ExcludeHeader) != 1 || cfg.ExcludeHeader[0] != "(?i)subject: spam" {
		t.Errorf("ExcludeHeader = %q", cfg.ExcludeHeader)
	}
}

func TestLoadConfig_IMAPPassFallback(t *testing.T) {
	t.Setenv("IMAP_PASS", "from-env")

	cmd := newCommand(t, SourceIMAP, "--imap-host", "h", "--imap-user", "u")
	cfg, err := LoadConfig(cmd, SourceIMAP)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.IMAPPass != "from-env" {
		t.Errorf("IMAPPass = %q, want from-env", cfg.IMAPPass)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		source Source
		args   []string
	}{
		{"missing mbox", SourceMbox, nil},
		{"bad format", SourceMbox, []string{"--mbox", "a", "--format", "xml"}},
		{"bad backend", SourceMbox, []string{"--mbox", "a", "--state-backend", "postgres"}},
		{"bad level", SourceMbox, []string{"--mbox", "a", "--log-level", "trace"}},
		{"include and exclude", SourceMbox, []string{"--mbox", "a", "--include-body", "x", "--exclude-header", "y"}},
		{"missing host", SourceIMAP, []string{"--imap-user", "u", "--imap-pass", "p"}},
		{"bad port", SourceIMAP, []string{"--imap-host", "h", "--imap-user", "u", "--imap-pass", "p", "--imap-port", "70000"}},
		{"bad batch", SourceIMAP, []string{"--imap-host", "h", "--imap-user", "u", "--imap-pass", "p", "--batch-size", "0"}},
	}

	t.Setenv("IMAP_PASS", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newCommand(t, tt.source, tt.args...)
			if _, err := LoadConfig(cmd, tt.source); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestLoadConfig_PatternWithComma(t *testing.T) {
	cmd := newCommand(t, SourceMbox, "--mbox", "a", "--include-body", "a{1,3}")
	cfg, err := LoadConfig(cmd, SourceMbox)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if len(cfg.IncludeBody) != 1 || cfg.IncludeBody[0] != "a{1,3}" {
		t.Errorf("IncludeBody = %q", cfg.IncludeBody)
	}
}
