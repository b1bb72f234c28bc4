package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/rawmail/state"
)

// Source selects where a pipeline command reads raw mail from.
type Source string

const (
	SourceMbox Source = "mbox"
	SourceIMAP Source = "imap"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// EnvPrefix is prepended to every flag name when looking up environment
// variables, with dashes turned into underscores (RAWMAIL_STATE_DIR).
const EnvPrefix = "RAWMAIL"

// Config captures all options required to run a parse pipeline.
type Config struct {
	Source             Source
	ConfigFile         string
	MboxPath           string
	IMAPHost           string
	IMAPPort           int
	IMAPUser           string
	IMAPPass           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	BatchSize          int
	StateDir           string
	StateBackend       string
	Output             string
	Format             string
	DryRun             bool
	Progress           bool
	LogLevel           string
	LogDir             string
	IncludeHeader      []string
	IncludeBody        []string
	ExcludeHeader      []string
	ExcludeBody        []string
}

// RegisterFlags attaches the flags shared by all pipeline commands plus the
// ones specific to source. The progress bar needs a message count up front and
// is only offered for mbox.
func RegisterFlags(cmd *cobra.Command, source Source) error {
	// Without a home directory the default stays empty and LoadConfig reports it.
	defaultStateDir, _ := defaultStateDir()

	flags := cmd.Flags()
	flags.String("config", "", "Optional config file (yaml, json or toml) with flag names as keys")

	switch source {
	case SourceMbox:
		flags.String("mbox", "", "Path to the .mbox file to parse")
		flags.Bool("progress", false, "Show a progress bar on stderr")
	case SourceIMAP:
		flags.String("imap-host", "", "IMAP server hostname")
		flags.Int("imap-port", 993, "IMAP server port")
		flags.String("imap-user", "", "IMAP username")
		flags.String("imap-pass", "", "IMAP password (falls back to IMAP_PASS env var)")
		flags.Bool("use-tls", true, "Use TLS for the IMAP connection")
		flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
		flags.String("mailbox", "INBOX", "IMAP mailbox to read from")
		flags.Int("batch-size", 50, "Number of messages fetched per IMAP FETCH command")
	default:
		return fmt.Errorf("unknown source %q", source)
	}

	flags.String("state-dir", defaultStateDir, "Directory for incremental parse state")
	flags.String("state-backend", state.BackendFile, "State backend: file or badger")
	flags.StringP("output", "o", "-", "Output file for parsed messages, - for stdout")
	flags.String("format", FormatJSON, "Output format: json (one message per line) or yaml")
	flags.Bool("dry-run", false, "Parse and count messages without writing output or state")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory for log files (logs are also written to stderr)")
	flags.StringArray("include-header", nil, "Regex allow-list applied to message headers (mutually exclusive with exclude flags)")
	flags.StringArray("include-body", nil, "Regex allow-list applied to message text parts (mutually exclusive with exclude flags)")
	flags.StringArray("exclude-header", nil, "Regex block-list applied to message headers (mutually exclusive with include flags)")
	flags.StringArray("exclude-body", nil, "Regex block-list applied to message text parts (mutually exclusive with include flags)")

	return nil
}

// LoadConfig layers the config file, RAWMAIL_* environment variables and the
// parsed Cobra flags into a validated Config. Flags win over the environment,
// which wins over the file.
func LoadConfig(cmd *cobra.Command, source Source) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	configFile := v.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	includeHeader, err := stringList(v, cmd, "include-header")
	if err != nil {
		return Config{}, err
	}
	includeBody, err := stringList(v, cmd, "include-body")
	if err != nil {
		return Config{}, err
	}
	excludeHeader, err := stringList(v, cmd, "exclude-header")
	if err != nil {
		return Config{}, err
	}
	excludeBody, err := stringList(v, cmd, "exclude-body")
	if err != nil {
		return Config{}, err
	}

	imapPass := v.GetString("imap-pass")
	if source == SourceIMAP && imapPass == "" {
		imapPass = os.Getenv("IMAP_PASS")
	}

	stateDir := v.GetString("state-dir")
	if stateDir == "" {
		stateDir, err = defaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel := strings.ToLower(v.GetString("log-level"))
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		Source:             source,
		ConfigFile:         configFile,
		MboxPath:           v.GetString("mbox"),
		IMAPHost:           v.GetString("imap-host"),
		IMAPPort:           v.GetInt("imap-port"),
		IMAPUser:           v.GetString("imap-user"),
		IMAPPass:           imapPass,
		UseTLS:             v.GetBool("use-tls"),
		InsecureSkipVerify: v.GetBool("insecure-skip-verify"),
		Mailbox:            v.GetString("mailbox"),
		BatchSize:          v.GetInt("batch-size"),
		StateDir:           filepath.Clean(stateDir),
		StateBackend:       strings.ToLower(v.GetString("state-backend")),
		Output:             v.GetString("output"),
		Format:             strings.ToLower(v.GetString("format")),
		DryRun:             v.GetBool("dry-run"),
		Progress:           v.GetBool("progress"),
		LogLevel:           logLevel,
		LogDir:             v.GetString("log-dir"),
		IncludeHeader:      includeHeader,
		IncludeBody:        includeBody,
		ExcludeHeader:      excludeHeader,
		ExcludeBody:        excludeBody,
	}
	if cfg.Output == "" {
		cfg.Output = "-"
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// stringList reads repeatable flags verbatim so patterns containing commas
// survive; only unset flags fall back to viper.
func stringList(v *viper.Viper, cmd *cobra.Command, name string) ([]string, error) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return cmd.Flags().GetStringArray(name)
	}
	return v.GetStringSlice(name), nil
}

func validateConfig(cfg Config) error {
	switch cfg.Source {
	case SourceMbox:
		if cfg.MboxPath == "" {
			return fmt.Errorf("--mbox is required")
		}
	case SourceIMAP:
		if cfg.IMAPHost == "" {
			return fmt.Errorf("--imap-host is required")
		}
		if cfg.IMAPUser == "" {
			return fmt.Errorf("--imap-user is required")
		}
		if cfg.IMAPPass == "" {
			return fmt.Errorf("IMAP password must be provided via --imap-pass, %s_IMAP_PASS or IMAP_PASS env var", EnvPrefix)
		}
		if cfg.IMAPPort <= 0 || cfg.IMAPPort > 65535 {
			return fmt.Errorf("--imap-port must be between 1 and 65535")
		}
		if cfg.BatchSize <= 0 {
			return fmt.Errorf("--batch-size must be positive")
		}
	default:
		return fmt.Errorf("unknown source %q", cfg.Source)
	}

	switch cfg.StateBackend {
	case state.BackendFile, state.BackendBadger:
	default:
		return fmt.Errorf("invalid --state-backend: %s", cfg.StateBackend)
	}

	switch cfg.Format {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("invalid --format: %s", cfg.Format)
	}

	includeActive := len(cfg.IncludeHeader) > 0 || len(cfg.IncludeBody) > 0
	excludeActive := len(cfg.ExcludeHeader) > 0 || len(cfg.ExcludeBody) > 0
	if includeActive && excludeActive {
		return fmt.Errorf("include and exclude flags are mutually exclusive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func defaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".rawmail", "state"), nil
}
