package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dhcgn/rawmail/config"
	"github.com/dhcgn/rawmail/export"
	"github.com/dhcgn/rawmail/imap"
	"github.com/dhcgn/rawmail/mbox"
	"github.com/dhcgn/rawmail/progress"
	"github.com/dhcgn/rawmail/runner"
	"github.com/dhcgn/rawmail/stats"
)

func newPipelineCmd(source config.Source, use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, source)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg.LogLevel, cfg.LogDir)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting rawmail", "source", cfg.Source, "output", cfg.Output, "format", cfg.Format, "stateBackend", cfg.StateBackend, "dryRun", cfg.DryRun)

			return run(cfg, logger)
		},
	}
	cobra.CheckErr(config.RegisterFlags(cmd, source))
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newPipelineCmd(config.SourceMbox, "mbox", "Parse every message of an mbox archive and export it"),
		newPipelineCmd(config.SourceIMAP, "imap", "Fetch and parse every message of an IMAP mailbox and export it"),
	)
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}
	stats.NewReporter(r, logger)

	sinkOpts := export.Options{
		Path:   cfg.Output,
		Format: cfg.Format,
		DryRun: cfg.DryRun,
	}
	if _, err := export.NewSink(sinkOpts, r, logger); err != nil {
		return r.Abort(fmt.Errorf("export.NewSink: %w", err))
	}

	switch cfg.Source {
	case config.SourceMbox:
		if cfg.Progress {
			total, err := mbox.CountMessages(cfg.MboxPath)
			if err != nil {
				return r.Abort(fmt.Errorf("count messages: %w", err))
			}
			bar := progress.New(total, r.Tracker().Snapshot().Processed, true)
			progress.NewReporter(r, bar)
		}
		if _, err := mbox.NewProducer(mbox.Options{Path: cfg.MboxPath}, r, logger); err != nil {
			return r.Abort(fmt.Errorf("mbox.NewProducer: %w", err))
		}
	case config.SourceIMAP:
		fetcherOpts := imap.Options{
			Host:               cfg.IMAPHost,
			Port:               cfg.IMAPPort,
			Username:           cfg.IMAPUser,
			Password:           cfg.IMAPPass,
			UseTLS:             cfg.UseTLS,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			Mailbox:            cfg.Mailbox,
			BatchSize:          cfg.BatchSize,
		}
		if _, err := imap.NewFetcher(fetcherOpts, r, logger); err != nil {
			return r.Abort(fmt.Errorf("imap.NewFetcher: %w", err))
		}
	}

	return r.Start()
}
