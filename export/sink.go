package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/runner"
	"github.com/dhcgn/rawmail/state"
	"github.com/dhcgn/rawmail/stats"
)

type Options struct {
	// Path is the output file; "-" or empty writes to stdout.
	Path   string
	Format string
	DryRun bool
}

// Sink drains the parsed messages of a runner, writes them out and records
// them as processed. In dry-run mode nothing is written.
type Sink struct {
	opts    Options
	runner  *runner.Runner
	tracker state.Tracker
	logger  *slog.Logger
	out     io.Writer
	closer  io.Closer
}

func NewSink(opts Options, r *runner.Runner, logger *slog.Logger) (*Sink, error) {
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	sink := &Sink{
		opts:    opts,
		runner:  r,
		tracker: tracker,
		logger:  logger,
	}

	if !opts.DryRun {
		if err := sink.open(); err != nil {
			return nil, err
		}
	}

	r.AddStage("export", sink.run)
	return sink, nil
}

func (s *Sink) open() error {
	if s.opts.Path == "" || s.opts.Path == "-" {
		s.out = os.Stdout
		return nil
	}
	if dir := filepath.Dir(s.opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	file, err := os.OpenFile(s.opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	s.out = file
	s.closer = file
	return nil
}

func (s *Sink) run(ctx context.Context) (err error) {
	var writer *Writer
	if !s.opts.DryRun {
		writer, err = NewWriter(s.out, s.opts.Format)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := writer.Close(); cerr != nil && err == nil {
				err = cerr
			}
			if s.closer != nil {
				if cerr := s.closer.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("close output: %w", cerr)
				}
			}
		}()
	}

	parsed := s.runner.Parsed()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-parsed:
			if !ok {
				return nil
			}
			msg := item.Message

			if s.opts.DryRun {
				if err := s.tracker.Record(entryFor(item)); err != nil {
					s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
					return err
				}
				s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeDryRunExport, MessageID: msg.ID})
				if s.logger != nil {
					s.logger.Debug("dry-run export", "messageID", msg.ID, "hash", item.Hash)
				}
				continue
			}

			if err := writer.Write(item); err != nil {
				s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			if err := s.tracker.Record(entryFor(item)); err != nil {
				s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, MessageID: msg.ID, Err: err})
				return err
			}

			s.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeExported, MessageID: msg.ID})
			if s.logger != nil {
				s.logger.Debug("exported message", "messageID", msg.ID, "hash", item.Hash)
			}
		}
	}
}

// entryFor is the state entry recorded once item has been exported. Partially
// parsed mails are recorded too, so a rerun does not export them again.
func entryFor(item model.Item) state.Entry {
	return state.Entry{
		Hash:      item.Hash,
		MessageID: item.Message.ID,
		Size:      item.Size,
		Partial:   item.Err != nil,
		ParsedAt:  time.Now().UTC(),
	}
}
