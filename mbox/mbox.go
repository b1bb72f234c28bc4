package mbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	mboxlib "github.com/emersion/go-mbox"
	"github.com/google/uuid"

	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/runner"
)

type Options struct {
	Path string
}

type Reader interface {
	Stream(ctx context.Context, out chan<- model.Item) error
}

func NewReader(opts Options, logger *slog.Logger) (Reader, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, fmt.Errorf("mbox path is empty")
	}
	return &fileReader{path: path, logger: logger}, nil
}

type fileReader struct {
	path   string
	logger *slog.Logger
}

// Stream parses every message of the mbox file and writes it to out. Parse
// failures travel with the partially parsed message; a broken mbox stream is
// sent as an item without message and ends the stream.
func (f *fileReader) Stream(ctx context.Context, out chan<- model.Item) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return f.emitError(ctx, out, fmt.Errorf("message %d: %w", idx, err))
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return f.emitError(ctx, out, fmt.Errorf("message %d read: %w", idx, err))
		}

		item := runner.NewItem(raw, MessageID(raw))
		if item.Err != nil {
			item.Err = fmt.Errorf("message %d: %w", idx, item.Err)
			if f.logger != nil {
				f.logger.Debug("mbox message parsed partially", "path", f.path, "messageID", item.Message.ID, "err", item.Err)
			}
		}

		if err := f.emitItem(ctx, out, item); err != nil {
			return err
		}
	}
}

func (f *fileReader) emitError(ctx context.Context, out chan<- model.Item, err error) error {
	if f.logger != nil {
		f.logger.Error("mbox stream error", "path", f.path, "err", err)
	}
	if err := f.emitItem(ctx, out, model.Item{Err: err}); err != nil {
		return err
	}
	return nil
}

func (f *fileReader) emitItem(ctx context.Context, out chan<- model.Item, item model.Item) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case out <- item:
		return nil
	}
}

// MessageID is the Message-Id header of raw when present, otherwise a
// name-based UUID of the raw bytes, so re-reading the same archive yields the
// same ids.
func MessageID(raw []byte) string {
	if msg, err := mail.ReadMessage(bytes.NewReader(raw)); err == nil {
		id := strings.TrimSpace(msg.Header.Get("Message-Id"))
		id = strings.Trim(id, " <>")
		if id != "" {
			return id
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, raw).String()
}

type Producer struct {
	reader Reader
	runner *runner.Runner
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	reader, err := NewReader(opts, logger)
	if err != nil {
		return nil, err
	}
	producer := &Producer{reader: reader, runner: r}
	r.AddStage("mbox", producer.run)
	return producer, nil
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseSource()
	return p.reader.Stream(ctx, p.runner.SourceWriter())
}

// Read parses every message of an mbox file and calls fn with the result.
// Parse failures are reported through Item.Err and do not stop the walk; an
// error returned by fn does.
func Read(path string, fn func(item model.Item) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		raw, err := io.ReadAll(msgReader)
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		if err := fn(runner.NewItem(raw, MessageID(raw))); err != nil {
			return err
		}
	}
}

// CountMessages counts the total number of messages in an mbox file.
func CountMessages(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open mbox: %w", err)
	}
	defer file.Close()
	reader := mboxlib.NewReader(file)

	count := 0
	for {
		msgReader, err := reader.NextMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return 0, err
		}

		// A message that cannot be drained is still counted.
		_, _ = io.Copy(io.Discard, msgReader)
		count++
	}
}
