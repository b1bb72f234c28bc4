package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/runner"
)

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	Mailbox            string
	BatchSize          int
}

// Fetcher reads every message of a mailbox without altering flags and feeds
// the parsed results into the pipeline.
type Fetcher struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

func NewFetcher(opts Options, r *runner.Runner, logger *slog.Logger) (*Fetcher, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("imap batch size must be positive")
	}
	fetcher := &Fetcher{
		opts:   opts,
		runner: r,
		logger: logger,
	}
	r.AddStage("imap", fetcher.run)
	return fetcher, nil
}

func (f *Fetcher) run(ctx context.Context) error {
	defer f.runner.CloseSource()

	client, cleanup, err := f.dial(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	mailbox := f.mailbox()
	selected, err := client.Select(mailbox, &imapv2.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return fmt.Errorf("select mailbox %s: %w", mailbox, err)
	}
	if f.logger != nil {
		f.logger.Info("imap mailbox selected", "mailbox", mailbox, "messages", selected.NumMessages, "uidValidity", selected.UIDValidity)
	}

	section := &imapv2.FetchItemBodySection{Peek: true}
	fetchOptions := &imapv2.FetchOptions{
		UID:          true,
		InternalDate: true,
		BodySection:  []*imapv2.FetchItemBodySection{section},
	}

	out := f.runner.SourceWriter()
	for _, seqSet := range batches(selected.NumMessages, uint32(f.opts.BatchSize)) {
		if err := ctx.Err(); err != nil {
			return err
		}

		buffers, err := client.Fetch(seqSet, fetchOptions).Collect()
		if err != nil {
			return fmt.Errorf("fetch %s: %w", seqSet, err)
		}

		for _, buf := range buffers {
			raw := buf.FindBodySection(section)
			if raw == nil {
				return fmt.Errorf("fetch %s: message %d returned no body", seqSet, buf.SeqNum)
			}

			item := newItem(raw, selected.UIDValidity, buf.UID, buf.InternalDate)
			if item.Err != nil && f.logger != nil {
				f.logger.Debug("imap message parsed partially", "messageID", item.Message.ID, "err", item.Err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- item:
			}
		}
	}

	return nil
}

// newItem parses raw and names it after the mailbox UID, which stays stable
// as long as the UIDVALIDITY does. The server's internal date stands in for
// a missing or unparseable Date header.
func newItem(raw []byte, uidValidity uint32, uid imapv2.UID, internalDate time.Time) model.Item {
	id := fmt.Sprintf("%d-%d", uidValidity, uid)
	item := runner.NewItem(raw, id)
	if item.Message.ReceivedAt.IsZero() {
		item.Message.ReceivedAt = internalDate
	}
	if item.Err != nil {
		item.Err = fmt.Errorf("uid %d: %w", uid, item.Err)
	}
	return item
}

// batches splits the sequence numbers 1..total into ranges of at most size.
func batches(total, size uint32) []imapv2.SeqSet {
	var sets []imapv2.SeqSet
	for start := uint32(1); start <= total; start += size {
		stop := start + size - 1
		if stop > total {
			stop = total
		}
		var set imapv2.SeqSet
		set.AddRange(start, stop)
		sets = append(sets, set)
	}
	return sets
}

func (f *Fetcher) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(f.opts.Host, strconv.Itoa(f.opts.Port))
	options := &imapclient.Options{}

	if f.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         f.opts.Host,
			InsecureSkipVerify: f.opts.InsecureSkipVerify,
		}
	}

	var (
		client *imapclient.Client
		err    error
	)

	if f.opts.UseTLS {
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(f.opts.Username, f.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if f.logger != nil {
		f.logger.Debug("imap connection established", "address", address, "user", f.opts.Username, "mailbox", f.mailbox(), "tls", f.opts.UseTLS)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if f.logger != nil {
					f.logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && f.logger != nil {
			f.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (f *Fetcher) mailbox() string {
	if f.opts.Mailbox == "" {
		return "INBOX"
	}
	return f.opts.Mailbox
}
