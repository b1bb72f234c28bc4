package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhcgn/rawmail/config"
	"github.com/dhcgn/rawmail/filter"
	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/state"
	"github.com/dhcgn/rawmail/stats"
)

var ErrMessageIDMissing = errors.New("parsed message missing id")

type StageFunc func(context.Context) error

// Runner wires a source stage, the dedupe/filter bridge and a sink stage
// together. Sources write to SourceWriter and call CloseSource when done;
// sinks drain Parsed.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	items  chan model.Item
	parsed chan model.Item
	events chan stats.Event

	tracker state.Tracker
	filter  *filter.Filter

	subsMu sync.Mutex
	subs   []chan stats.Event

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSourceOnce sync.Once
	closeParsedOnce sync.Once
	closeEventsOnce sync.Once
	since           time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}

	tracker, err := state.New(cfg.StateBackend, cfg.StateDir, !cfg.DryRun)
	if err != nil {
		return nil, fmt.Errorf("state tracker: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		items:   make(chan model.Item, 32),
		parsed:  make(chan model.Item, 32),
		events:  make(chan stats.Event, 128),
		tracker: tracker,
		filter:  f,
	}

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) SourceWriter() chan<- model.Item {
	return r.items
}

func (r *Runner) CloseSource() {
	r.closeSourceOnce.Do(func() {
		close(r.items)
	})
}

// Parsed yields the messages that passed deduplication and filtering.
func (r *Runner) Parsed() <-chan model.Item {
	return r.parsed
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

// SubscribeStats registers fn to receive every pipeline event. Each subscriber
// gets its own copy of the stream. Subscribe before calling Start.
func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	ch := make(chan stats.Event, 64)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start blocks until every stage and stats subscriber has finished and
// returns the first stage error.
func (r *Runner) Start() error {
	r.since = time.Now()

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		r.dispatch()
	}()

	r.workWG.Wait()
	r.closeEvents()
	<-dispatched
	r.statsWG.Wait()

	r.cancel()

	processed := r.tracker.Snapshot().Processed
	closeErr := r.tracker.Close()

	r.errMu.Lock()
	err := r.err
	r.errMu.Unlock()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("close state: %w", closeErr)
	}

	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration, "processed", processed)
	return nil
}

// Abort tears down a pipeline that could not be fully wired. It records err,
// lets the registered stages unwind and returns err.
func (r *Runner) Abort(err error) error {
	r.fail(err)
	r.CloseSource()
	return r.Start()
}

func (r *Runner) dispatch() {
	r.subsMu.Lock()
	subs := append([]chan stats.Event(nil), r.subs...)
	r.subsMu.Unlock()
	defer func() {
		for _, ch := range subs {
			close(ch)
		}
	}()

	for evt := range r.events {
		for _, ch := range subs {
			select {
			case <-r.ctx.Done():
			case ch <- evt:
			}
		}
	}
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeParsed()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-r.items:
			if !ok {
				return nil
			}

			stage := stats.Stage(r.cfg.Source)

			// Without a message the source itself failed; nothing can be forwarded.
			if item.Message == nil {
				err := item.Err
				if err == nil {
					err = errors.New("source produced an empty item")
				}
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeError, Err: err})
				r.fail(fmt.Errorf("%s source: %w", stage, err))
				continue
			}

			msg := item.Message
			r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeScanned, MessageID: msg.ID, Size: item.Size})

			if msg.ID == "" {
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeError, Err: ErrMessageIDMissing})
				r.fail(ErrMessageIDMissing)
				continue
			}

			if item.Err != nil {
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeParseFailed, MessageID: msg.ID, Err: item.Err})
				r.logger.Warn("message parsed partially", "messageID", msg.ID, "err", item.Err)
			}

			if r.tracker.Seen(item.Hash) {
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeDuplicate, MessageID: msg.ID})
				continue
			}

			if !r.filter.Allows(msg) {
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeFiltered, MessageID: msg.ID})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.parsed <- item:
				r.EmitEvent(stats.Event{Stage: stage, Type: stats.EventTypeEnqueued, MessageID: msg.ID})
			}
		}
	}
}

func (r *Runner) closeParsed() {
	r.closeParsedOnce.Do(func() {
		close(r.parsed)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
