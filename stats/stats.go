package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	units "github.com/docker/go-units"
)

type Stage string

const (
	StageMbox   Stage = "mbox"
	StageIMAP   Stage = "imap"
	StageExport Stage = "export"
)

type EventType string

const (
	EventTypeScanned      EventType = "scanned"
	EventTypeParseFailed  EventType = "parse_failed"
	EventTypeFiltered     EventType = "filtered"
	EventTypeDuplicate    EventType = "duplicate"
	EventTypeEnqueued     EventType = "enqueued"
	EventTypeExported     EventType = "exported"
	EventTypeDryRunExport EventType = "dry_run_exported"
	EventTypeError        EventType = "error"
)

type Event struct {
	Stage     Stage
	Type      EventType
	MessageID string
	// Size is the raw message size in bytes, set on scanned events.
	Size   int64
	Err    error
	Detail string
}

// Summary is the outcome of one pipeline run.
type Summary struct {
	Scanned        int
	ParseFailed    int
	Filtered       int
	Duplicates     int
	Enqueued       int
	Exported       int
	DryRunExported int
	Errors         int
	Bytes          int64
	// ErrorsByStage counts error events per stage; nil when there were none.
	ErrorsByStage map[Stage]int
	LastError     error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"scanned", s.Scanned,
		"size", units.HumanSize(float64(s.Bytes)),
		"parseFailed", s.ParseFailed,
		"filtered", s.Filtered,
		"duplicates", s.Duplicates,
		"exported", s.Exported,
		"dryRunExported", s.DryRunExported,
		"errors", s.Errors,
	}
	for stage, n := range s.ErrorsByStage {
		attrs = append(attrs, string(stage)+"Errors", n)
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

// Collector tallies events into a Summary.
type Collector struct {
	mu          sync.Mutex
	counts      map[EventType]int
	stageErrors map[Stage]int
	bytes       int64
	lastErr     error
}

func NewCollector() *Collector {
	return &Collector{
		counts:      make(map[EventType]int),
		stageErrors: make(map[Stage]int),
	}
}

// Run consumes events until the channel is closed or ctx is done.
func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Add(evt)
		}
	}
}

func (c *Collector) Add(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[evt.Type]++
	switch evt.Type {
	case EventTypeScanned:
		c.bytes += evt.Size
	case EventTypeError:
		c.stageErrors[evt.Stage]++
	}
	if evt.Err != nil && (evt.Type == EventTypeError || evt.Type == EventTypeParseFailed) {
		c.lastErr = evt.Err
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Scanned:        c.counts[EventTypeScanned],
		ParseFailed:    c.counts[EventTypeParseFailed],
		Filtered:       c.counts[EventTypeFiltered],
		Duplicates:     c.counts[EventTypeDuplicate],
		Enqueued:       c.counts[EventTypeEnqueued],
		Exported:       c.counts[EventTypeExported],
		DryRunExported: c.counts[EventTypeDryRunExport],
		Errors:         c.counts[EventTypeError],
		Bytes:          c.bytes,
		LastError:      c.lastErr,
	}
	if len(c.stageErrors) > 0 {
		s.ErrorsByStage = make(map[Stage]int, len(c.stageErrors))
		for stage, n := range c.stageErrors {
			s.ErrorsByStage[stage] = n
		}
	}
	return s
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

// Reporter logs the summary of a run once the event stream ends.
type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	attrs := append(r.collector.Snapshot().LogAttrs(), "duration", time.Since(r.started))
	if err := ctx.Err(); err != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", err)...)
		}
		return err
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}
