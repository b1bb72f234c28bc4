package progress

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/pterm/pterm"

	"github.com/dhcgn/rawmail/stats"
)

// Bar shows a progress bar for a pipeline run. It writes to stderr so that
// exported messages on stdout stay clean.
type Bar struct {
	pb          *pterm.ProgressbarPrinter
	out         io.Writer
	total       int
	alreadyDone int
	mu          sync.Mutex
	enabled     bool
}

// New starts a progress bar over total messages. A disabled bar ignores all
// updates.
func New(total, alreadyDone int, enabled bool) *Bar {
	bar := &Bar{
		out:         os.Stderr,
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled && total > 0,
	}
	if !bar.enabled {
		return bar
	}

	info := pterm.Info.WithWriter(bar.out)
	info.Printf("Total messages: %d\n", total)
	info.Printf("Already parsed: %d\n", alreadyDone)
	pterm.Fprintln(bar.out)

	pb, _ := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle("Parsing messages").
		WithWriter(bar.out).
		Start()
	bar.pb = pb

	return bar
}

// Update advances the bar for every scanned message and surfaces failures
// above it.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.pb.Increment()
		if evt.MessageID != "" {
			b.pb.UpdateTitle("Parsing: " + truncate(evt.MessageID, 40))
		}
	case stats.EventTypeParseFailed:
		if evt.Err != nil {
			pterm.Warning.WithWriter(b.out).Printf("%s: %v\n", evt.MessageID, evt.Err)
		}
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.WithWriter(b.out).Printf("Error: %v\n", evt.Err)
		}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}
	_, _ = b.pb.Stop()
}

// Subscriber feeds pipeline events into the bar until the stream ends.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	defer b.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// Reporter prints a summary table once the pipeline is done.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	out       io.Writer
	started   time.Time
}

// NewReporter subscribes the bar and a summary collector to stream. It does
// nothing when the bar is disabled.
func NewReporter(stream stats.EventStream, bar *Bar) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		out:       os.Stderr,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress-bar", bar.Subscriber)
		stream.SubscribeStats("progress-stats", reporter.collect)
	}

	return reporter
}

func (r *Reporter) collect(ctx context.Context, events <-chan stats.Event) error {
	r.collector.Run(ctx, events)
	r.Print(r.collector.Snapshot(), time.Since(r.started))
	return nil
}

// Print writes summary to the reporter's output.
func (r *Reporter) Print(summary stats.Summary, duration time.Duration) {
	info := pterm.Info.WithWriter(r.out)

	pterm.Fprintln(r.out)
	pterm.Fprintln(r.out, pterm.Bold.Sprint("Summary Statistics"))
	info.Printf("Duration: %v\n", duration.Round(time.Millisecond))
	info.Printf("Scanned: %d (%s)\n", summary.Scanned, units.HumanSize(float64(summary.Bytes)))
	info.Printf("Parsed partially: %d\n", summary.ParseFailed)
	info.Printf("Filtered: %d\n", summary.Filtered)
	info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
	info.Printf("Exported: %d\n", summary.Exported)
	info.Printf("Dry-run exported: %d\n", summary.DryRunExported)
	info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.WithWriter(r.out).Printf("Last error: %v\n", summary.LastError)
	}
}
