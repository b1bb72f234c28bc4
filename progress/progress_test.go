package progress

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pterm/pterm"

	"github.com/dhcgn/rawmail/stats"
)

type stream struct {
	names []string
}

func (s *stream) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	s.names = append(s.names, name)
}

func TestDisabledBarIgnoresEvents(t *testing.T) {
	bar := New(10, 0, false)
	bar.Update(stats.Event{Type: stats.EventTypeScanned, MessageID: "a"})
	bar.Stop()

	if bar.pb != nil {
		t.Error("disabled bar should not start a progress bar")
	}

	s := &stream{}
	NewReporter(s, bar)
	if len(s.names) != 0 {
		t.Errorf("disabled reporter subscribed %v", s.names)
	}
}

func TestEmptyArchiveDisablesBar(t *testing.T) {
	if New(0, 0, true).enabled {
		t.Error("a bar over zero messages should be disabled")
	}
}

func TestReporterPrint(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	var buf bytes.Buffer
	r := &Reporter{out: &buf}
	r.Print(stats.Summary{
		Scanned:     2,
		Bytes:       2048,
		ParseFailed: 1,
		Exported:    1,
		LastError:   errors.New("boom"),
	}, 1500*time.Millisecond)

	out := buf.String()
	for _, want := range []string{"Summary Statistics", "Scanned: 2 (2.048kB)", "Parsed partially: 1", "Exported: 1", "Last error: boom"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	long := strings.Repeat("x", 50)
	if got := truncate(long, 40); len(got) != 40 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q", got)
	}
}
