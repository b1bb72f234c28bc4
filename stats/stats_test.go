package stats

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestCollectorSummary(t *testing.T) {
	events := make(chan Event, 16)
	failure := errors.New("boom")

	events <- Event{Stage: StageMbox, Type: EventTypeScanned, MessageID: "a", Size: 1024}
	events <- Event{Stage: StageMbox, Type: EventTypeScanned, MessageID: "b", Size: 2048}
	events <- Event{Stage: StageMbox, Type: EventTypeParseFailed, MessageID: "b", Err: failure}
	events <- Event{Stage: StageMbox, Type: EventTypeFiltered, MessageID: "c"}
	events <- Event{Stage: StageMbox, Type: EventTypeDuplicate, MessageID: "d"}
	events <- Event{Stage: StageMbox, Type: EventTypeEnqueued, MessageID: "a"}
	events <- Event{Stage: StageExport, Type: EventTypeExported, MessageID: "a"}
	events <- Event{Stage: StageExport, Type: EventTypeDryRunExport, MessageID: "b"}
	events <- Event{Stage: StageExport, Type: EventTypeError, MessageID: "e", Err: failure}
	close(events)

	c := NewCollector()
	c.Run(context.Background(), events)
	got := c.Snapshot()

	if got.Scanned != 2 || got.Bytes != 3072 {
		t.Errorf("scanned = %d bytes = %d, want 2 and 3072", got.Scanned, got.Bytes)
	}
	if got.ParseFailed != 1 || !errors.Is(got.LastError, failure) {
		t.Errorf("parseFailed = %d lastError = %v", got.ParseFailed, got.LastError)
	}
	if got.Filtered != 1 || got.Duplicates != 1 || got.Enqueued != 1 {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.Exported != 1 || got.DryRunExported != 1 || got.Errors != 1 {
		t.Errorf("unexpected summary %+v", got)
	}
	if len(got.ErrorsByStage) != 1 || got.ErrorsByStage[StageExport] != 1 {
		t.Errorf("ErrorsByStage = %v, want export: 1", got.ErrorsByStage)
	}
}

func TestCollectorSnapshotWithoutErrors(t *testing.T) {
	c := NewCollector()
	c.Add(Event{Stage: StageIMAP, Type: EventTypeScanned, Size: 10})
	if got := c.Snapshot(); got.ErrorsByStage != nil || got.LastError != nil {
		t.Errorf("unexpected error fields in %+v", got)
	}
}

func TestSummaryLogAttrs(t *testing.T) {
	attrs := Summary{Scanned: 1, Bytes: 2048}.LogAttrs()

	var size any
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == "size" {
			size = attrs[i+1]
		}
		if attrs[i] == "lastError" {
			t.Error("lastError should be omitted when nil")
		}
	}
	if size != "2.048kB" {
		t.Errorf("size = %v, want 2.048kB", size)
	}
}

func TestPrettyPrintTop(t *testing.T) {
	var buf bytes.Buffer
	PrettyPrintTop(&buf, map[string]int{"b": 2, "a": 2, "c": 5, "d": 1}, 3)

	want := "1. c (5)\n2. a (2)\n3. b (2)\n"
	if buf.String() != want {
		t.Errorf("PrettyPrintTop() = %q, want %q", buf.String(), want)
	}
}

func TestTop(t *testing.T) {
	m := map[string]int{"x": 1, "y": 3, "z": 3}
	tests := []struct {
		name  string
		limit int
		want  []Count
	}{
		{"all", -1, []Count{{"y", 3}, {"z", 3}, {"x", 1}}},
		{"limited", 1, []Count{{"y", 3}}},
		{"zero", 0, []Count{}},
		{"larger than map", 10, []Count{{"y", 3}, {"z", 3}, {"x", 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Top(m, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("Top() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Top()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
