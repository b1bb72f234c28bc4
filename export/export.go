// Package export writes parsed messages as JSON lines or a YAML document
// stream and provides the pipeline sink stage doing so.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dhcgn/rawmail/model"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Record is one exported message. Error holds the parse failure, if any;
// Message is then the part of the mail parsed before the failure.
type Record struct {
	ID      string         `json:"id" yaml:"id"`
	Hash    string         `json:"hash,omitempty" yaml:"hash,omitempty"`
	Size    int64          `json:"size,omitempty" yaml:"size,omitempty"`
	Error   string         `json:"error,omitempty" yaml:"error,omitempty"`
	Message *model.Message `json:"message,omitempty" yaml:"message,omitempty"`
}

func NewRecord(item model.Item) Record {
	rec := Record{
		Hash:    item.Hash,
		Size:    item.Size,
		Message: item.Message,
	}
	if item.Message != nil {
		rec.ID = item.Message.ID
	}
	if item.Err != nil {
		rec.Error = item.Err.Error()
	}
	return rec
}

type encoder interface {
	Encode(v any) error
}

// Writer serializes records to an underlying stream. It is safe for
// concurrent use.
type Writer struct {
	mu    sync.Mutex
	buf   *bufio.Writer
	enc   encoder
	yaml  *yaml.Encoder
	count int
}

func NewWriter(w io.Writer, format string) (*Writer, error) {
	buf := bufio.NewWriter(w)
	out := &Writer{buf: buf}

	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		out.enc = enc
	case FormatYAML:
		enc := yaml.NewEncoder(buf)
		enc.SetIndent(2)
		out.enc = enc
		out.yaml = enc
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	return out, nil
}

func (w *Writer) Write(item model.Item) error {
	return w.WriteRecord(NewRecord(item))
}

func (w *Writer) WriteRecord(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode %s: %w", rec.ID, err)
	}
	w.count++
	return nil
}

// Count is the number of records written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close finishes the document stream and flushes buffered output. It does not
// close the underlying writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.yaml != nil {
		if err := w.yaml.Close(); err != nil {
			return fmt.Errorf("close yaml stream: %w", err)
		}
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}
	return nil
}
