package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileName is the JSON-lines state file inside the state directory.
const FileName = "parsed.jsonl"

// FileTracker appends one JSON entry per exported mail to FileName and replays
// the file on open.
type FileTracker struct {
	*MemoryTracker
	path    string
	persist bool

	writeMu sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	enc     *json.Encoder
}

func NewFileTracker(stateDir string, persist bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, FileName),
		persist:       persist,
	}
	if err := tracker.replay(); err != nil {
		return nil, err
	}
	if !persist {
		return tracker, nil
	}

	file, err := os.OpenFile(tracker.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	tracker.file = file
	tracker.buf = bufio.NewWriterSize(file, 64*1024)
	tracker.enc = json.NewEncoder(tracker.buf)
	return tracker, nil
}

func (f *FileTracker) replay() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	dec := json.NewDecoder(bufio.NewReader(file))
	for n := 1; ; n++ {
		var e Entry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse state entry %d: %w", n, err)
		}
		f.put(e)
	}
}

// Record remembers e and, when persisting, appends it to the state file.
// Hashes already known are not written twice.
func (f *FileTracker) Record(e Entry) error {
	if !f.put(e) || !f.persist {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if err := f.enc.Encode(e); err != nil {
		return fmt.Errorf("write state entry: %w", err)
	}
	return nil
}

// Close flushes buffered entries and closes the state file.
func (f *FileTracker) Close() error {
	if f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	err := f.buf.Flush()
	if err != nil {
		err = fmt.Errorf("flush state file: %w", err)
	}
	if serr := f.file.Sync(); serr != nil && err == nil {
		err = fmt.Errorf("sync state file: %w", serr)
	}
	if cerr := f.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close state file: %w", cerr)
	}
	f.file = nil
	return err
}
