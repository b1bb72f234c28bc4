package mbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/parser"
	"github.com/dhcgn/rawmail/runner"
)

const archive = `From jane@example.com Mon Jan  1 10:00:00 2024
Message-Id: <first@example.com>
From: Jane Doe <jane@example.com>
Subject: =?UTF-8?B?SGVsbG8=?=
Date: Mon, 1 Jan 2024 10:00:00 +0000
Content-Type: text/plain; charset=UTF-8

first body

From john@example.com Mon Jan  1 11:00:00 2024
From: john@example.com
Subject: parts
Content-Type: multipart/alternative; boundary="b1"

--b1
Content-Type: text/plain; charset=UTF-8
Content-Transfer-Encoding: base64

c2Vjb25kIGJvZHk=
--b1
Content-Type: text/html; charset=UTF-8

<p>second</p>
--b1--

From broken@example.com Mon Jan  1 12:00:00 2024
From: broken@example.com
Subject: no type

missing content type
`

func writeArchive(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mbox")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func collect(t *testing.T, path string) ([]model.Item, error) {
	t.Helper()
	reader, err := NewReader(Options{Path: path}, nil)
	if err != nil {
		t.Fatalf("Failed to create reader: %v", err)
	}

	out := make(chan model.Item, 10)
	done := make(chan error, 1)
	go func() {
		done <- reader.Stream(context.Background(), out)
		close(out)
	}()

	var items []model.Item
	for item := range out {
		items = append(items, item)
	}
	return items, <-done
}

func TestStream(t *testing.T) {
	items, err := collect(t, writeArchive(t, archive))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(items))
	}

	first := items[0]
	if first.Err != nil {
		t.Fatalf("first message error = %v", first.Err)
	}
	if first.Message.ID != "first@example.com" {
		t.Errorf("ID = %q, want Message-Id value", first.Message.ID)
	}
	if first.Message.Subject() != "Hello" || first.Message.FromName != "Jane Doe" {
		t.Errorf("subject = %q fromName = %q", first.Message.Subject(), first.Message.FromName)
	}
	if first.Message.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should be set from Date")
	}
	if first.Hash != runner.Hash([]byte(first.Message.Raw)) || first.Size != int64(len(first.Message.Raw)) {
		t.Errorf("hash/size do not describe the raw message")
	}

	second := items[1]
	if second.Err != nil {
		t.Fatalf("second message error = %v", second.Err)
	}
	wantID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(second.Message.Raw)).String()
	if second.Message.ID != wantID {
		t.Errorf("ID = %q, want derived %q", second.Message.ID, wantID)
	}
	parts, ok := second.Message.Content.(model.Parts)
	if !ok || len(parts) != 2 {
		t.Fatalf("Content = %#v, want two parts", second.Message.Content)
	}
	if got := strings.TrimSpace(string(parts[0].Content.(model.Text))); got != "second body" {
		t.Errorf("first part = %q", got)
	}

	third := items[2]
	if !errors.Is(third.Err, parser.ErrMissingContentType) {
		t.Errorf("third message error = %v, want ErrMissingContentType", third.Err)
	}
	if third.Message == nil || third.Message.Subject() != "no type" {
		t.Error("third message should carry the partially parsed headers")
	}
}

func TestStreamDeterministicIDs(t *testing.T) {
	path := writeArchive(t, archive)
	a, err := collect(t, path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := collect(t, path)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a {
		if a[i].Message.ID != b[i].Message.ID || a[i].Hash != b[i].Hash {
			t.Errorf("message %d: ids or hashes differ between reads", i)
		}
	}
}

func TestStreamInvalidArchive(t *testing.T) {
	items, err := collect(t, writeArchive(t, "this is not an mbox\n"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(items) != 1 || items[0].Err == nil || items[0].Message != nil {
		t.Fatalf("expected a single error item, got %+v", items)
	}
}

func TestNewReaderEmptyPath(t *testing.T) {
	if _, err := NewReader(Options{Path: "  "}, nil); err == nil {
		t.Error("expected an error for an empty path")
	}
}

func TestReadAndCount(t *testing.T) {
	path := writeArchive(t, archive)

	count, err := CountMessages(path)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if count != 3 {
		t.Errorf("CountMessages() = %d, want 3", count)
	}

	var subjects []string
	failures := 0
	err = Read(path, func(item model.Item) error {
		subjects = append(subjects, item.Message.Subject())
		if item.Err != nil {
			failures++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if strings.Join(subjects, ",") != "Hello,parts,no type" || failures != 1 {
		t.Errorf("subjects = %v failures = %d", subjects, failures)
	}

	stop := errors.New("stop")
	calls := 0
	err = Read(path, func(model.Item) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Read() error = %v after %d calls, want stop after 1", err, calls)
	}
}
