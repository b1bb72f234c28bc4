package filter

import (
	"testing"

	"github.com/dhcgn/rawmail/model"
)

func newMessage(subject, from, body string) *model.Message {
	m := model.NewMessage("id")
	m.Header.Set(model.FieldSubject, subject)
	m.Header.Set(model.FieldFrom, from)
	m.ContentType = &model.ContentType{Type: "text/plain"}
	m.Content = model.Text(body)
	return m
}

func TestFilter_Allows_IncludeMode(t *testing.T) {
	opts := Options{
		IncludeHeader: []string{"(?i)subject: Test"},
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(newMessage("Test Message", "sender@example.com", "This is the message body")) {
		t.Error("Expected message to be allowed (header matches)")
	}

	if f.Allows(newMessage("Other", "sender@example.com", "This is the message body")) {
		t.Error("Expected message to be filtered out (header doesn't match)")
	}
}

func TestFilter_Allows_ExcludeMode(t *testing.T) {
	opts := Options{
		ExcludeHeader: []string{"spam"},
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(newMessage("Normal Message", "sender@example.com", "body")) {
		t.Error("Expected message to be allowed (no spam)")
	}

	if f.Allows(newMessage("This is spam", "spammer@example.com", "body")) {
		t.Error("Expected message to be filtered out (contains spam)")
	}
}

func TestFilter_MutuallyExclusive(t *testing.T) {
	opts := Options{
		IncludeHeader: []string{"test"},
		ExcludeHeader: []string{"spam"},
	}
	_, err := New(opts)
	if err == nil {
		t.Error("Expected error when both include and exclude are specified")
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := New(Options{IncludeBody: []string{"("}})
	if err == nil {
		t.Error("Expected error for an invalid regex")
	}
}

func TestFilter_NoFilters(t *testing.T) {
	f, err := New(Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(newMessage("Any Message", "a@example.com", "Any body content")) {
		t.Error("Expected message to be allowed when no filters are active")
	}
}

func TestFilter_BodyFiltering(t *testing.T) {
	opts := Options{
		IncludeBody: []string{"important"},
	}
	f, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if !f.Allows(newMessage("Message", "a@example.com", "This is an important message")) {
		t.Error("Expected message to be allowed (body matches)")
	}

	if f.Allows(newMessage("Message", "a@example.com", "This is a regular message")) {
		t.Error("Expected message to be filtered out (body doesn't match)")
	}
}

func TestFilter_BodyIgnoresAttachments(t *testing.T) {
	root := model.NewMessage("id")
	root.ContentType = &model.ContentType{Type: "multipart/mixed"}
	text := root.NewPart("")
	text.ContentType = &model.ContentType{Type: "text/plain"}
	text.Content = model.Text("hello")
	file := root.NewPart("")
	file.ContentType = &model.ContentType{Type: "application/octet-stream"}
	file.Content = model.Text("c2VjcmV0")
	root.Content = model.Parts{text, file}

	got := BodyText(root)
	if got != "hello\n" {
		t.Errorf("BodyText() = %q, want %q", got, "hello\n")
	}
}

func TestHeaderText(t *testing.T) {
	m := newMessage("Hi", "a@example.com", "")
	want := "from: a@example.com\nsubject: Hi\n"
	if got := HeaderText(m); got != want {
		t.Errorf("HeaderText() = %q, want %q", got, want)
	}
}

func TestFilter_Stats(t *testing.T) {
	f, err := New(Options{ExcludeHeader: []string{"spam", "junk"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	f.Allows(newMessage("spam one", "a@example.com", ""))
	f.Allows(newMessage("spam two", "a@example.com", ""))
	f.Allows(newMessage("clean", "a@example.com", ""))

	st := f.Stats()
	if len(st.ExcludeHeaderPatterns) != 2 {
		t.Fatalf("ExcludeHeaderPatterns = %v", st.ExcludeHeaderPatterns)
	}
	if st.ExcludeHeaderHits["spam"] != 2 || st.ExcludeHeaderHits["junk"] != 0 {
		t.Errorf("ExcludeHeaderHits = %v", st.ExcludeHeaderHits)
	}
	if len(st.IncludeBodyPatterns) != 0 {
		t.Errorf("IncludeBodyPatterns = %v", st.IncludeBodyPatterns)
	}
}
