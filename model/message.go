package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// Field names a header the parser recognizes. Values are always lowercase.
type Field string

const (
	FieldDate                    Field = "date"
	FieldFrom                    Field = "from"
	FieldTo                      Field = "to"
	FieldReplyTo                 Field = "reply-to"
	FieldCC                      Field = "cc"
	FieldMIMEVersion             Field = "mime-version"
	FieldSubject                 Field = "subject"
	FieldContentType             Field = "content-type"
	FieldContentTransferEncoding Field = "content-transfer-encoding"
)

// EnvelopeFields are the headers read once from the top-level header block.
var EnvelopeFields = []Field{
	FieldDate,
	FieldTo,
	FieldReplyTo,
	FieldCC,
	FieldMIMEVersion,
	FieldFrom,
	FieldSubject,
}

// Header holds the recognized header values of a message. A key is present
// only if the header existed in the raw text.
type Header map[Field]string

func (h Header) Get(f Field) (string, bool) {
	v, ok := h[f]
	return v, ok
}

func (h Header) Set(f Field, value string) {
	h[f] = value
}

func (h Header) Del(f Field) {
	delete(h, f)
}

// Clone returns a shallow copy of h.
func (h Header) Clone() Header {
	c := make(Header, len(h))
	for k, v := range h {
		c[k] = v
	}
	return c
}

// Message is one parsed mail or mail part.
type Message struct {
	// ID is the mail-store identifier of the root message, inherited by parts.
	ID     string
	Header Header

	FromName    string
	FromAddress string

	// ContentType is nil until the content-type header has been parsed.
	ContentType *ContentType
	Content     Content

	ReceivedAt time.Time
	// Raw is the decoded mail for a root message or the boundary-delimited
	// segment for a part.
	Raw string
}

// NewMessage returns an empty Message carrying id.
func NewMessage(id string) *Message {
	return &Message{ID: id, Header: make(Header)}
}

// NewPart returns a child of m seeded with a copy of every field present on m
// except the content, content type and transfer encoding, which a part
// derives from its own header block.
func (m *Message) NewPart(raw string) *Message {
	h := m.Header.Clone()
	h.Del(FieldContentType)
	h.Del(FieldContentTransferEncoding)
	return &Message{
		ID:          m.ID,
		Header:      h,
		FromName:    m.FromName,
		FromAddress: m.FromAddress,
		ReceivedAt:  m.ReceivedAt,
		Raw:         raw,
	}
}

func (m *Message) Date() string        { return m.Header[FieldDate] }
func (m *Message) From() string        { return m.Header[FieldFrom] }
func (m *Message) To() string          { return m.Header[FieldTo] }
func (m *Message) ReplyTo() string     { return m.Header[FieldReplyTo] }
func (m *Message) CC() string          { return m.Header[FieldCC] }
func (m *Message) MIMEVersion() string { return m.Header[FieldMIMEVersion] }
func (m *Message) Subject() string     { return m.Header[FieldSubject] }

// TransferEncoding returns the declared content-transfer-encoding, if any.
func (m *Message) TransferEncoding() string {
	return m.Header[FieldContentTransferEncoding]
}

// IsMultipart reports whether the content of m is a list of parts.
func (m *Message) IsMultipart() bool {
	_, ok := m.Content.(Parts)
	return ok
}

// Walk visits m and every nested part depth-first, in body order. Returning
// false from fn stops the walk.
func (m *Message) Walk(fn func(*Message) bool) bool {
	if !fn(m) {
		return false
	}
	if parts, ok := m.Content.(Parts); ok {
		for _, p := range parts {
			if !p.Walk(fn) {
				return false
			}
		}
	}
	return true
}

// TextParts returns the leaf parts whose primary type is text/*.
func (m *Message) TextParts() []*Message {
	var out []*Message
	m.Walk(func(p *Message) bool {
		if _, ok := p.Content.(Text); ok && p.ContentType != nil && p.ContentType.IsText() {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Attachments returns the leaf parts that are neither text nor multipart.
// Their content is left transfer-encoded.
func (m *Message) Attachments() []*Message {
	var out []*Message
	m.Walk(func(p *Message) bool {
		if _, ok := p.Content.(Text); ok && p.ContentType != nil && !p.ContentType.IsText() {
			out = append(out, p)
		}
		return true
	})
	return out
}

// Fields renders m as a generic map with lowercase keys, the shape used by
// the JSON and YAML encodings.
func (m *Message) Fields() map[string]any {
	out := map[string]any{"messageid": m.ID}
	for k, v := range m.Header {
		if k == FieldContentType && m.ContentType != nil {
			continue
		}
		out[string(k)] = v
	}
	if _, ok := m.Header[FieldFrom]; ok {
		out["fromname"] = m.FromName
		out["fromaddress"] = m.FromAddress
	}
	if m.ContentType != nil {
		out[string(FieldContentType)] = m.ContentType.Fields()
	}
	switch c := m.Content.(type) {
	case Text:
		out["content"] = string(c)
	case Parts:
		parts := make([]map[string]any, 0, len(c))
		for _, p := range c {
			parts = append(parts, p.Fields())
		}
		out["content"] = parts
	}
	return out
}

// MarshalJSON leaves <, > and & unescaped so mail text reads as sent.
func (m *Message) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m.Fields()); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (m *Message) MarshalYAML() (interface{}, error) {
	return m.Fields(), nil
}
