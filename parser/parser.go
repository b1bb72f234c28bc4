package parser

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dhcgn/rawmail/decode"
	"github.com/dhcgn/rawmail/model"
)

var angleAddress = regexp.MustCompile(`<(.*)>`)

// Parse parses a decoded RFC2822 mail. The returned Message is never nil: on
// failure it holds everything recovered before the failing step.
func Parse(raw, id string) (*model.Message, error) {
	m := model.NewMessage(id)
	m.Raw = raw

	header, _, _ := SplitHeaderBody(raw)
	for _, f := range model.EnvelopeFields {
		ExtractHeader(header, f, m.Header)
	}
	arrangeHeaders(m)

	if err := parseContent(raw, m, ""); err != nil {
		return m, err
	}
	return m, nil
}

// arrangeHeaders derives the sender name and address, rewrites from to its
// canonical form and decodes the subject.
func arrangeHeaders(m *model.Message) {
	if from, ok := m.Header.Get(model.FieldFrom); ok {
		name := displayName(from)
		addr := name
		if sub := angleAddress.FindStringSubmatch(from); sub != nil {
			addr = sub[1]
		}
		if name == "" {
			name = addr
		}
		m.FromName = name
		m.FromAddress = addr
		m.Header.Set(model.FieldFrom, fmt.Sprintf(`"%s" <%s>`, name, addr))
	}

	if subject, ok := m.Header.Get(model.FieldSubject); ok {
		m.Header.Set(model.FieldSubject, decode.Words(subject))
	}

	if date, ok := m.Header.Get(model.FieldDate); ok {
		if t, err := mail.ParseDate(date); err == nil {
			m.ReceivedAt = t
		}
	}
}

func displayName(from string) string {
	if decode.HasWords(from) {
		return decode.Words(from)
	}
	name := from
	if i := strings.IndexByte(from, '<'); i >= 0 {
		name = from[:i]
	}
	return strings.Trim(strings.TrimSpace(name), `"`)
}

// parseContent resolves the content type of text and fills m.Content:
// multipart bodies are split into parts, text bodies are decoded when a
// transfer encoding is declared, anything else keeps its raw body.
func parseContent(text string, m *model.Message, path string) error {
	header, body, hasBody := SplitHeaderBody(text)

	if err := resolveContentType(header, m); err != nil {
		return &ParseError{Part: path, Err: err}
	}
	ExtractHeader(header, model.FieldContentTransferEncoding, m.Header)

	switch {
	case m.ContentType.IsMultipart():
		// Without a blank line the delimiters are searched in the whole text.
		if !hasBody {
			body = text
		}
		parts, err := splitMultipart(body, m, path)
		m.Content = parts
		if err != nil {
			return err
		}

	case m.ContentType.IsText():
		enc, ok := m.Header.Get(model.FieldContentTransferEncoding)
		if !ok {
			m.Content = model.Text(body)
			return nil
		}
		if !hasBody {
			return &ParseError{Part: path, Err: ErrMissingBody}
		}
		charset := m.ContentType.Charset()
		if charset == "" {
			charset = "UTF-8"
		}
		m.Content = model.Text(decode.Decode(body, enc, charset))

	default:
		if !hasBody {
			return &ParseError{Part: path, Err: ErrMissingBody}
		}
		m.Content = model.Text(body)
	}
	return nil
}
