package parser

import (
	"regexp"
	"strings"

	"github.com/dhcgn/rawmail/decode"
	"github.com/dhcgn/rawmail/model"
)

var (
	primaryType = regexp.MustCompile(`^\s*([^;\s]+)`)
	attribute   = regexp.MustCompile(`([^=;\s]+)\s*=\s*(?:"([^"]*)"|([^;"\s]+))`)
)

// ParseContentType parses a content-type header value into its primary type
// and attributes. Attribute names are lowercased; values have their encoded
// words decoded so attachment names come out readable.
func ParseContentType(value string) (*model.ContentType, error) {
	loc := primaryType.FindStringSubmatchIndex(value)
	if loc == nil {
		return nil, ErrMissingContentType
	}

	ct := &model.ContentType{Type: strings.ToLower(value[loc[2]:loc[3]])}
	for _, m := range attribute.FindAllStringSubmatch(value[loc[1]:], -1) {
		v := m[2]
		if m[3] != "" {
			v = m[3]
		}
		ct.Set(m[1], decode.Words(v))
	}
	return ct, nil
}

// resolveContentType sets m.ContentType from the header block unless it is
// already set.
func resolveContentType(header string, m *model.Message) error {
	if m.ContentType != nil {
		return nil
	}
	if !ExtractHeader(header, model.FieldContentType, m.Header) {
		return ErrMissingContentType
	}
	raw, _ := m.Header.Get(model.FieldContentType)
	ct, err := ParseContentType(raw)
	if err != nil {
		return err
	}
	m.ContentType = ct
	return nil
}
