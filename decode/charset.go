package decode

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/korean"
)

var (
	utf8Pattern      = regexp.MustCompile(`(?i)UTF-?8`)
	ksc56011987Alias = regexp.MustCompile(`(?i)KS_C_5601-1987`)
	kscAlias         = regexp.MustCompile(`(?i)KSC5601|KSC5636`)
)

// NormalizeCharset rewrites legacy Korean charset labels mail clients still
// emit to the names the converter understands.
func NormalizeCharset(name string) string {
	name = strings.TrimSpace(name)
	switch {
	case ksc56011987Alias.MatchString(name):
		return "CP949"
	case kscAlias.MatchString(name):
		return "EUC-KR"
	}
	return name
}

// IsUTF8 reports whether name is a UTF-8 variant.
func IsUTF8(name string) bool {
	return utf8Pattern.MatchString(name)
}

// lookup resolves a charset label to an encoding, or nil when no table knows
// it. The x/text EUC-KR decoder is the CP949 superset.
func lookup(name string) encoding.Encoding {
	switch strings.ToUpper(name) {
	case "CP949", "EUC-KR", "UHC", "WINDOWS-949":
		return korean.EUCKR
	}
	if enc, err := htmlindex.Get(name); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.MIME.Encoding(name); err == nil && enc != nil {
		return enc
	}
	if enc, err := ianaindex.IANA.Encoding(name); err == nil && enc != nil {
		return enc
	}
	return nil
}

// ToUTF8 converts b from the named charset to a UTF-8 string. An empty name
// returns b unconverted. Unknown charsets pass the bytes through; bytes that
// do not decode become U+FFFD. It never fails.
func ToUTF8(b []byte, name string) string {
	name = NormalizeCharset(name)
	if name == "" {
		return string(b)
	}
	if IsUTF8(name) {
		return strings.ToValidUTF8(string(b), string(utf8.RuneError))
	}

	if enc := lookup(name); enc != nil {
		out, err := enc.NewDecoder().Bytes(b)
		if err == nil {
			return strings.ToValidUTF8(string(out), string(utf8.RuneError))
		}
	}

	r, err := charset.Reader(name, bytes.NewReader(b))
	if err == nil {
		if out, err := io.ReadAll(r); err == nil {
			return strings.ToValidUTF8(string(out), string(utf8.RuneError))
		}
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
