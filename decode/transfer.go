package decode

import (
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"
)

// Encoding is a normalized transfer-encoding token.
type Encoding int

const (
	// Identity leaves the payload untouched. Unknown tokens map here.
	Identity Encoding = iota
	Base64
	QuotedPrintable
	// Binary covers 7bit, 8bit and binary: one byte per character.
	Binary
)

// ParseEncoding maps a content-transfer-encoding value or an encoded-word
// letter to an Encoding. Matching is case-insensitive.
func ParseEncoding(token string) Encoding {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "b", "base64":
		return Base64
	case "q", "quoted-printable":
		return QuotedPrintable
	case "binary", "7bit", "8bit":
		return Binary
	default:
		return Identity
	}
}

func (e Encoding) String() string {
	switch e {
	case Base64:
		return "base64"
	case QuotedPrintable:
		return "quoted-printable"
	case Binary:
		return "binary"
	default:
		return "identity"
	}
}

// Bytes undoes the transfer encoding named by token. It never fails: input
// that cannot be decoded is returned as-is.
func Bytes(raw, token string) []byte {
	switch ParseEncoding(token) {
	case Base64:
		return decodeBase64(raw)
	case QuotedPrintable:
		return decodeQuotedPrintable(raw)
	default:
		return []byte(raw)
	}
}

// Decode undoes the transfer encoding named by token and converts the result
// from charset to UTF-8. An empty charset leaves the bytes unconverted.
func Decode(raw, token, charset string) string {
	return ToUTF8(Bytes(raw, token), charset)
}

// decodeBase64 accepts the standard and URL-safe alphabets, ignores line
// breaks and any other foreign byte, and stops at the first padding byte.
func decodeBase64(raw string) []byte {
	clean := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			clean = append(clean, c)
		case c == '-':
			clean = append(clean, '+')
		case c == '_':
			clean = append(clean, '/')
		case c == '=':
			i = len(raw)
		}
	}
	// A single dangling sextet carries no complete byte.
	if len(clean)%4 == 1 {
		clean = clean[:len(clean)-1]
	}

	out := make([]byte, base64.RawStdEncoding.DecodedLen(len(clean)))
	n, _ := base64.RawStdEncoding.Decode(out, clean)
	return out[:n]
}

func decodeQuotedPrintable(raw string) []byte {
	out, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(raw)))
	if err != nil && len(out) == 0 {
		return []byte(raw)
	}
	return out
}
