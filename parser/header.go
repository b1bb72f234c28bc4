package parser

import (
	"regexp"
	"strings"

	"github.com/dhcgn/rawmail/model"
)

var (
	// blankLine separates a header block from its body.
	blankLine = regexp.MustCompile(`(?:\r?\n){2,}`)
	// leadingBlankLine marks a part with an empty header block.
	leadingBlankLine = regexp.MustCompile(`^\r?\n`)
	// folding joins a continuation line to the line before it.
	folding = regexp.MustCompile(`\r?\n[ \t]+`)

	headerPatterns = compileHeaderPatterns(
		model.FieldDate,
		model.FieldFrom,
		model.FieldTo,
		model.FieldReplyTo,
		model.FieldCC,
		model.FieldMIMEVersion,
		model.FieldSubject,
		model.FieldContentType,
		model.FieldContentTransferEncoding,
	)
)

func compileHeaderPatterns(fields ...model.Field) map[model.Field]*regexp.Regexp {
	patterns := make(map[model.Field]*regexp.Regexp, len(fields))
	for _, f := range fields {
		patterns[f] = regexp.MustCompile(`(?im)^` + regexp.QuoteMeta(string(f)) + `:[ \t]*(.*(?:\r?\n[ \t].*)*)`)
	}
	return patterns
}

// SplitHeaderBody splits text at the first blank line. Further blank lines
// directly after it belong to the separator. When there is no blank
// line, header is the whole text and ok is false.
func SplitHeaderBody(text string) (header, body string, ok bool) {
	if loc := leadingBlankLine.FindStringIndex(text); loc != nil {
		return "", text[loc[1]:], true
	}
	loc := blankLine.FindStringIndex(text)
	if loc == nil {
		return text, "", false
	}
	return text[:loc[0]], text[loc[1]:], true
}

// ExtractHeader finds the first line of block declaring field and stores its
// trimmed, unfolded value in h. Only the recognized fields can be extracted;
// empty values count as absent.
func ExtractHeader(block string, field model.Field, h model.Header) bool {
	re, ok := headerPatterns[field]
	if !ok {
		return false
	}
	m := re.FindStringSubmatch(block)
	if m == nil {
		return false
	}
	value := strings.TrimSpace(folding.ReplaceAllString(m[1], " "))
	if value == "" {
		return false
	}
	h.Set(field, value)
	return true
}
