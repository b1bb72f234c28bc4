package decode

import (
	"regexp"
	"strings"
)

// encodedWord matches one RFC2047 token: =?charset?B|Q?payload?=
var encodedWord = regexp.MustCompile(`(?i)=\?(.*?)\?([BQ])\?(\S+?)\?=`)

// Words decodes the encoded words in s and returns their concatenation in
// order of appearance. Literal text around and between the tokens is dropped.
// If s holds no token, or the tokens decode to nothing, s is returned as-is.
func Words(s string) string {
	var b strings.Builder
	for _, m := range encodedWord.FindAllStringSubmatch(s, -1) {
		b.WriteString(Decode(m[3], m[2], strings.ToUpper(m[1])))
	}
	if b.Len() == 0 {
		return s
	}
	return b.String()
}

// HasWords reports whether s contains at least one encoded word.
func HasWords(s string) bool {
	return encodedWord.MatchString(s)
}
