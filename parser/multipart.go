package parser

import (
	"strconv"
	"strings"

	"github.com/dhcgn/rawmail/model"
)

// splitMultipart cuts body on the boundary of m and parses every delimited
// segment as a child of m. The preamble before the first delimiter and the
// remainder after the last one are discarded.
func splitMultipart(body string, m *model.Message, path string) (model.Parts, error) {
	boundary := m.ContentType.Boundary()
	if boundary == "" {
		return nil, &ParseError{Part: path, Err: ErrMissingBoundary}
	}

	segments := strings.Split(body, "--"+boundary)
	if len(segments) < 2 {
		return model.Parts{}, nil
	}
	segments = segments[1 : len(segments)-1]

	parts := make(model.Parts, 0, len(segments))
	for i, seg := range segments {
		child := m.NewPart(seg)
		if err := parseContent(segmentText(seg), child, childPath(path, i)); err != nil {
			return parts, err
		}
		parts = append(parts, child)
	}
	return parts, nil
}

// segmentText strips the rest of the delimiter line from the front of seg and
// the line break that belongs to the next delimiter from its end.
func segmentText(seg string) string {
	i := strings.IndexByte(seg, '\n')
	if i < 0 {
		return ""
	}
	seg = seg[i+1:]
	if strings.HasSuffix(seg, "\r\n") {
		return seg[:len(seg)-2]
	}
	return strings.TrimSuffix(seg, "\n")
}

func childPath(parent string, i int) string {
	n := strconv.Itoa(i + 1)
	if parent == "" {
		return n
	}
	return parent + "." + n
}
