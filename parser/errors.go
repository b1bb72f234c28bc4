package parser

import (
	"errors"
	"fmt"
)

var (
	ErrMissingContentType = errors.New("missing or empty content-type")
	ErrMissingBody        = errors.New("no blank line between header and body")
	ErrMissingBoundary    = errors.New("multipart content-type without boundary")
)

// ParseError reports where in the part tree parsing stopped. Part is a
// dotted path of 1-based part indexes; it is empty for the top-level message.
type ParseError struct {
	Part string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("parse message: %v", e.Err)
	}
	return fmt.Sprintf("parse part %s: %v", e.Part, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
