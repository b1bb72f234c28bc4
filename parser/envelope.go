package parser

import (
	"github.com/dhcgn/rawmail/decode"
	"github.com/dhcgn/rawmail/model"
)

// Result is the outcome of parsing one mail. Message is never nil; when Err
// is set it holds what was recovered before the failure. Raw is the decoded
// mail text.
type Result struct {
	Message *model.Message
	Raw     string
	Err     error
}

// Callback receives the outcome of a parse. err is nil on success.
type Callback func(err error, msg *model.Message, raw string)

// ParseEnvelope decodes the base64url raw field of env and parses it under
// the envelope's id.
func ParseEnvelope(env model.Envelope) Result {
	return ParseString(env.Raw, env.ID)
}

// ParseString decodes a base64url-encoded raw mail and parses it under id.
func ParseString(encoded, id string) Result {
	raw := string(decode.Bytes(encoded, "B"))
	msg, err := Parse(raw, id)
	return Result{Message: msg, Raw: raw, Err: err}
}

// ParseEnvelopeFunc is ParseEnvelope reporting through cb as well. cb is
// called exactly once; it may be nil.
func ParseEnvelopeFunc(env model.Envelope, cb Callback) *model.Message {
	return deliver(ParseEnvelope(env), cb)
}

// ParseStringFunc is ParseString reporting through cb as well. cb is called
// exactly once; it may be nil.
func ParseStringFunc(encoded, id string, cb Callback) *model.Message {
	return deliver(ParseString(encoded, id), cb)
}

func deliver(res Result, cb Callback) *model.Message {
	if cb != nil {
		cb(res.Err, res.Message, res.Raw)
	}
	return res.Message
}
