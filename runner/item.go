package runner

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/dhcgn/rawmail/model"
	"github.com/dhcgn/rawmail/parser"
)

// NewItem parses one raw mail into a pipeline item. A parse failure is kept
// in Item.Err next to the partially parsed message.
func NewItem(raw []byte, id string) model.Item {
	msg, err := parser.Parse(string(raw), id)
	return model.Item{
		Message: msg,
		Hash:    Hash(raw),
		Size:    int64(len(raw)),
		Err:     err,
	}
}

// Hash is the base64 SHA-256 digest of raw, used as the dedupe key.
func Hash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}
