package model

// Envelope is a message resource as returned by the mail-store API when
// requested in raw format. Raw is the whole RFC2822 mail, base64url-encoded.
type Envelope struct {
	ID           string   `json:"id"`
	ThreadID     string   `json:"threadId,omitempty"`
	LabelIDs     []string `json:"labelIds,omitempty"`
	Snippet      string   `json:"snippet,omitempty"`
	HistoryID    string   `json:"historyId,omitempty"`
	InternalDate string   `json:"internalDate,omitempty"`
	SizeEstimate int64    `json:"sizeEstimate,omitempty"`
	Raw          string   `json:"raw"`
}

// Item is one message travelling through the pipeline. Err is set when the
// source failed to read or parse the message; Message may still hold what was
// recovered before the failure.
type Item struct {
	Message *Message
	Hash    string
	Size    int64
	Err     error
}
