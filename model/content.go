package model

import "strings"

// Content is either Text or Parts. Consumers switch on the concrete type.
type Content interface {
	isContent()
}

// Text is the content of a leaf part. For text/* parts it is decoded; for
// other types it is the raw, still transfer-encoded body.
type Text string

// Parts is the content of a multipart message, in body order.
type Parts []*Message

func (Text) isContent()  {}
func (Parts) isContent() {}

// Param is one content-type attribute.
type Param struct {
	Name  string
	Value string
}

// ContentType is a parsed content-type header value.
type ContentType struct {
	// Type is the lowercased primary type, e.g. "text/plain".
	Type string
	// Params keeps attributes in header order. Names are lowercase.
	Params []Param
}

// Param returns the value of the named attribute.
func (c *ContentType) Param(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, p := range c.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces the named attribute or appends it.
func (c *ContentType) Set(name, value string) {
	name = strings.ToLower(name)
	for i := range c.Params {
		if c.Params[i].Name == name {
			c.Params[i].Value = value
			return
		}
	}
	c.Params = append(c.Params, Param{Name: name, Value: value})
}

func (c *ContentType) Charset() string {
	v, _ := c.Param("charset")
	return v
}

func (c *ContentType) Boundary() string {
	v, _ := c.Param("boundary")
	return v
}

func (c *ContentType) IsMultipart() bool {
	return strings.HasPrefix(strings.ToLower(c.Type), "multipart/")
}

func (c *ContentType) IsText() bool {
	return strings.HasPrefix(strings.ToLower(c.Type), "text/")
}

// Fields renders c with the type under "type" and one key per attribute.
func (c *ContentType) Fields() map[string]string {
	out := make(map[string]string, len(c.Params)+1)
	for _, p := range c.Params {
		out[p.Name] = p.Value
	}
	out["type"] = c.Type
	return out
}
