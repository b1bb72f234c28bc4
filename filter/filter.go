package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dhcgn/rawmail/model"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Filter holds compiled regex patterns for filtering parsed messages.
type Filter struct {
	includeMode    bool
	excludeMode    bool
	includeHeader  []*regexp.Regexp
	includeBody    []*regexp.Regexp
	excludeHeader  []*regexp.Regexp
	excludeBody    []*regexp.Regexp
	needHeaderText bool
	needBodyText   bool

	mu   sync.Mutex
	hits map[*regexp.Regexp]int
}

// Stats reports, per configured pattern, how many messages it decided.
type Stats struct {
	IncludeHeaderPatterns []string
	IncludeHeaderHits     map[string]int
	IncludeBodyPatterns   []string
	IncludeBodyHits       map[string]int
	ExcludeHeaderPatterns []string
	ExcludeHeaderHits     map[string]int
	ExcludeBodyPatterns   []string
	ExcludeBodyHits       map[string]int
}

// New creates a new Filter from the provided options.
func New(opts Options) (*Filter, error) {
	includeHeader, err := compilePatterns(opts.IncludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile include-header pattern: %w", err)
	}
	includeBody, err := compilePatterns(opts.IncludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile include-body pattern: %w", err)
	}
	excludeHeader, err := compilePatterns(opts.ExcludeHeader)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-header pattern: %w", err)
	}
	excludeBody, err := compilePatterns(opts.ExcludeBody)
	if err != nil {
		return nil, fmt.Errorf("compile exclude-body pattern: %w", err)
	}

	includeActive := len(includeHeader) > 0 || len(includeBody) > 0
	excludeActive := len(excludeHeader) > 0 || len(excludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	return &Filter{
		includeMode:    includeActive,
		excludeMode:    excludeActive,
		includeHeader:  includeHeader,
		includeBody:    includeBody,
		excludeHeader:  excludeHeader,
		excludeBody:    excludeBody,
		needHeaderText: len(includeHeader) > 0 || len(excludeHeader) > 0,
		needBodyText:   len(includeBody) > 0 || len(excludeBody) > 0,
		hits:           make(map[*regexp.Regexp]int),
	}, nil
}

// Allows returns true if the message passes the filter criteria. Header
// patterns see the recognized headers as "name: value" lines; body patterns
// see the decoded text of every text part.
func (f *Filter) Allows(msg *model.Message) bool {
	var headerText, bodyText string
	if f.needHeaderText {
		headerText = HeaderText(msg)
	}
	if f.needBodyText {
		bodyText = BodyText(msg)
	}

	if f.includeMode {
		matched := f.matchAny(f.includeHeader, headerText) || f.matchAny(f.includeBody, bodyText)
		return matched
	}

	if f.excludeMode {
		if f.matchAny(f.excludeHeader, headerText) || f.matchAny(f.excludeBody, bodyText) {
			return false
		}
	}

	return true
}

// HeaderText renders the recognized headers of msg, one per line, in a
// stable order.
func HeaderText(msg *model.Message) string {
	fields := make([]string, 0, len(msg.Header))
	for k := range msg.Header {
		fields = append(fields, string(k))
	}
	sort.Strings(fields)

	var sb strings.Builder
	for _, k := range fields {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(msg.Header[model.Field(k)])
		sb.WriteString("\n")
	}
	return sb.String()
}

// BodyText joins the decoded content of every text part of msg.
func BodyText(msg *model.Message) string {
	var sb strings.Builder
	for _, p := range msg.TextParts() {
		sb.WriteString(string(p.Content.(model.Text)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// matchAny reports whether any pattern matches text and credits the hit to
// the first matching pattern.
func (f *Filter) matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			f.mu.Lock()
			f.hits[re]++
			f.mu.Unlock()
			return true
		}
	}
	return false
}

// Stats returns a snapshot of the per-pattern hit counts.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	collect := func(patterns []*regexp.Regexp) ([]string, map[string]int) {
		names := make([]string, 0, len(patterns))
		hits := make(map[string]int, len(patterns))
		for _, re := range patterns {
			names = append(names, re.String())
			hits[re.String()] += f.hits[re]
		}
		return names, hits
	}

	var st Stats
	st.IncludeHeaderPatterns, st.IncludeHeaderHits = collect(f.includeHeader)
	st.IncludeBodyPatterns, st.IncludeBodyHits = collect(f.includeBody)
	st.ExcludeHeaderPatterns, st.ExcludeHeaderHits = collect(f.excludeHeader)
	st.ExcludeBodyPatterns, st.ExcludeBodyHits = collect(f.excludeBody)
	return st
}
