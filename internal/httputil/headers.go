// Package httputil holds the header and filename plumbing used by the
// probe.
package httputil

import (
	"net/http"
	"strconv"
	"strings"
)

// Headers is a case-insensitive header map: keys are stored lowercased and
// values trimmed, matching what a raw header callback would accumulate.
type Headers map[string]string

// NewHeaders builds a Headers map from a parsed http.Header. Only the first
// value of each key is kept.
func NewHeaders(h http.Header) Headers {
	m := make(Headers, len(h))
	for k, vs := range h {
		if len(vs) == 0 {
			continue
		}
		m[strings.ToLower(k)] = strings.TrimSpace(vs[0])
	}
	return m
}

// AddRawLine parses one raw "Key: Value" header line into the map. Lines
// without a colon (status lines, blank terminators) are ignored.
func (h Headers) AddRawLine(line string) {
	line = strings.TrimSpace(line)
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return
	}
	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	h[key] = strings.TrimSpace(line[idx+1:])
}

// Get returns the value for a key, case-insensitively.
func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

// ContentLength returns the parsed Content-Length, or -1 when the header is
// absent or malformed.
func (h Headers) ContentLength() int64 {
	v := h.Get("Content-Length")
	if v == "" {
		return -1
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return -1
	}
	return n
}

// SupportsRanges reports whether the origin advertises byte-range support.
// A missing Accept-Ranges header counts as unsupported, as does the literal
// value "none".
func (h Headers) SupportsRanges() bool {
	v, ok := h["accept-ranges"]
	if !ok {
		return false
	}
	return strings.ToLower(v) != "none"
}
