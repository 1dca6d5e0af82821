// Package request folds parsed input items into a fully-typed request
// configuration: an insertion-ordered header map, a body (JSON, form,
// multipart or raw), and an ordered query-parameter list.
package request

import "net/http"

// headerEntry stores a single header key/value pair with its original casing.
type headerEntry struct {
	key   string
	value string
}

// Headers is an insertion-ordered companion to http.Header that supports
// duplicate names and preserves the exact capitalisation of keys.
//
// Unlike http.Header (a map[string][]string and therefore unordered),
// Headers stores entries in a slice so iteration always returns them in the
// order the user supplied them, and repeated "-H X-Foo:a -H X-Foo:b" style
// items stay distinct entries.
//
// Headers is NOT safe for concurrent mutation.  A request configuration is
// built once before dispatch; concurrent drivers share it and only read it.
type Headers struct {
	entries []headerEntry
}

// Add appends key/value, preserving key casing.  Multiple calls with the
// same key produce multiple entries (equivalent to http.Header.Add).
func (h *Headers) Add(key, value string) {
	h.entries = append(h.entries, headerEntry{key: key, value: value})
}

// Set replaces the first entry whose key matches key (case-insensitively)
// and removes any subsequent duplicates; if no entry matches, Set appends.
func (h *Headers) Set(key, value string) {
	canon := http.CanonicalHeaderKey(key)
	replaced := false
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			if !replaced {
				out = append(out, headerEntry{key: key, value: value})
				replaced = true
			}
		} else {
			out = append(out, e)
		}
	}
	if !replaced {
		out = append(out, headerEntry{key: key, value: value})
	}
	h.entries = out
}

// Del removes all entries whose key matches key (case-insensitively).
func (h *Headers) Del(key string) {
	canon := http.CanonicalHeaderKey(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) != canon {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the first value for key (case-insensitively), or "".
func (h *Headers) Get(key string) string {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return e.value
		}
	}
	return ""
}

// Has reports whether at least one entry matches key.
func (h *Headers) Has(key string) bool {
	canon := http.CanonicalHeaderKey(key)
	for _, e := range h.entries {
		if http.CanonicalHeaderKey(e.key) == canon {
			return true
		}
	}
	return false
}

// Len returns the number of entries, duplicates included.
func (h *Headers) Len() int { return len(h.entries) }

// Clone returns an independent copy of the receiver.
func (h *Headers) Clone() *Headers {
	c := &Headers{entries: make([]headerEntry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// Each calls fn for every entry in insertion order.
func (h *Headers) Each(fn func(key, value string)) {
	for _, e := range h.entries {
		fn(e.key, e.value)
	}
}

// ApplyTo writes every entry into req.Header in insertion order.  Entries
// with the same canonical key accumulate; headers already present in
// req.Header with the same canonical key are replaced.
func (h *Headers) ApplyTo(req *http.Request) {
	for _, e := range h.entries {
		req.Header.Del(e.key)
	}
	for _, e := range h.entries {
		req.Header.Add(e.key, e.value)
	}
}

// ToHTTPHeader converts the entries to a standard http.Header map.
func (h *Headers) ToHTTPHeader() http.Header {
	out := make(http.Header, len(h.entries))
	for _, e := range h.entries {
		out.Add(e.key, e.value)
	}
	return out
}
