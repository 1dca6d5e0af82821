// Package har loads HTTP Archive (HAR 1.2) files and replays their entries,
// capturing status divergence between the recording and the live replay.
package har

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// Archive is the top-level HAR document.
type Archive struct {
	Log Log `json:"log"`
}

// Log holds the recorded entries.
type Log struct {
	Version string  `json:"version"`
	Creator Creator `json:"creator"`
	Entries []Entry `json:"entries"`
}

// Creator identifies the recording tool.
type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Entry is one recorded exchange.
type Entry struct {
	StartedDateTime string   `json:"startedDateTime"`
	Time            float64  `json:"time"`
	Request         Request  `json:"request"`
	Response        Response `json:"response"`
}

// Request is the recorded request block.
type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []NameValue `json:"headers"`
	QueryString []NameValue `json:"queryString"`
	PostData    *PostData   `json:"postData,omitempty"`
}

// Response is the recorded response block.
type Response struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Headers     []NameValue `json:"headers"`
	Content     Content     `json:"content"`
}

// NameValue is a HAR name/value pair.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PostData is the recorded request body.
type PostData struct {
	MimeType string      `json:"mimeType"`
	Text     string      `json:"text"`
	Params   []NameValue `json:"params,omitempty"`
}

// Content is the recorded response body metadata.
type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Text     string `json:"text,omitempty"`
}

// Load parses a HAR file.
func Load(path string) (*Archive, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, status.Wrap(status.KindIO, err, "read HAR file "+path)
	}
	var archive Archive
	if err := json.Unmarshal(raw, &archive); err != nil {
		return nil, status.Wrap(status.KindJSON, err, "parse HAR file "+path)
	}
	if len(archive.Log.Entries) == 0 {
		return nil, status.Errorf(status.KindArgument, "HAR file %s contains no entries", path)
	}
	return &archive, nil
}

// Filter keeps only entries whose URL contains pattern.
func (a *Archive) Filter(pattern string) {
	var kept []Entry
	for _, e := range a.Log.Entries {
		if strings.Contains(e.Request.URL, pattern) {
			kept = append(kept, e)
		}
	}
	a.Log.Entries = kept
}

// Select keeps only the entries at the given zero-based indices, in the
// order given.  Out-of-range indices are dropped.
func (a *Archive) Select(indices []int) {
	var kept []Entry
	for _, i := range indices {
		if i >= 0 && i < len(a.Log.Entries) {
			kept = append(kept, a.Log.Entries[i])
		}
	}
	a.Log.Entries = kept
}
