// Package session persists request state (headers, cookies, auth) across
// invocations.  Session files are JSON, written atomically and readable only
// by the owner.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/quicpulse/quicpulse/status"
)

// excludedHeaders are request-specific and never persisted: carrying them
// over would corrupt later requests with stale framing or validators.
var excludedHeaders = map[string]bool{
	"content-type":        true,
	"content-length":      true,
	"content-encoding":    true,
	"content-disposition": true,
	"content-range":       true,
	"if-match":            true,
	"if-none-match":       true,
	"if-modified-since":   true,
	"if-unmodified-since": true,
	"if-range":            true,
	"transfer-encoding":   true,
	"host":                true,
	"connection":          true,
	"keep-alive":          true,
}

// Header is one persisted header.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Cookie is one persisted cookie.  Expires is Unix seconds; zero means a
// session cookie that never expires on disk.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Expires  int64  `json:"expires,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// Auth is the persisted authentication block.
type Auth struct {
	Type        string `json:"type"`
	Credentials string `json:"credentials"`
}

// Meta describes the file for forward compatibility.
type Meta struct {
	ClientVersion string `json:"client_version"`
	About         string `json:"about"`
}

// Session is the in-memory session state.  A mutex guards mutation so a
// driver updating cookies concurrently with reads stays race-free.
type Session struct {
	Meta    Meta     `json:"session_info"`
	Headers []Header `json:"headers"`
	Cookies []Cookie `json:"cookies"`
	Auth    *Auth    `json:"auth,omitempty"`

	mu sync.Mutex
}

// New creates an empty session.
func New(clientVersion string) *Session {
	return &Session{Meta: Meta{
		ClientVersion: clientVersion,
		About:         "quicpulse session file",
	}}
}

// Load reads a session file; a missing file yields a fresh session.
func Load(path, clientVersion string) (*Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(clientVersion), nil
		}
		return nil, status.Wrap(status.KindSession, err, "read session "+path)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, status.Wrap(status.KindSession, err, "parse session "+path)
	}
	return &s, nil
}

// Path returns the on-disk location for a named session scoped to a host.
func Path(dir, host, name string) string {
	return filepath.Join(dir, sanitizeComponent(host), sanitizeComponent(name)+".json")
}

func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, ":", "_")
	if s == "" {
		return "_"
	}
	return s
}

// Save writes the session atomically: serialize to a temp file in the target
// directory, fsync-free rename over the destination, then tighten the mode
// to 0600 so cookies and credentials stay private.
func (s *Session) Save(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return status.Wrap(status.KindSession, err, "create session directory "+dir)
	}
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return status.Wrap(status.KindSession, err, "encode session")
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return status.Wrap(status.KindSession, err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return status.Wrap(status.KindSession, err, "write session")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return status.Wrap(status.KindSession, err, "close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return status.Wrap(status.KindSession, err, "replace session "+path)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o600); err != nil {
			return status.Wrap(status.KindSession, err, "restrict session permissions")
		}
	}
	return nil
}

// SetHeader stores a header unless it is on the exclusion list.  An existing
// header with the same name (case-insensitive) is replaced.
func (s *Session) SetHeader(name, value string) {
	if excludedHeaders[strings.ToLower(name)] {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Headers {
		if strings.EqualFold(s.Headers[i].Name, name) {
			s.Headers[i].Value = value
			return
		}
	}
	s.Headers = append(s.Headers, Header{Name: name, Value: value})
}

// RemoveHeader deletes every header matching name.
func (s *Session) RemoveHeader(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.Headers[:0]
	for _, h := range s.Headers {
		if !strings.EqualFold(h.Name, name) {
			kept = append(kept, h)
		}
	}
	s.Headers = kept
}

// SetCookie inserts or replaces a cookie (matched by name+domain+path) and
// drops any cookie that has already expired.
func (s *Session) SetCookie(c Cookie) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpiredLocked()
	for i := range s.Cookies {
		if s.Cookies[i].Name == c.Name && s.Cookies[i].Domain == c.Domain && s.Cookies[i].Path == c.Path {
			s.Cookies[i] = c
			return
		}
	}
	s.Cookies = append(s.Cookies, c)
}

// CookiesFor returns the cookies applicable to a request for host, path and
// security context, pruning expired entries as a side effect.
func (s *Session) CookiesFor(host, path string, secure bool) []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneExpiredLocked()

	var out []Cookie
	for _, c := range s.Cookies {
		if !DomainMatches(host, c.Domain) {
			continue
		}
		if !PathMatches(path, c.Path) {
			continue
		}
		if c.Secure && !secure && !IsLocalhost(host) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *Session) pruneExpiredLocked() {
	now := time.Now().Unix()
	kept := s.Cookies[:0]
	for _, c := range s.Cookies {
		if c.Expires != 0 && c.Expires < now {
			continue
		}
		kept = append(kept, c)
	}
	s.Cookies = kept
}
