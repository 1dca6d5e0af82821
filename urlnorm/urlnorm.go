// Package urlnorm canonicalizes the URLs users type on the command line:
// scheme-less hosts, localhost port shorthand (":3000/path"), and the "://"
// paste artifact all normalize to a full absolute URL.
package urlnorm

import (
	"net/url"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// HasScheme reports whether s starts with an RFC 3986 scheme followed by
// "://" (scheme = ALPHA *( ALPHA / DIGIT / "+" / "-" / "." )).
func HasScheme(s string) bool {
	pos := strings.Index(s, "://")
	if pos <= 0 {
		return false
	}
	scheme := s[:pos]
	c := scheme[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
		return false
	}
	for i := 1; i < len(scheme); i++ {
		c := scheme[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return true
}

// LocalhostShorthand matches ":PORT[/path]" and ":/path" tokens, returning
// the port (possibly empty) and the remainder.  A leading "::" is IPv6 and
// never shorthand.
func LocalhostShorthand(s string) (port, rest string, ok bool) {
	if !strings.HasPrefix(s, ":") || strings.HasPrefix(s, "::") {
		return "", "", false
	}
	after := s[1:]
	if slash := strings.Index(after, "/"); slash >= 0 {
		port, rest = after[:slash], after[slash:]
	} else {
		port, rest = after, ""
	}
	for i := 0; i < len(port); i++ {
		if port[i] < '0' || port[i] > '9' {
			return "", "", false
		}
	}
	return port, rest, true
}

// EndsWithPort reports whether s ends with ":DIGITS", which makes a bare
// token look like host:port rather than a header item.
func EndsWithPort(s string) bool {
	colon := strings.LastIndex(s, ":")
	if colon < 0 || colon == len(s)-1 {
		return false
	}
	for i := colon + 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Normalize canonicalizes a user-typed URL.  Rules, in order: strip a
// leading "://" paste artifact; if no scheme, rewrite localhost shorthand
// and prepend defaultScheme; finally parse to validate.  A URL that already
// carries a recognized scheme is returned unchanged.
func Normalize(raw, defaultScheme string) (string, error) {
	u := raw
	if strings.HasPrefix(u, "://") {
		u = u[3:]
	}
	if !HasScheme(u) {
		if port, rest, ok := LocalhostShorthand(u); ok {
			if port == "" {
				u = "localhost" + rest
			} else {
				u = "localhost:" + port + rest
			}
		}
		u = defaultScheme + "://" + u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", status.Wrap(status.KindParse, err, "invalid URL "+raw)
	}
	if parsed.Host == "" {
		return "", status.Errorf(status.KindParse, "invalid URL %q: missing host", raw)
	}
	return u, nil
}
