package auth

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// DigestChallenge is a parsed "WWW-Authenticate: Digest ..." header.
type DigestChallenge struct {
	Realm     string
	Nonce     string
	Opaque    string
	Algorithm string
	QOP       string
	Stale     bool
}

// ParseDigestChallenge extracts the challenge parameters from the value of a
// WWW-Authenticate header.  Returns an error when the header does not carry
// a Digest challenge.
func ParseDigestChallenge(header string) (DigestChallenge, error) {
	const prefix = "Digest "
	trimmed := strings.TrimSpace(header)
	if len(trimmed) < len(prefix) || !strings.EqualFold(trimmed[:len(prefix)], prefix) {
		return DigestChallenge{}, status.Errorf(status.KindAuth, "not a Digest challenge: %q", header)
	}
	ch := DigestChallenge{Algorithm: "MD5"}
	for _, param := range splitChallengeParams(trimmed[len(prefix):]) {
		key, value, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.Trim(strings.TrimSpace(value), `"`)
		switch key {
		case "realm":
			ch.Realm = value
		case "nonce":
			ch.Nonce = value
		case "opaque":
			ch.Opaque = value
		case "algorithm":
			ch.Algorithm = value
		case "qop":
			// The server may offer "auth,auth-int"; we support auth.
			for _, q := range strings.Split(value, ",") {
				if strings.TrimSpace(q) == "auth" {
					ch.QOP = "auth"
				}
			}
			if ch.QOP == "" {
				ch.QOP = strings.TrimSpace(value)
			}
		case "stale":
			ch.Stale = strings.EqualFold(value, "true")
		}
	}
	if ch.Nonce == "" {
		return DigestChallenge{}, status.Errorf(status.KindAuth, "Digest challenge missing nonce")
	}
	return ch, nil
}

// splitChallengeParams splits comma-separated auth params, respecting quoted
// strings (a nonce may contain commas).
func splitChallengeParams(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ',' && !inQuotes:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, strings.TrimSpace(cur.String()))
	}
	return parts
}

// DigestAuthorization computes the Authorization header value answering a
// challenge, per RFC 7616.  method and uri are those of the retried request;
// cnonce may be empty to generate a random one.
func DigestAuthorization(ch DigestChallenge, creds Credentials, method, uri, cnonce string) (string, error) {
	newHash, sess, err := digestHash(ch.Algorithm)
	if err != nil {
		return "", err
	}
	if cnonce == "" {
		raw := make([]byte, 8)
		if _, err := rand.Read(raw); err != nil {
			return "", status.Wrap(status.KindAuth, err, "generate cnonce")
		}
		cnonce = hex.EncodeToString(raw)
	}
	const nc = "00000001"

	h := func(parts ...string) string {
		hs := newHash()
		hs.Write([]byte(strings.Join(parts, ":")))
		return hex.EncodeToString(hs.Sum(nil))
	}

	ha1 := h(creds.Username, ch.Realm, creds.Password)
	if sess {
		ha1 = h(ha1, ch.Nonce, cnonce)
	}
	ha2 := h(method, uri)

	var response string
	if ch.QOP != "" {
		response = h(ha1, ch.Nonce, nc, cnonce, ch.QOP, ha2)
	} else {
		response = h(ha1, ch.Nonce, ha2)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username=%q, realm=%q, nonce=%q, uri=%q`,
		creds.Username, ch.Realm, ch.Nonce, uri)
	if ch.QOP != "" {
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce=%q`, ch.QOP, nc, cnonce)
	}
	fmt.Fprintf(&b, `, response=%q`, response)
	if ch.Opaque != "" {
		fmt.Fprintf(&b, `, opaque=%q`, ch.Opaque)
	}
	if ch.Algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, ch.Algorithm)
	}
	return b.String(), nil
}

func digestHash(algorithm string) (func() hash.Hash, bool, error) {
	switch strings.ToUpper(algorithm) {
	case "", "MD5":
		return md5.New, false, nil
	case "MD5-SESS":
		return md5.New, true, nil
	case "SHA-256":
		return sha256.New, false, nil
	case "SHA-256-SESS":
		return sha256.New, true, nil
	}
	return nil, false, status.Errorf(status.KindAuth, "unsupported Digest algorithm %q", algorithm)
}
