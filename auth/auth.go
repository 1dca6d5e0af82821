// Package auth resolves request authentication: Basic and Bearer headers,
// Digest challenge-response, AWS Signature Version 4, and .netrc fallback.
package auth

import (
	"encoding/base64"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/quicpulse/quicpulse/status"
)

// Type selects the authentication scheme.
type Type string

const (
	TypeNone   Type = ""
	TypeBasic  Type = "basic"
	TypeDigest Type = "digest"
	TypeBearer Type = "bearer"
	TypeSigV4  Type = "aws-sigv4"
)

// Credentials is a parsed -a argument.
type Credentials struct {
	Username string
	Password string
	// Token is the raw credential for bearer auth.
	Token string
}

// ParseCredentials splits "user:pass" credentials.  A bare username (no
// colon) prompts for the password on the controlling terminal; when stdin is
// not a TTY that is an error rather than a hang.
func ParseCredentials(raw string, authType Type) (Credentials, error) {
	if authType == TypeBearer {
		return Credentials{Token: raw}, nil
	}
	if user, pass, ok := strings.Cut(raw, ":"); ok {
		return Credentials{Username: user, Password: pass}, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return Credentials{}, status.Errorf(status.KindAuth,
			"password for %q required: stdin is not a terminal, pass user:password explicitly", raw)
	}
	os.Stderr.WriteString("password for " + raw + ": ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	os.Stderr.WriteString("\n")
	if err != nil {
		return Credentials{}, status.Wrap(status.KindAuth, err, "read password")
	}
	return Credentials{Username: raw, Password: string(pw)}, nil
}

// BasicValue returns the Authorization header value for Basic auth,
// RFC 4648 base64 over "user:pass".
func BasicValue(c Credentials) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.Username+":"+c.Password))
}

// BearerValue returns the Authorization header value for Bearer auth.
func BearerValue(c Credentials) string {
	return "Bearer " + c.Token
}
