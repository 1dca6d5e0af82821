package input

import "strings"

// Standard HTTP methods recognized without the uppercase heuristic.
var standardMethods = []string{
	"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE", "CONNECT",
}

// IsStandardMethod reports whether s is a standard HTTP method, ignoring case.
func IsStandardMethod(s string) bool {
	for _, m := range standardMethods {
		if strings.EqualFold(s, m) {
			return true
		}
	}
	return false
}

// LooksLikeMethod reports whether s resembles a custom HTTP method: all
// uppercase ASCII letters, at most 10 characters, and not a hostname people
// commonly type in caps.
func LooksLikeMethod(s string) bool {
	if s == "" || len(s) > 10 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	switch s {
	case "LOCALHOST", "HOST", "SERVER":
		return false
	}
	return true
}

// InferMethod returns POST when the request carries data, GET otherwise.
func InferMethod(hasData bool) string {
	if hasData {
		return "POST"
	}
	return "GET"
}
