package cli

import (
	"strings"

	"github.com/quicpulse/quicpulse/input"
	"github.com/quicpulse/quicpulse/magic"
	"github.com/quicpulse/quicpulse/status"
	"github.com/quicpulse/quicpulse/urlnorm"
)

// Processed is the positional grammar resolved: a method, a normalized URL,
// and the parsed request items with magic tags expanded.
type Processed struct {
	Method  string
	URL     string
	Items   []input.Item
	HasData bool
}

// looksLikeURL reports whether a positional token is a URL rather than a
// method or request item.
func looksLikeURL(s string) bool {
	if urlnorm.HasScheme(s) {
		return true
	}
	if _, _, ok := urlnorm.LocalhostShorthand(s); ok {
		return true
	}
	// A domain-ish prefix before the first separator means URL, so
	// "example.com/users:admin" is not mistaken for a header item.
	if sep := firstSeparatorIndex(s); sep >= 0 {
		before := s[:sep]
		return strings.Contains(before, ".") || urlnorm.EndsWithPort(before)
	}
	return strings.Contains(s, ".") || strings.HasPrefix(s, "localhost")
}

func firstSeparatorIndex(s string) int {
	first := -1
	for _, sep := range input.Separators {
		if idx := strings.Index(s, sep); idx >= 0 && (first < 0 || idx < first) {
			first = idx
		}
	}
	return first
}

func looksLikeItem(s string) bool {
	return !looksLikeURL(s) && input.HasSeparator(s)
}

// Process disambiguates the positional grammar [METHOD] URL [ITEM...]:
// the first token is a method only when it resembles one, the URL is
// normalized, and every item is parsed after magic expansion.  With no
// explicit method, GET/POST is inferred from whether data items exist.
func Process(args *Args, defaultScheme string) (*Processed, error) {
	positionals := args.Positionals
	if len(positionals) == 0 {
		return nil, status.Errorf(status.KindArgument, "URL is required")
	}

	var explicitMethod, rawURL string
	var itemTokens []string

	first := positionals[0]
	upper := strings.ToUpper(first)
	switch {
	case len(positionals) > 1 && (input.IsStandardMethod(first) || input.LooksLikeMethod(upper)) && !looksLikeURL(first):
		explicitMethod = upper
		rawURL = positionals[1]
		itemTokens = positionals[2:]
	default:
		rawURL = first
		itemTokens = positionals[1:]
	}

	items := make([]input.Item, 0, len(itemTokens))
	for _, token := range itemTokens {
		if looksLikeItem(token) || input.HasSeparator(token) {
			expanded := magic.Expand(token)
			item, err := input.Parse(expanded.Value)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
			continue
		}
		return nil, status.Errorf(status.KindParse, "invalid item %q: no separator found", token)
	}

	hasData := args.Raw != ""
	for _, it := range items {
		if input.IsData(it) {
			hasData = true
			break
		}
	}

	method := explicitMethod
	if method == "" {
		method = input.InferMethod(hasData)
	}

	normalized, err := urlnorm.Normalize(rawURL, defaultScheme)
	if err != nil {
		return nil, err
	}
	normalized = magic.Expand(normalized).Value

	return &Processed{
		Method:  method,
		URL:     normalized,
		Items:   items,
		HasData: hasData,
	}, nil
}
