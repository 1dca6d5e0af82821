package input

import (
	"encoding/json"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// Separators lists every request-item separator, longest first.  Order
// matters: the first separator found in a token decides its class, so "=="
// must be tested before "=" and ":=@" before ":=".
var Separators = []string{"==@", ":=@", ":@", "=@", "==", ":=", "@", "=", ":", ";"}

// HasSeparator reports whether the token contains any item separator.  Used
// by positional-argument disambiguation to tell items apart from URLs.
func HasSeparator(token string) bool {
	for _, sep := range Separators {
		if strings.Contains(token, sep) {
			return true
		}
	}
	return false
}

// Parse classifies a token into its Item variant.
//
// The token is scanned for each separator in longest-first order and split at
// the first occurrence of the first separator that matches.  Everything after
// the split is literal: separators inside the value carry no meaning.
func Parse(token string) (Item, error) {
	for _, sep := range Separators {
		idx := strings.Index(token, sep)
		if idx < 0 {
			continue
		}
		if idx == 0 {
			return nil, status.Errorf(status.KindParse, "invalid item %q: missing key before %q", token, sep)
		}
		key := token[:idx]
		value := token[idx+len(sep):]
		return dispatch(token, sep, key, value)
	}
	return nil, status.Errorf(status.KindParse, "invalid item %q: no separator found", token)
}

func dispatch(token, sep, key, value string) (Item, error) {
	switch sep {
	case "==@":
		return QueryParamFile{Name: key, Path: value}, nil
	case ":=@":
		return JSONFieldFile{JSONKey: key, Path: value}, nil
	case ":@":
		return HeaderFile{Name: key, Path: value}, nil
	case "=@":
		return DataFieldFile{DataKey: key, Path: value}, nil
	case "==":
		return QueryParam{Name: key, Value: value}, nil
	case ":=":
		raw := json.RawMessage(value)
		if !json.Valid(raw) {
			return nil, status.Errorf(status.KindParse, "invalid item %q: value is not valid JSON", token)
		}
		return JSONField{JSONKey: key, Value: raw}, nil
	case "@":
		return parseFileUpload(key, value)
	case "=":
		return DataField{DataKey: key, Value: value}, nil
	case ":":
		return Header{Name: key, Value: value}, nil
	case ";":
		if value != "" {
			return nil, status.Errorf(status.KindParse, "invalid item %q: empty-header marker must end the token", token)
		}
		return EmptyHeader{Name: key}, nil
	}
	return nil, status.Errorf(status.KindParse, "invalid item %q", token)
}

// parseFileUpload splits "path[;type=MIME][;filename=NAME]" into its parts.
// Unrecognized ;key=value segments are treated as part of the path so that
// filenames containing semicolons keep working.
func parseFileUpload(field, value string) (Item, error) {
	up := FileUpload{Field: field}
	rest := value
	for {
		semi := strings.LastIndex(rest, ";")
		if semi < 0 {
			break
		}
		attr := rest[semi+1:]
		switch {
		case strings.HasPrefix(attr, "type="):
			up.MimeType = attr[len("type="):]
		case strings.HasPrefix(attr, "filename="):
			up.Filename = attr[len("filename="):]
		default:
			// Not an attribute we know; the semicolon belongs to the path.
			up.Path = rest
			if up.Path == "" {
				return nil, status.Errorf(status.KindParse, "file upload %q@%q: empty path", field, value)
			}
			return up, nil
		}
		rest = rest[:semi]
	}
	up.Path = rest
	if up.Path == "" {
		return nil, status.Errorf(status.KindParse, "file upload %q@%q: empty path", field, value)
	}
	return up, nil
}
