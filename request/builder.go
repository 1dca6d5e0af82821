package request

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/quicpulse/quicpulse/input"
	"github.com/quicpulse/quicpulse/status"
)

// BodyKind discriminates the request body representation.
type BodyKind int

const (
	// BodyNone means the request carries no body.
	BodyNone BodyKind = iota
	// BodyJSON is a JSON document built by path-merging data items.
	BodyJSON
	// BodyForm is an application/x-www-form-urlencoded pair list.
	BodyForm
	// BodyMultipart is multipart/form-data with file and text parts.
	BodyMultipart
	// BodyRaw is user-supplied raw bytes (--raw).
	BodyRaw
)

// FileField is one multipart file part.
type FileField struct {
	Name        string
	Path        string
	Filename    string
	ContentType string
}

// Param is an ordered query-string pair.
type Param struct {
	Name  string
	Value string
}

// Config is a fully-resolved request configuration, ready for the execution
// engine.  It is owned by the driver that produced it; concurrent drivers
// clone before mutating.
type Config struct {
	// Headers preserves insertion order and duplicates.
	Headers *Headers
	// Kind selects which body field below is populated.
	Kind BodyKind
	// JSON is the merged JSON document for BodyJSON.
	JSON interface{}
	// Form holds ordered form pairs for BodyForm (and the text parts of a
	// multipart body).
	Form []Param
	// Files holds multipart file parts for BodyMultipart.
	Files []FileField
	// Raw holds the body bytes for BodyRaw.
	Raw []byte
	// Query holds ordered query-string pairs appended to the URL.
	Query []Param
	// JSONMode records whether data fields merge into a JSON document.
	JSONMode bool
}

// HasBody reports whether the configuration produces a request body.
func (c *Config) HasBody() bool { return c.Kind != BodyNone }

// HasFiles reports whether the body is multipart.
func (c *Config) HasFiles() bool { return c.Kind == BodyMultipart }

// FromItems folds typed input items into a Config.
//
// Body selection precedence: any file upload forces multipart; otherwise a
// non-empty JSON document in JSON mode produces a JSON body; otherwise any
// form pairs produce a form body; otherwise there is no body.  A root-level
// "[N]" or "[]" path flips the JSON root from object to array.
func FromItems(items []input.Item, jsonMode bool) (*Config, error) {
	cfg := &Config{
		Headers:  &Headers{},
		JSONMode: jsonMode,
	}
	var jsonRoot interface{}

	for _, it := range items {
		switch v := it.(type) {
		case input.Header:
			cfg.Headers.Add(v.Name, v.Value)
		case input.EmptyHeader:
			cfg.Headers.Add(v.Name, "")
		case input.HeaderFile:
			content, err := readTrimmed(v.Path)
			if err != nil {
				return nil, err
			}
			cfg.Headers.Add(v.Name, content)

		case input.QueryParam:
			cfg.Query = append(cfg.Query, Param{Name: v.Name, Value: v.Value})
		case input.QueryParamFile:
			content, err := readTrimmed(v.Path)
			if err != nil {
				return nil, err
			}
			cfg.Query = append(cfg.Query, Param{Name: v.Name, Value: content})

		case input.DataField:
			if jsonMode {
				if err := SetNested(&jsonRoot, v.DataKey, v.Value); err != nil {
					return nil, err
				}
			} else {
				cfg.Form = append(cfg.Form, Param{Name: v.DataKey, Value: v.Value})
			}
		case input.DataFieldFile:
			raw, err := os.ReadFile(v.Path)
			if err != nil {
				return nil, status.Wrap(status.KindIO, err, "read "+v.Path)
			}
			if jsonMode {
				if err := SetNested(&jsonRoot, v.DataKey, string(raw)); err != nil {
					return nil, err
				}
			} else {
				cfg.Form = append(cfg.Form, Param{Name: v.DataKey, Value: string(raw)})
			}

		case input.JSONField:
			value, err := decodeJSON(v.Value)
			if err != nil {
				return nil, err
			}
			if err := SetNested(&jsonRoot, v.JSONKey, value); err != nil {
				return nil, err
			}
		case input.JSONFieldFile:
			raw, err := os.ReadFile(v.Path)
			if err != nil {
				return nil, status.Wrap(status.KindIO, err, "read "+v.Path)
			}
			value, err := decodeJSON(raw)
			if err != nil {
				return nil, err
			}
			if err := SetNested(&jsonRoot, v.JSONKey, value); err != nil {
				return nil, err
			}

		case input.FileUpload:
			cfg.Files = append(cfg.Files, FileField{
				Name:        v.Field,
				Path:        v.Path,
				Filename:    v.Filename,
				ContentType: v.MimeType,
			})
		}
	}

	switch {
	case len(cfg.Files) > 0:
		cfg.Kind = BodyMultipart
	case jsonMode && jsonNotEmpty(jsonRoot):
		cfg.Kind = BodyJSON
		cfg.JSON = jsonRoot
	case len(cfg.Form) > 0:
		cfg.Kind = BodyForm
	case jsonNotEmpty(jsonRoot):
		// Root-level arrays built via [N]= / []= paths outside JSON mode.
		cfg.Kind = BodyJSON
		cfg.JSON = jsonRoot
	default:
		cfg.Kind = BodyNone
	}
	return cfg, nil
}

// JSONBytes serializes the JSON body.  Object keys marshal in sorted order,
// which keeps output deterministic across runs.
func (c *Config) JSONBytes() ([]byte, error) {
	b, err := json.Marshal(c.JSON)
	if err != nil {
		return nil, status.Wrap(status.KindJSON, err, "encode JSON body")
	}
	return b, nil
}

// FormBytes serializes the form body as application/x-www-form-urlencoded,
// preserving pair order.
func (c *Config) FormBytes() []byte {
	var b bytes.Buffer
	for i, p := range c.Form {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(urlEncode(p.Name))
		b.WriteByte('=')
		b.WriteString(urlEncode(p.Value))
	}
	return b.Bytes()
}

// QueryString renders the accumulated query pairs, preserving order.
func (c *Config) QueryString() string {
	var b strings.Builder
	for i, p := range c.Query {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(urlEncode(p.Name))
		b.WriteByte('=')
		b.WriteString(urlEncode(p.Value))
	}
	return b.String()
}

// decodeJSON unmarshals raw preserving integer fidelity via json.Number, so
// an integer beyond 2^53 such as 9007199254740993 keeps every digit instead
// of being rounded through float64.
func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, status.Wrap(status.KindJSON, err, "parse JSON value")
	}
	return v, nil
}

func jsonNotEmpty(root interface{}) bool {
	switch v := root.(type) {
	case map[string]interface{}:
		return len(v) > 0
	case []interface{}:
		return len(v) > 0
	}
	return false
}

func readTrimmed(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", status.Wrap(status.KindIO, err, "read "+path)
	}
	return strings.TrimSpace(string(raw)), nil
}

// urlEncode percent-encodes a query component the same way form encoding
// does, with spaces as %20 so values survive strict servers.
func urlEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xF])
		}
	}
	return b.String()
}
