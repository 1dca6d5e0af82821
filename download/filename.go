// Package download streams a response body to disk with atomic filename
// selection, Range-based resumption, progress display, and an
// interrupt-responsive copy loop.
package download

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// windowsReserved device names cannot be used as filenames on Windows even
// with an extension; they are replaced wholesale.
var windowsReserved = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// SanitizeFilename makes a server-supplied filename safe to create: path
// separators and shell-hostile characters become "_", Windows reserved
// device names are replaced entirely, and the result never escapes the
// current directory.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			b.WriteByte('_')
		default:
			if r < 0x20 {
				b.WriteByte('_')
			} else {
				b.WriteRune(r)
			}
		}
	}
	out := strings.Trim(b.String(), ". ")
	if out == "" {
		return "_"
	}
	stem := out
	if dot := strings.IndexByte(out, '.'); dot >= 0 {
		stem = out[:dot]
	}
	if windowsReserved[strings.ToLower(stem)] {
		return "_"
	}
	return out
}

// FilenameFromContentDisposition extracts the filename from a
// Content-Disposition header, preferring the RFC 5987 filename* form.
func FilenameFromContentDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err == nil {
		// mime.ParseMediaType already decodes filename* into "filename".
		if name := params["filename"]; name != "" {
			return name
		}
	}
	// Fall back to a manual scan for slightly malformed headers.
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, "filename*="); ok {
			if decoded := decodeExtendedValue(value); decoded != "" {
				return decoded
			}
		}
		if value, ok := strings.CutPrefix(part, "filename="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}

// decodeExtendedValue decodes an RFC 5987 charset'lang'percent-encoded value.
func decodeExtendedValue(value string) string {
	parts := strings.SplitN(value, "'", 3)
	if len(parts) != 3 {
		return ""
	}
	decoded, err := url.PathUnescape(parts[2])
	if err != nil {
		return ""
	}
	return decoded
}

// FilenameFromURL derives a filename from the final URL path segment
// (percent-decoded and sanitized) plus an extension matching the response
// Content-Type when the segment has none.  Falls back to "download".
func FilenameFromURL(rawURL, contentType string) string {
	name := "download"
	if u, err := url.Parse(rawURL); err == nil {
		segment := path.Base(u.Path)
		if segment != "" && segment != "/" && segment != "." {
			if decoded, err := url.PathUnescape(segment); err == nil {
				segment = decoded
			}
			name = SanitizeFilename(segment)
		}
	}
	if path.Ext(name) == "" && contentType != "" {
		if ext := extensionForType(contentType); ext != "" {
			name += ext
		}
	}
	return name
}

// extensionForType resolves a file extension for a MIME type.
func extensionForType(contentType string) string {
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if m := mimetype.Lookup(media); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	if exts, err := mime.ExtensionsByType(media); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// maxUniqueAttempts bounds the "_N" suffix search before falling back to a
// timestamped name.
const maxUniqueAttempts = 10000

// CreateUnique opens a new file at name, or at "stem_N.ext" for the first
// free N, using exclusive creation so two concurrent downloads can never
// claim the same path (no stat-then-create window).  After 10 000 taken
// names it falls back to a nanosecond-stamped name.
func CreateUnique(name string) (*os.File, string, error) {
	open := func(p string) (*os.File, error) {
		return os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if f, err := open(name); err == nil {
		return f, name, nil
	} else if !os.IsExist(err) {
		return nil, "", err
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxUniqueAttempts; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if f, err := open(candidate); err == nil {
			return f, candidate, nil
		} else if !os.IsExist(err) {
			return nil, "", err
		}
	}

	fallback := fmt.Sprintf("%s-%d%s", stem, time.Now().UnixNano(), ext)
	f, err := open(fallback)
	if err != nil {
		return nil, "", err
	}
	return f, fallback, nil
}
