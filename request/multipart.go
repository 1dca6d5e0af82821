package request

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/quicpulse/quicpulse/status"
)

// RandomBoundary returns a 40-character lowercase hex multipart boundary.
func RandomBoundary() string {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		// crypto/rand never fails on supported platforms; keep the zero
		// bytes rather than aborting the request.
		_ = err
	}
	return hex.EncodeToString(raw)
}

// EncodeMultipart assembles the multipart/form-data body: every form pair
// becomes a text part, every file field a file part with its content type
// guessed from the extension unless overridden.  boundary may be empty, in
// which case a random one is generated.  Returns the encoded body and the
// full Content-Type header value.
func (c *Config) EncodeMultipart(boundary string) ([]byte, string, error) {
	if boundary == "" {
		boundary = RandomBoundary()
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, "", status.Wrap(status.KindArgument, err, "invalid multipart boundary")
	}

	for _, p := range c.Form {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return nil, "", status.Wrap(status.KindIO, err, "write multipart field "+p.Name)
		}
	}

	for _, f := range c.Files {
		name := f.Filename
		if name == "" {
			name = filepath.Base(f.Path)
		}
		ctype := f.ContentType
		if ctype == "" {
			ctype = mime.TypeByExtension(filepath.Ext(name))
		}
		if ctype == "" {
			ctype = "application/octet-stream"
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			`form-data; name="`+escapeQuotes(f.Name)+`"; filename="`+escapeQuotes(name)+`"`)
		h.Set("Content-Type", ctype)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", status.Wrap(status.KindIO, err, "create multipart part "+f.Name)
		}
		src, err := os.Open(f.Path)
		if err != nil {
			return nil, "", status.Wrap(status.KindIO, err, "open upload "+f.Path)
		}
		_, err = io.Copy(part, src)
		src.Close()
		if err != nil {
			return nil, "", status.Wrap(status.KindIO, err, "read upload "+f.Path)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", status.Wrap(status.KindIO, err, "finalize multipart body")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func escapeQuotes(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
