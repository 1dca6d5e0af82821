package request

import (
	"bytes"

	"github.com/klauspost/compress/flate"

	"github.com/quicpulse/quicpulse/status"
)

// CompressDeflate deflate-compresses a request body for -x.  With force off
// the original bytes are returned whenever compression does not shrink the
// body (tiny or already-compressed payloads); a doubled -x always sends the
// compressed form.
func CompressDeflate(body []byte, force bool) ([]byte, bool, error) {
	if len(body) == 0 {
		return body, false, nil
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false, status.Wrap(status.KindIO, err, "init deflate")
	}
	if _, err := w.Write(body); err != nil {
		return nil, false, status.Wrap(status.KindIO, err, "compress body")
	}
	if err := w.Close(); err != nil {
		return nil, false, status.Wrap(status.KindIO, err, "finish deflate")
	}
	if !force && buf.Len() >= len(body) {
		return body, false, nil
	}
	return buf.Bytes(), true, nil
}
