package download

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"github.com/quicpulse/quicpulse/interrupt"
	"github.com/quicpulse/quicpulse/status"
)

// interruptPollInterval bounds how long a network stall can delay Ctrl+C
// handling inside the chunk loop.
const interruptPollInterval = 100 * time.Millisecond

// Downloader writes a response body to disk.  The output file handle is
// exclusively owned by the Downloader for the duration of the stream.
type Downloader struct {
	// OutputPath is the explicit -o path; empty selects a name from the
	// response.
	OutputPath string
	// Resume adds a Range header for an existing partial file.
	Resume bool
	// Quiet suppresses the progress display.
	Quiet bool

	// ResumedFrom is the byte offset recovered from Content-Range.
	ResumedFrom uint64
	// TotalSize is the expected final size, when known.
	TotalSize int64

	file *os.File
	path string
}

// PreRequest prepares the request headers: uncompressed transfer for exact
// progress totals, and a Range header when resuming a partial file.
func (d *Downloader) PreRequest(header http.Header) {
	header.Set("Accept-Encoding", "identity")
	if !d.Resume || d.OutputPath == "" {
		return
	}
	if info, err := os.Stat(d.OutputPath); err == nil && info.Size() > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", info.Size()))
	}
}

// parseContentRange extracts (first-byte, total) from a
// "bytes F-L/T" Content-Range value.
func parseContentRange(value string) (from uint64, total int64, ok bool) {
	rest, found := strings.CutPrefix(value, "bytes ")
	if !found {
		return 0, 0, false
	}
	rangePart, totalPart, found := strings.Cut(rest, "/")
	if !found {
		return 0, 0, false
	}
	firstPart, _, found := strings.Cut(rangePart, "-")
	if !found {
		return 0, 0, false
	}
	from, err := strconv.ParseUint(firstPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if totalPart != "*" {
		total, err = strconv.ParseInt(totalPart, 10, 64)
		if err != nil {
			return 0, 0, false
		}
	}
	return from, total, true
}

// Start inspects the response, selects the output path, and opens the file:
// append mode when the server honoured a resume Range, exclusive-create
// (with _N uniquing) for fresh server-named downloads, truncate for an
// explicit -o.
func (d *Downloader) Start(rawURL string, respHeader http.Header, statusCode int) (string, error) {
	if cl := respHeader.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			d.TotalSize = n
		}
	}
	resumed := false
	if cr := respHeader.Get("Content-Range"); cr != "" && statusCode == http.StatusPartialContent {
		if from, total, ok := parseContentRange(cr); ok {
			d.ResumedFrom = from
			if total > 0 {
				d.TotalSize = total
			}
			resumed = true
		}
	}

	if d.OutputPath != "" {
		d.path = d.OutputPath
		var err error
		if resumed {
			d.file, err = os.OpenFile(d.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		} else {
			d.file, err = os.Create(d.path)
		}
		if err != nil {
			return "", status.Wrap(status.KindDownload, err, "open "+d.path)
		}
		return d.path, nil
	}

	name := ""
	if cd := respHeader.Get("Content-Disposition"); cd != "" {
		if extracted := FilenameFromContentDisposition(cd); extracted != "" {
			name = SanitizeFilename(extracted)
		}
	}
	if name == "" {
		name = FilenameFromURL(rawURL, respHeader.Get("Content-Type"))
	}

	file, unique, err := CreateUnique(name)
	if err != nil {
		return "", status.Wrap(status.KindDownload, err, "create "+name)
	}
	d.file, d.path = file, unique
	return unique, nil
}

// chunkResult carries one read from the body-reader goroutine.
type chunkResult struct {
	data []byte
	err  error
}

// Stream copies the body to the output file.  The read side runs in its own
// goroutine so the loop can race each chunk against a short timer: a SIGINT
// during a network stall is observed within 100 ms, the buffered writer is
// flushed, and the partial file is left on disk for a later resume.
func (d *Downloader) Stream(body io.Reader) (written uint64, err error) {
	if d.file == nil {
		return 0, status.Errorf(status.KindDownload, "no output file selected")
	}
	defer d.file.Close()

	writer := bufio.NewWriterSize(d.file, 128*1024)
	bar := d.newProgress()

	chunks := make(chan chunkResult)
	go func() {
		for {
			buf := make([]byte, 64*1024)
			n, readErr := body.Read(buf)
			chunks <- chunkResult{data: buf[:n], err: readErr}
			if readErr != nil {
				return
			}
		}
	}()

	finish := func(streamErr error) (uint64, error) {
		if flushErr := writer.Flush(); flushErr != nil && streamErr == nil {
			streamErr = status.Wrap(status.KindIO, flushErr, "flush "+d.path)
		}
		if bar != nil {
			if streamErr == nil {
				bar.Finish()
			}
			fmt.Fprintln(os.Stderr)
		}
		return written, streamErr
	}

	for {
		select {
		case chunk := <-chunks:
			if len(chunk.data) > 0 {
				if _, writeErr := writer.Write(chunk.data); writeErr != nil {
					return finish(status.Wrap(status.KindIO, writeErr, "write "+d.path))
				}
				written += uint64(len(chunk.data))
				if bar != nil {
					bar.Add(len(chunk.data))
				}
			}
			if chunk.err == io.EOF {
				return finish(nil)
			}
			if chunk.err != nil {
				return finish(status.Wrap(status.KindDownload, chunk.err, "read response"))
			}
			if interrupt.Pending() {
				return finish(status.Errorf(status.KindDownload, "download interrupted"))
			}
		case <-time.After(interruptPollInterval):
			if interrupt.Pending() {
				return finish(status.Errorf(status.KindDownload, "download interrupted"))
			}
		}
	}
}

// Summary returns the final "size in time (rate)" line.
func (d *Downloader) Summary(written uint64, elapsed time.Duration) string {
	rate := float64(written)
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(written) / secs
	}
	return fmt.Sprintf("Downloaded %s to %q in %.1fs (%s/s)",
		humanize.IBytes(written), d.path, elapsed.Seconds(), humanize.IBytes(uint64(rate)))
}

// newProgress builds the progress display: a bar with ETA when the total is
// known, a byte-counting spinner otherwise.  Nil in quiet mode.
func (d *Downloader) newProgress() *progressbar.ProgressBar {
	if d.Quiet {
		return nil
	}
	total := d.TotalSize
	if total <= 0 {
		total = -1
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetDescription(d.path),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	if d.ResumedFrom > 0 {
		bar.Add64(int64(d.ResumedFrom))
	}
	return bar
}
