package storage

import (
	"bytes"
	"io"
)

// Progress is one event in a download's progress stream. Loaded is the
// cumulative byte count and Total the expected size, -1 when unknown.
// Percentage stays 0 while the total is unknown; the final event of
// every stream reports Percentage 100, so callers can observe
// completion even for objects of unknown size.
type Progress struct {
	Loaded     int64
	Total      int64
	Percentage float64
}

// ProgressFunc consumes progress events during DownloadWithProgress.
// Events arrive in order from the downloading goroutine; the stream is
// finite and ends with a Percentage 100 event.
type ProgressFunc func(Progress)

// progressChunk is how many bytes pass between progress events.
const progressChunk = 64 * 1024

// ReadAllWithProgress drains r into memory, emitting an event after
// each chunk with the running byte count. Providers share it to
// implement DownloadWithProgress on top of Download.
func ReadAllWithProgress(r io.Reader, total int64, fn ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(total))
	}

	chunk := make([]byte, progressChunk)
	var loaded int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			loaded += int64(n)
			if fn != nil {
				p := Progress{Loaded: loaded, Total: total}
				if total > 0 {
					p.Percentage = 100 * float64(loaded) / float64(total)
				}
				fn(p)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	// With a known size the last chunk already reported 100. Otherwise
	// (unknown total, empty object, or a size that disagreed with the
	// stream) close out with a terminal event carrying the real size.
	if fn != nil && !(total > 0 && loaded == total) {
		fn(Progress{Loaded: loaded, Total: loaded, Percentage: 100})
	}
	return buf.Bytes(), nil
}
