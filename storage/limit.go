package storage

import (
	"errors"
	"io"
)

// ErrObjectTooLarge is wrapped into the terminal error returned when an
// upload exceeds the configured maximum file size.
var ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")

// CapReader wraps r so that reading more than max bytes fails with a
// terminal error for the given operation and key. A max of zero or less
// disables the cap.
func CapReader(r io.Reader, max int64, op, key string) io.Reader {
	if max <= 0 {
		return r
	}
	return &cappedReader{r: r, remaining: max, op: op, key: key}
}

type cappedReader struct {
	r         io.Reader
	remaining int64
	op        string
	key       string
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		// Probe one byte to distinguish "exactly at the limit" from
		// "over the limit".
		var b [1]byte
		n, err := c.r.Read(b[:])
		if n > 0 {
			return 0, TerminalError(c.op, c.key, ErrObjectTooLarge)
		}
		if err != nil {
			return 0, err
		}
		return 0, nil
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}
