// httputil/buffer.go
package httputil

import (
	"bytes"
	"net/http"
)

// BufferedWriter holds a response body in memory until Commit so that
// anything written before the final payload can be thrown away with Reset.
// Headers go straight to the underlying writer and survive a Reset.
type BufferedWriter struct {
	w         http.ResponseWriter
	buf       bytes.Buffer
	status    int
	committed bool
}

// NewBufferedWriter wraps w.
func NewBufferedWriter(w http.ResponseWriter) *BufferedWriter {
	return &BufferedWriter{w: w}
}

// Header returns the underlying header map.
func (b *BufferedWriter) Header() http.Header { return b.w.Header() }

// WriteHeader records the status code. Only the first call counts until Reset.
func (b *BufferedWriter) WriteHeader(code int) {
	if b.committed {
		b.w.WriteHeader(code)
		return
	}
	if b.status == 0 {
		b.status = code
	}
}

// Write appends to the buffer.
func (b *BufferedWriter) Write(p []byte) (int, error) {
	if b.committed {
		return b.w.Write(p)
	}
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.buf.Write(p)
}

// Status returns the recorded status code, or 0 when nothing was written.
func (b *BufferedWriter) Status() int { return b.status }

// Len returns the number of buffered body bytes.
func (b *BufferedWriter) Len() int { return b.buf.Len() }

// Committed reports whether the response has been flushed to the client.
func (b *BufferedWriter) Committed() bool { return b.committed }

// Reset drops the buffered status and body. It reports false once the
// response is committed.
func (b *BufferedWriter) Reset() bool {
	if b.committed {
		return false
	}
	b.buf.Reset()
	b.status = 0
	return true
}

// Commit sends the buffered response to the client. Later calls are no-ops.
func (b *BufferedWriter) Commit() error {
	if b.committed {
		return nil
	}
	b.committed = true

	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	b.w.WriteHeader(status)
	if b.buf.Len() == 0 {
		return nil
	}
	_, err := b.w.Write(b.buf.Bytes())
	return err
}

// Unwrap returns the underlying writer for http.ResponseController.
func (b *BufferedWriter) Unwrap() http.ResponseWriter { return b.w }

// ResetResponse finds the BufferedWriter behind w, following Unwrap chains,
// and resets it. It reports whether a buffer was found and reset.
func ResetResponse(w http.ResponseWriter) bool {
	for w != nil {
		switch t := w.(type) {
		case *BufferedWriter:
			return t.Reset()
		case interface{ Unwrap() http.ResponseWriter }:
			w = t.Unwrap()
		default:
			return false
		}
	}
	return false
}
