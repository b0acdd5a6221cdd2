// Package bridge supervises the provider subprocess and speaks the
// line-delimited JSON protocol over its standard streams.
package bridge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"sync"

	apperrors "github.com/vultuk/whatsapp-translator/internal/errors"
)

// FrameReader reassembles a byte stream into newline-delimited frames.
// Partial frames are retained across reads until their terminator
// arrives; a trailing unterminated fragment at EOF is discarded.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps the subprocess stdout stream
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadFrame returns the next complete frame, skipping whitespace-only
// lines. It blocks only on the underlying read.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		line, err := fr.r.ReadBytes('\n')
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

// FrameWriter serializes commands as single-line JSON documents.
// Writes are mutually exclusive so concurrent submitters can never
// interleave partial frames on the subprocess stdin.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps the subprocess stdin stream
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame marshals v, appends the terminator and issues a single
// write for the whole frame.
func (fw *FrameWriter) WriteFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to marshal frame")
	}
	data = append(data, '\n')

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(data); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeTransport, "failed to write frame")
	}
	return nil
}
