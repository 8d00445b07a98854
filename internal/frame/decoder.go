// Package frame implements the delimited JSON framing used by the job
// creation stream. Each frame is one JSON document followed by Marker.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Marker terminates a frame on the wire. It cannot occur inside a compact
// JSON document because raw newlines are not allowed in JSON strings.
var Marker = []byte{0x0A, 0x34, 0x0A}

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 32 * 1024

var (
	// ErrMalformedFrame is returned when a frame is not valid UTF-8 or JSON
	ErrMalformedFrame = errors.New("malformed frame")
)

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Index int // zero-based frame index within the stream
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %d: %s", e.Index, e.Err.Error())
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Frame is one complete JSON document from the stream.
type Frame json.RawMessage

// Decoder yields frames from a byte stream. Bytes are buffered across
// reads until a marker is seen, so frames may span chunk boundaries and
// one chunk may carry several frames. A Decoder is single-use: once Next
// returns an error (io.EOF included) it keeps returning that error.
type Decoder struct {
	r         io.Reader
	chunk     []byte
	buf       []byte
	scanned   int // buf[:scanned] holds no marker start
	pending   []Frame
	index     int
	eof       bool
	err       error
	chunkSize int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithChunkSize sets the size of each read from the underlying stream.
func WithChunkSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.chunkSize = n
		}
	}
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{r: r, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(d)
	}
	d.chunk = make([]byte, d.chunkSize)
	return d
}

// Next returns the next frame. It returns io.EOF once the stream has been
// fully consumed and a *DecodeError for malformed input.
func (d *Decoder) Next() (Frame, error) {
	for {
		if len(d.pending) > 0 {
			f := d.pending[0]
			d.pending = d.pending[1:]
			return f, nil
		}
		if d.err != nil {
			return nil, d.err
		}

		if i := bytes.Index(d.buf[d.scanned:], Marker); i >= 0 {
			i += d.scanned
			segment := d.buf[:i]
			d.buf = d.buf[i+len(Marker):]
			d.scanned = 0
			if err := d.split(segment); err != nil {
				d.err = err
			}
			continue
		}

		if d.eof {
			// A stream cut inside the marker leaves "\n4" behind.
			segment := bytes.TrimSuffix(d.buf, Marker[:len(Marker)-1])
			d.buf = nil
			d.scanned = 0
			if err := d.split(segment); err != nil {
				d.err = err
				continue
			}
			if len(d.pending) == 0 {
				d.err = io.EOF
			}
			continue
		}

		d.scanned = max(0, len(d.buf)-len(Marker)+1)
		d.read()
	}
}

// read pulls one chunk from the stream into the buffer.
func (d *Decoder) read() {
	n, err := d.r.Read(d.chunk)
	if n > 0 {
		d.buf = append(d.buf, d.chunk[:n]...)
	}
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		d.eof = true
		return
	}
	d.err = fmt.Errorf("read stream: %w", err)
}

// split decodes every JSON document in segment into pending frames.
// Segments made only of whitespace yield nothing.
func (d *Decoder) split(segment []byte) error {
	if len(bytes.TrimSpace(segment)) == 0 {
		return nil
	}
	if !utf8.Valid(segment) {
		return &DecodeError{Index: d.index, Err: fmt.Errorf("%w: invalid UTF-8", ErrMalformedFrame)}
	}

	dec := json.NewDecoder(bytes.NewReader(segment))
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &DecodeError{Index: d.index, Err: fmt.Errorf("%w: %v", ErrMalformedFrame, err)}
		}
		d.pending = append(d.pending, Frame(raw))
		d.index++
	}
}
