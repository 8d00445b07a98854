package frame

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer emits marker-terminated JSON frames, flushing after each one when
// the destination supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
	written int
}

// NewWriter wraps w. If w implements http.Flusher every frame is flushed.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// WriteFrame encodes v as compact JSON followed by Marker.
func (fw *Writer) WriteFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	data = append(data, Marker...)
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	fw.written++
	return nil
}

// Written returns the number of frames written so far.
func (fw *Writer) Written() int {
	return fw.written
}
