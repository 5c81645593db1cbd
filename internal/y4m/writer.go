package y4m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// Static errors for writer operations.
var (
	// ErrWrite wraps every output I/O failure.
	ErrWrite = errors.New("y4m: write failed")
	// ErrPlaneSize is returned when a frame's planes don't match the header.
	ErrPlaneSize = errors.New("y4m: plane size mismatch")
	// ErrWriterClosed is returned when writing to a closed Writer.
	ErrWriterClosed = errors.New("y4m: writer is closed")
)

// Writer writes one Y4M stream to a file. The header is written on Create
// and every frame is flushed before WriteFrame returns, so after any failure
// the file is truncated back to the end of the last complete frame.
type Writer struct {
	path      string
	file      *os.File
	bw        *bufio.Writer
	header    Header
	sizes     []int
	frames    int
	committed int64
	err       error
	closed    bool
}

// Create creates (or truncates) path and writes the stream header.
func Create(path string, h Header) (*Writer, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Create(path) // #nosec G304 - path is built by the segmenter
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrWrite, path, err)
	}

	w := &Writer{
		path:   path,
		file:   f,
		bw:     bufio.NewWriterSize(f, 256*1024),
		header: h,
		sizes:  h.PixelFormat.PlaneSizes(h.Width, h.Height),
	}

	headerLine := h.String()
	if _, err := w.bw.WriteString(headerLine); err == nil {
		err = w.bw.Flush()
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("%w: write header to %s: %w", ErrWrite, path, err)
	}
	w.committed = int64(len(headerLine))
	return w, nil
}

// Path returns the output file path.
func (w *Writer) Path() string {
	return w.path
}

// Header returns the stream header.
func (w *Writer) Header() Header {
	return w.header
}

// Frames returns the number of frames fully written.
func (w *Writer) Frames() int {
	return w.frames
}

// Size returns the number of bytes committed to the file.
func (w *Writer) Size() int64 {
	return w.committed
}

// WriteFrame appends one frame. Planes must match the header's pixel format
// exactly; a mismatch is reported before any byte is written.
func (w *Writer) WriteFrame(planes [][]byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}
	if len(planes) != len(w.sizes) {
		return fmt.Errorf("%w: got %d planes, want %d", ErrPlaneSize, len(planes), len(w.sizes))
	}
	for i, p := range planes {
		if len(p) != w.sizes[i] {
			return fmt.Errorf("%w: plane %d has %d bytes, want %d", ErrPlaneSize, i, len(p), w.sizes[i])
		}
	}

	n := int64(len(frameMarker))
	_, err := w.bw.WriteString(frameMarker)
	for _, p := range planes {
		if err != nil {
			break
		}
		_, err = w.bw.Write(p)
		n += int64(len(p))
	}
	if err == nil {
		err = w.bw.Flush()
	}
	if err != nil {
		w.fail(err)
		return w.err
	}

	w.committed += n
	w.frames++
	return nil
}

// fail records a sticky error and rolls the file back to the last frame boundary.
func (w *Writer) fail(err error) {
	w.err = fmt.Errorf("%w: %s after %d frames: %w", ErrWrite, w.path, w.frames, err)
	w.bw.Reset(w.file)
	if terr := w.file.Truncate(w.committed); terr == nil {
		_, _ = w.file.Seek(w.committed, io.SeekStart)
	}
}

// Close flushes and closes the file. It is safe to call more than once; only
// the first call reports errors.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	if w.err == nil {
		if err := w.bw.Flush(); err != nil {
			w.fail(err)
			firstErr = w.err
		}
	}
	if err := w.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: close %s: %w", ErrWrite, w.path, err)
	}
	return firstErr
}
