package y4m

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedFrame is returned when a frame does not start with a FRAME marker.
var ErrMalformedFrame = errors.New("y4m: malformed frame marker")

// Reader reads frames from a Y4M stream.
type Reader struct {
	r         *bufio.Reader
	header    Header
	headerLen int
	frameSize int
}

// NewReader reads and parses the stream header from r.
func NewReader(r io.Reader) (*Reader, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 256*1024)
	}

	line, err := readLine(br, maxHeaderLen)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty stream", ErrInvalidHeader)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	h, err := ParseHeader(line)
	if err != nil {
		return nil, err
	}
	return &Reader{
		r:         br,
		header:    h,
		headerLen: len(line),
		frameSize: h.FrameSize(),
	}, nil
}

// Header returns the parsed stream header.
func (r *Reader) Header() Header {
	return r.header
}

// HeaderLen is the byte length of the header line including its newline.
func (r *Reader) HeaderLen() int {
	return r.headerLen
}

// ReadFrame reads the next frame into buf (allocated when too small) and
// returns its planes, which alias buf. It returns io.EOF at the end of the
// stream and io.ErrUnexpectedEOF for a truncated frame. A bad marker yields
// ErrMalformedFrame after the payload has been skipped, so the reader stays
// aligned on the next frame.
func (r *Reader) ReadFrame(buf []byte) ([][]byte, error) {
	markerOK, err := r.readMarker()
	if err != nil {
		return nil, err
	}
	if len(buf) < r.frameSize {
		buf = make([]byte, r.frameSize)
	}
	buf = buf[:r.frameSize]
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	if !markerOK {
		return nil, ErrMalformedFrame
	}
	return r.header.PixelFormat.SplitPlanes(buf, r.header.Width, r.header.Height)
}

// SkipFrame discards the next frame, with the same errors as ReadFrame.
func (r *Reader) SkipFrame() error {
	markerOK, err := r.readMarker()
	if err != nil {
		return err
	}
	n, err := r.r.Discard(r.frameSize)
	if err != nil || n != r.frameSize {
		return io.ErrUnexpectedEOF
	}
	if !markerOK {
		return ErrMalformedFrame
	}
	return nil
}

// readMarker consumes one marker line and reports whether it was a FRAME marker.
func (r *Reader) readMarker() (bool, error) {
	line, err := readLine(r.r, maxHeaderLen)
	if err != nil {
		return false, err
	}
	return line == "FRAME\n" || strings.HasPrefix(line, "FRAME "), nil
}

// readLine reads up to and including '\n'. A clean end of stream returns
// io.EOF; a partial line returns io.ErrUnexpectedEOF.
func readLine(br *bufio.Reader, limit int) (string, error) {
	var sb strings.Builder
	for sb.Len() < limit {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() == 0 {
				return "", io.EOF
			}
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		sb.WriteByte(b)
		if b == '\n' {
			return sb.String(), nil
		}
	}
	return "", fmt.Errorf("line exceeds %d bytes", limit)
}
