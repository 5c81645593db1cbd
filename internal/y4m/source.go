package y4m

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/maauso/y4m-segmenter/internal/media"
)

// Source implements media.Source for existing Y4M files, which makes a raw
// stream re-segmentable without an external decoder.
type Source struct{}

// Verify interface implementation at compile time.
var _ media.Source = (*Source)(nil)

// NewSource creates a Y4M file source.
func NewSource() *Source {
	return &Source{}
}

// Open parses the header and scans every frame marker once to count frames
// and record which ones are damaged.
func (s *Source) Open(ctx context.Context, path string) (media.Video, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", media.ErrOpen, err)
	}

	hints, headerLen, header, err := scan(ctx, f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", media.ErrOpen, err)
	}
	if len(hints) == 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %w", media.ErrOpen, media.ErrNoFrames)
	}

	if _, err := f.Seek(int64(headerLen), io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: rewind: %w", media.ErrOpen, err)
	}

	props := header.Properties()
	props.FrameCount = len(hints)

	// the body reader shares the header's frame geometry
	body := &Reader{
		r:         bufio.NewReaderSize(f, 256*1024),
		header:    header,
		headerLen: headerLen,
		frameSize: header.FrameSize(),
	}

	return &video{
		file:   f,
		reader: body,
		props:  props,
		hints:  hints,
		buf:    make([]byte, header.FrameSize()),
	}, nil
}

func scan(ctx context.Context, r io.Reader) ([]media.Hint, int, Header, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, 0, Header{}, err
	}

	var hints []media.Hint
	for {
		if len(hints)%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, Header{}, err
			}
		}
		err := reader.SkipFrame()
		switch {
		case err == nil:
			hints = append(hints, media.HintDecodable)
		case errors.Is(err, io.EOF):
			return hints, reader.HeaderLen(), reader.Header(), nil
		case errors.Is(err, ErrMalformedFrame):
			hints = append(hints, media.HintCorrupt)
		case errors.Is(err, io.ErrUnexpectedEOF):
			// a truncated trailing frame is still a frame slot
			hints = append(hints, media.HintCorrupt)
			return hints, reader.HeaderLen(), reader.Header(), nil
		default:
			return nil, 0, Header{}, err
		}
	}
}

type video struct {
	mu     sync.Mutex
	file   *os.File
	reader *Reader
	props  media.Properties
	hints  []media.Hint
	buf    []byte
	cursor int
	closed bool
}

var (
	_ media.Video        = (*video)(nil)
	_ media.HintProvider = (*video)(nil)
	_ media.Rewinder     = (*video)(nil)
)

func (v *video) Properties() media.Properties {
	return v.props
}

func (v *video) FrameHints(_ context.Context) ([]media.Hint, error) {
	out := make([]media.Hint, len(v.hints))
	copy(out, v.hints)
	return out, nil
}

func (v *video) DecodeFrame(ctx context.Context, index int) (*media.Frame, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, media.ErrClosed
	}
	if err := media.CheckIndex(index, v.cursor, v.props.FrameCount); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for v.cursor < index {
		v.cursor++
		if err := v.reader.SkipFrame(); errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			v.cursor = index + 1
			return nil, &media.DecodeError{Index: index, Err: err}
		}
	}

	v.cursor++
	planes, err := v.reader.ReadFrame(v.buf)
	if err != nil {
		return nil, &media.DecodeError{Index: index, Err: err}
	}
	return &media.Frame{Index: index, Planes: planes}, nil
}

// Rewind seeks back to the first frame marker.
func (v *video) Rewind() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return media.ErrClosed
	}
	if _, err := v.file.Seek(int64(v.reader.headerLen), io.SeekStart); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}
	v.reader.r.Reset(v.file)
	v.cursor = 0
	return nil
}

func (v *video) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil
	}
	v.closed = true
	return v.file.Close()
}
