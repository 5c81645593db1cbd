package job

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

func testProperties(frames int) media.Properties {
	return media.Properties{
		Width:       4,
		Height:      2,
		FrameRate:   media.Rational{Num: 25, Den: 1},
		PixelFormat: media.PixFmtYUV420P,
		FrameCount:  frames,
		Interlace:   media.InterlaceProgressive,
	}
}

// fakeVideo produces 4x2 yuv420p frames whose luma bytes all equal the frame
// index modulo 256.
type fakeVideo struct {
	mu      sync.Mutex
	props   media.Properties
	bad     map[int]bool
	short   map[int]bool
	hints   []media.Hint
	cursor  int
	closed  bool
	decoded []int
	rewinds int
}

func (v *fakeVideo) Properties() media.Properties { return v.props }

func (v *fakeVideo) DecodeFrame(ctx context.Context, index int) (*media.Frame, error) {
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
	v.cursor = index + 1
	v.decoded = append(v.decoded, index)

	if v.bad[index] {
		return nil, &media.DecodeError{Index: index, Err: errors.New("corrupt packet")}
	}
	planes := framePlanes(byte(index))
	if v.short[index] {
		planes[0] = planes[0][:3]
	}
	return &media.Frame{Index: index, Planes: planes}, nil
}

func (v *fakeVideo) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

func (v *fakeVideo) Rewind() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return media.ErrClosed
	}
	v.cursor = 0
	v.rewinds++
	return nil
}

func (v *fakeVideo) rewindCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rewinds
}

func (v *fakeVideo) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *fakeVideo) decodedIndices() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.decoded...)
}

// hintedVideo adds per-frame hints to fakeVideo.
type hintedVideo struct {
	*fakeVideo
}

func (v hintedVideo) FrameHints(context.Context) ([]media.Hint, error) {
	return v.hints, nil
}

func framePlanes(v byte) [][]byte {
	return [][]byte{
		bytes.Repeat([]byte{v}, 8),
		bytes.Repeat([]byte{128}, 2),
		bytes.Repeat([]byte{128}, 2),
	}
}

// forwardOnlyVideo hides fakeVideo's Rewind.
type forwardOnlyVideo struct {
	media.Video
}

// fakeSource opens a new fakeVideo on every call.
type fakeSource struct {
	mu          sync.Mutex
	frames      int
	bad         map[int]bool
	short       map[int]bool
	hints       []media.Hint
	forwardOnly bool
	openErr     error
	opened      []*fakeVideo
}

func (s *fakeSource) Open(_ context.Context, _ string) (media.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openErr != nil {
		return nil, s.openErr
	}
	v := &fakeVideo{
		props: testProperties(s.frames),
		bad:   s.bad,
		short: s.short,
		hints: s.hints,
	}
	s.opened = append(s.opened, v)
	switch {
	case s.hints != nil:
		return hintedVideo{v}, nil
	case s.forwardOnly:
		return forwardOnlyVideo{v}, nil
	default:
		return v, nil
	}
}

func (s *fakeSource) videos() []*fakeVideo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeVideo(nil), s.opened...)
}

// readSegment returns the header and the luma value of every frame in path.
func readSegment(t *testing.T, path string) (y4m.Header, []byte) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	r, err := y4m.NewReader(f)
	require.NoError(t, err)

	var values []byte
	for {
		planes, err := r.ReadFrame(nil)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.Len(t, planes, 3)
		require.Len(t, planes[0], 8)
		values = append(values, planes[0][0])
	}
	return r.Header(), values
}

func seq(start, end int) []byte {
	out := make([]byte, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, byte(i))
	}
	return out
}

func intRange(start, end int) []int {
	out := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, i)
	}
	return out
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) FrameWritten()                  { m.Called() }
func (m *mockRecorder) DecodeError()                   { m.Called() }
func (m *mockRecorder) SegmentWritten(d time.Duration) { m.Called(d) }
func (m *mockRecorder) RunFinished(outcome string)     { m.Called(outcome) }

type mockStorage struct {
	mock.Mock
	dir string
}

func (m *mockStorage) Dir() string { return m.dir }

func (m *mockStorage) Path(name string) string {
	return m.dir + "/" + name
}

func (m *mockStorage) Publish(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}
