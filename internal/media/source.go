// Package media provides the frame source abstraction used by the segmenter.
// It defines the Source and Video interfaces (ports) that decode engines
// implement, the pixel format table shared with the Y4M layer, and an
// ffmpeg-backed implementation.
package media

import (
	"context"
	"errors"
	"fmt"
)

// Static errors for frame source operations.
var (
	// ErrOpen is returned when the input cannot be opened or has no usable video track.
	ErrOpen = errors.New("media: cannot open video")
	// ErrNoVideoStream is returned when the container has no video stream.
	ErrNoVideoStream = errors.New("media: no video stream")
	// ErrNoFrames is returned when the video track reports zero frames.
	ErrNoFrames = errors.New("media: video track has no frames")
	// ErrDecode is the sentinel matched by every DecodeError.
	ErrDecode = errors.New("media: frame decode failed")
	// ErrOutOfOrder is returned when a frame is requested behind the decode cursor.
	ErrOutOfOrder = errors.New("media: frames must be requested in increasing index order")
	// ErrFrameOutOfRange is returned when a frame index is outside [0, FrameCount).
	ErrFrameOutOfRange = errors.New("media: frame index out of range")
	// ErrClosed is returned when a closed video is used.
	ErrClosed = errors.New("media: video is closed")
)

// Rational is a ratio of two integers, used for frame rates and aspect ratios.
type Rational struct {
	Num int
	Den int
}

// String formats the ratio the way Y4M headers expect it.
func (r Rational) String() string {
	return fmt.Sprintf("%d:%d", r.Num, r.Den)
}

// Valid reports whether both terms are positive.
func (r Rational) Valid() bool {
	return r.Num > 0 && r.Den > 0
}

// Interlace describes the field order of the video track.
type Interlace string

const (
	// InterlaceProgressive is a progressive (non-interlaced) track.
	InterlaceProgressive Interlace = "p"
	// InterlaceTopFirst is interlaced with the top field first.
	InterlaceTopFirst Interlace = "t"
	// InterlaceBottomFirst is interlaced with the bottom field first.
	InterlaceBottomFirst Interlace = "b"
	// InterlaceMixed has per-frame field order.
	InterlaceMixed Interlace = "m"
)

// Properties describes a video track. It is read once after opening and
// stays constant for the lifetime of the Video.
type Properties struct {
	Width       int
	Height      int
	FrameRate   Rational
	PixelFormat PixelFormat
	FrameCount  int
	Interlace   Interlace
	// Aspect is the sample aspect ratio; 0:0 means unknown.
	Aspect Rational
}

// FrameSize returns the number of payload bytes of one decoded frame.
func (p Properties) FrameSize() int {
	return p.PixelFormat.FrameSize(p.Width, p.Height)
}

// Frame is one decoded frame. Planes are in canonical order (Y, Cb, Cr).
// Plane memory belongs to the Video and is only valid until the next
// DecodeFrame or Close call; use Clone to keep a frame longer.
type Frame struct {
	Index  int
	Planes [][]byte
}

// Clone returns a deep copy of the frame that the caller owns.
func (f *Frame) Clone() *Frame {
	planes := make([][]byte, len(f.Planes))
	for i, p := range f.Planes {
		planes[i] = append([]byte(nil), p...)
	}
	return &Frame{Index: f.Index, Planes: planes}
}

// Hint is a cheap, pre-decode validity hint for a frame.
type Hint int8

const (
	// HintUnknown means validity is only discovered at decode time.
	HintUnknown Hint = iota
	// HintDecodable means the frame's packet carried no corruption marker.
	HintDecodable
	// HintCorrupt means the frame's packet was flagged corrupt by the demuxer.
	HintCorrupt
)

// String returns a short name for the hint.
func (h Hint) String() string {
	switch h {
	case HintDecodable:
		return "decodable"
	case HintCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// Source opens videos. Implementations wrap a concrete decode engine so that
// callers never branch on container or codec identity.
type Source interface {
	// Open opens the video at path. Errors wrap ErrOpen.
	Open(ctx context.Context, path string) (Video, error)
}

// Video is an open video resource owned by a single caller.
type Video interface {
	// Properties returns the immutable track properties.
	Properties() Properties

	// DecodeFrame returns the frame at index. Indexes must be requested in
	// strictly increasing order; skipped indexes are decoded and discarded.
	// A corrupt frame yields an error matching ErrDecode, after which the
	// caller may continue with the next index.
	DecodeFrame(ctx context.Context, index int) (*Frame, error)

	// Close releases the underlying decoder. It is safe to call more than once.
	Close() error
}

// HintProvider is implemented by videos that can report per-frame validity
// hints without decoding. Hints are in frame index order.
type HintProvider interface {
	FrameHints(ctx context.Context) ([]Hint, error)
}

// Rewinder is implemented by videos that can restart decoding at frame 0
// without opening the file again.
type Rewinder interface {
	Rewind() error
}

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is makes every DecodeError match ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// CheckIndex validates a requested index against the track length and the
// decode cursor (the next index the video will produce).
func CheckIndex(index, cursor, frameCount int) error {
	if index < 0 || index >= frameCount {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, index, frameCount)
	}
	if index < cursor {
		return fmt.Errorf("%w: requested %d, next is %d", ErrOutOfOrder, index, cursor)
	}
	return nil
}
