// Package y4m reads and writes YUV4MPEG2 streams.
//
// A stream is one text header line followed by frames; each frame is a
// "FRAME" marker line and the raw planes in Y, Cb, Cr order with no padding.
package y4m

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/y4m-segmenter/internal/media"
)

// Magic is the token every Y4M stream starts with.
const Magic = "YUV4MPEG2"

// frameMarker is written before every frame payload.
const frameMarker = "FRAME\n"

// maxHeaderLen bounds the header line so a non-Y4M input fails fast.
const maxHeaderLen = 4096

// Static errors for header handling.
var (
	// ErrInvalidHeader is returned when a header is malformed or incomplete.
	ErrInvalidHeader = errors.New("y4m: invalid stream header")
)

// Header holds the stream parameters.
type Header struct {
	Width       int
	Height      int
	FrameRate   media.Rational
	Interlace   media.Interlace
	Aspect      media.Rational
	PixelFormat media.PixelFormat
}

// HeaderFromProperties builds the header matching a source video track.
func HeaderFromProperties(p media.Properties) Header {
	return Header{
		Width:       p.Width,
		Height:      p.Height,
		FrameRate:   p.FrameRate,
		Interlace:   p.Interlace,
		Aspect:      p.Aspect,
		PixelFormat: p.PixelFormat,
	}
}

// Properties converts the header back into track properties (without a frame count).
func (h Header) Properties() media.Properties {
	return media.Properties{
		Width:       h.Width,
		Height:      h.Height,
		FrameRate:   h.FrameRate,
		PixelFormat: h.PixelFormat,
		Interlace:   h.Interlace,
		Aspect:      h.Aspect,
	}
}

// Validate checks that the header can describe a stream.
func (h Header) Validate() error {
	if h.Width <= 0 || h.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidHeader, h.Width, h.Height)
	}
	if !h.FrameRate.Valid() {
		return fmt.Errorf("%w: frame rate %s", ErrInvalidHeader, h.FrameRate)
	}
	if !h.PixelFormat.Supported() {
		return fmt.Errorf("%w: %w: %s", ErrInvalidHeader, media.ErrUnsupportedPixelFormat, h.PixelFormat)
	}
	switch h.Interlace {
	case "", "?", media.InterlaceProgressive, media.InterlaceTopFirst, media.InterlaceBottomFirst, media.InterlaceMixed:
	default:
		return fmt.Errorf("%w: interlace %q", ErrInvalidHeader, h.Interlace)
	}
	return nil
}

// FrameSize is the payload size of one frame, excluding the marker.
func (h Header) FrameSize() int {
	return h.PixelFormat.FrameSize(h.Width, h.Height)
}

// String renders the header line, including the trailing newline.
func (h Header) String() string {
	interlace := h.Interlace
	if interlace == "" {
		interlace = media.InterlaceProgressive
	}
	return fmt.Sprintf("%s W%d H%d F%d:%d I%s A%d:%d C%s\n",
		Magic,
		h.Width,
		h.Height,
		h.FrameRate.Num, h.FrameRate.Den,
		interlace,
		h.Aspect.Num, h.Aspect.Den,
		h.PixelFormat.Colorspace(),
	)
}

// ParseHeader parses a header line (with or without the trailing newline).
// Unknown X parameters are ignored. W, H and F are required.
func ParseHeader(line string) (Header, error) {
	fields := strings.Fields(strings.TrimRight(line, "\n"))
	if len(fields) == 0 || fields[0] != Magic {
		return Header{}, fmt.Errorf("%w: missing %s magic", ErrInvalidHeader, Magic)
	}

	h := Header{Interlace: media.InterlaceProgressive}
	var colorspace string
	var err error
	for _, field := range fields[1:] {
		value := field[1:]
		switch field[0] {
		case 'W':
			h.Width, err = strconv.Atoi(value)
		case 'H':
			h.Height, err = strconv.Atoi(value)
		case 'F':
			h.FrameRate, err = parseRatio(value)
		case 'A':
			h.Aspect, err = parseRatio(value)
		case 'I':
			h.Interlace = media.Interlace(value)
		case 'C':
			colorspace = value
		case 'X':
			// vendor extension
		default:
			return Header{}, fmt.Errorf("%w: unknown parameter %q", ErrInvalidHeader, field)
		}
		if err != nil {
			return Header{}, fmt.Errorf("%w: parameter %q: %w", ErrInvalidHeader, field, err)
		}
	}

	h.PixelFormat, err = media.ParseColorspace(colorspace)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrInvalidHeader, err)
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func parseRatio(s string) (media.Rational, error) {
	num, den, ok := strings.Cut(s, ":")
	if !ok {
		return media.Rational{}, fmt.Errorf("ratio %q has no ':'", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return media.Rational{}, err
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return media.Rational{}, err
	}
	return media.Rational{Num: n, Den: d}, nil
}
