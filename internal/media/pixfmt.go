package media

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedPixelFormat is returned for pixel formats Y4M cannot carry.
var ErrUnsupportedPixelFormat = errors.New("media: unsupported pixel format")

// PixelFormat names a planar pixel layout using ffmpeg's pix_fmt spelling.
type PixelFormat string

// Pixel formats that map onto a Y4M colorspace tag.
const (
	PixFmtYUV420P     PixelFormat = "yuv420p"
	PixFmtYUV422P     PixelFormat = "yuv422p"
	PixFmtYUV444P     PixelFormat = "yuv444p"
	PixFmtYUV420P10LE PixelFormat = "yuv420p10le"
	PixFmtYUV422P10LE PixelFormat = "yuv422p10le"
	PixFmtYUV444P10LE PixelFormat = "yuv444p10le"
	PixFmtGray        PixelFormat = "gray"
)

type formatInfo struct {
	colorspace     string
	chromaShiftW   uint
	chromaShiftH   uint
	bytesPerSample int
	planes         int
}

var formats = map[PixelFormat]formatInfo{
	PixFmtYUV420P:     {colorspace: "420", chromaShiftW: 1, chromaShiftH: 1, bytesPerSample: 1, planes: 3},
	PixFmtYUV422P:     {colorspace: "422", chromaShiftW: 1, chromaShiftH: 0, bytesPerSample: 1, planes: 3},
	PixFmtYUV444P:     {colorspace: "444", chromaShiftW: 0, chromaShiftH: 0, bytesPerSample: 1, planes: 3},
	PixFmtYUV420P10LE: {colorspace: "420p10", chromaShiftW: 1, chromaShiftH: 1, bytesPerSample: 2, planes: 3},
	PixFmtYUV422P10LE: {colorspace: "422p10", chromaShiftW: 1, chromaShiftH: 0, bytesPerSample: 2, planes: 3},
	PixFmtYUV444P10LE: {colorspace: "444p10", chromaShiftW: 0, chromaShiftH: 0, bytesPerSample: 2, planes: 3},
	PixFmtGray:        {colorspace: "mono", chromaShiftW: 0, chromaShiftH: 0, bytesPerSample: 1, planes: 1},
}

// Y4M colorspace tags that decode to the same layout as a canonical tag.
var colorspaceAliases = map[string]PixelFormat{
	"420jpeg":  PixFmtYUV420P,
	"420paldv": PixFmtYUV420P,
	"420mpeg2": PixFmtYUV420P,
}

// full-range variants ffmpeg reports for JPEG-style sources
var pixFmtAliases = map[string]PixelFormat{
	"yuvj420p": PixFmtYUV420P,
	"yuvj422p": PixFmtYUV422P,
	"yuvj444p": PixFmtYUV444P,
	"gray8":    PixFmtGray,
}

// Supported reports whether the format can be written to Y4M.
func (f PixelFormat) Supported() bool {
	_, ok := formats[f]
	return ok
}

// Colorspace returns the Y4M C tag value for the format.
func (f PixelFormat) Colorspace() string {
	return formats[f].colorspace
}

// BytesPerSample is 1 for 8-bit formats and 2 for high bit depth formats.
func (f PixelFormat) BytesPerSample() int {
	return formats[f].bytesPerSample
}

// PlaneSizes returns the byte length of each plane for a w x h frame.
// Chroma dimensions round up for odd sizes.
func (f PixelFormat) PlaneSizes(w, h int) []int {
	info, ok := formats[f]
	if !ok || w <= 0 || h <= 0 {
		return nil
	}
	luma := w * h * info.bytesPerSample
	if info.planes == 1 {
		return []int{luma}
	}
	cw := (w + (1 << info.chromaShiftW) - 1) >> info.chromaShiftW
	ch := (h + (1 << info.chromaShiftH) - 1) >> info.chromaShiftH
	chroma := cw * ch * info.bytesPerSample
	return []int{luma, chroma, chroma}
}

// FrameSize returns the total payload bytes of one w x h frame.
func (f PixelFormat) FrameSize(w, h int) int {
	total := 0
	for _, n := range f.PlaneSizes(w, h) {
		total += n
	}
	return total
}

// SplitPlanes slices a packed frame buffer into its planes without copying.
func (f PixelFormat) SplitPlanes(buf []byte, w, h int) ([][]byte, error) {
	sizes := f.PlaneSizes(w, h)
	if sizes == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPixelFormat, f)
	}
	planes := make([][]byte, 0, len(sizes))
	off := 0
	for _, n := range sizes {
		if off+n > len(buf) {
			return nil, fmt.Errorf("frame buffer too short: have %d bytes, need %d", len(buf), f.FrameSize(w, h))
		}
		planes = append(planes, buf[off:off+n])
		off += n
	}
	return planes, nil
}

// ParsePixelFormat maps an ffmpeg pix_fmt name onto a supported format.
func ParsePixelFormat(name string) (PixelFormat, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := pixFmtAliases[name]; ok {
		return alias, nil
	}
	f := PixelFormat(name)
	if !f.Supported() {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedPixelFormat, name)
	}
	return f, nil
}

// ParseColorspace maps a Y4M C tag value onto a pixel format. An empty tag
// means the Y4M default, 4:2:0.
func ParseColorspace(tag string) (PixelFormat, error) {
	if tag == "" {
		return PixFmtYUV420P, nil
	}
	if alias, ok := colorspaceAliases[tag]; ok {
		return alias, nil
	}
	for f, info := range formats {
		if info.colorspace == tag {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: colorspace C%s", ErrUnsupportedPixelFormat, tag)
}

// ResolvePixelFormat picks the output format for a source reporting src.
// A non-empty override wins; otherwise the source format is kept when Y4M
// can carry it, and yuv420p is used as the conversion target when not.
func ResolvePixelFormat(src string, override PixelFormat) (PixelFormat, error) {
	if override != "" {
		return ParsePixelFormat(string(override))
	}
	if f, err := ParsePixelFormat(src); err == nil {
		return f, nil
	}
	return PixFmtYUV420P, nil
}
