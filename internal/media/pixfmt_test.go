package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormat_PlaneSizes(t *testing.T) {
	tests := []struct {
		name   string
		format PixelFormat
		w, h   int
		want   []int
	}{
		{"yuv420p even", PixFmtYUV420P, 64, 48, []int{3072, 768, 768}},
		{"yuv420p odd rounds up", PixFmtYUV420P, 5, 3, []int{15, 6, 6}},
		{"yuv422p", PixFmtYUV422P, 64, 48, []int{3072, 1536, 1536}},
		{"yuv444p", PixFmtYUV444P, 16, 16, []int{256, 256, 256}},
		{"yuv420p10le doubles samples", PixFmtYUV420P10LE, 64, 48, []int{6144, 1536, 1536}},
		{"gray single plane", PixFmtGray, 10, 10, []int{100}},
		{"unsupported", PixelFormat("rgb24"), 10, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.format.PlaneSizes(tt.w, tt.h))
		})
	}
}

func TestPixelFormat_FrameSize(t *testing.T) {
	assert.Equal(t, 64*48*3/2, PixFmtYUV420P.FrameSize(64, 48))
	assert.Equal(t, 64*48*2, PixFmtYUV422P.FrameSize(64, 48))
	assert.Equal(t, 0, PixelFormat("nv12").FrameSize(64, 48))
}

func TestPixelFormat_SplitPlanes(t *testing.T) {
	buf := make([]byte, PixFmtYUV420P.FrameSize(4, 2))
	for i := range buf {
		buf[i] = byte(i)
	}

	planes, err := PixFmtYUV420P.SplitPlanes(buf, 4, 2)
	require.NoError(t, err)
	require.Len(t, planes, 3)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, planes[0])
	assert.Equal(t, []byte{8, 9}, planes[1])
	assert.Equal(t, []byte{10, 11}, planes[2])

	_, err = PixFmtYUV420P.SplitPlanes(buf[:5], 4, 2)
	assert.Error(t, err)

	_, err = PixelFormat("rgb24").SplitPlanes(buf, 4, 2)
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestParsePixelFormat(t *testing.T) {
	f, err := ParsePixelFormat("yuvj420p")
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV420P, f)

	f, err = ParsePixelFormat(" YUV422P ")
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV422P, f)

	_, err = ParsePixelFormat("nv12")
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestParseColorspace(t *testing.T) {
	tests := []struct {
		tag  string
		want PixelFormat
	}{
		{"", PixFmtYUV420P},
		{"420", PixFmtYUV420P},
		{"420jpeg", PixFmtYUV420P},
		{"420mpeg2", PixFmtYUV420P},
		{"422", PixFmtYUV422P},
		{"444p10", PixFmtYUV444P10LE},
		{"mono", PixFmtGray},
	}
	for _, tt := range tests {
		t.Run("C"+tt.tag, func(t *testing.T) {
			got, err := ParseColorspace(tt.tag)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseColorspace("411")
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestResolvePixelFormat(t *testing.T) {
	f, err := ResolvePixelFormat("yuv422p", "")
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV422P, f, "supported source format is kept")

	f, err = ResolvePixelFormat("nv12", "")
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV420P, f, "unsupported source converts to yuv420p")

	f, err = ResolvePixelFormat("yuv420p", PixFmtYUV444P)
	require.NoError(t, err)
	assert.Equal(t, PixFmtYUV444P, f, "override wins")

	_, err = ResolvePixelFormat("yuv420p", PixelFormat("rgb24"))
	assert.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}

func TestCheckIndex(t *testing.T) {
	assert.NoError(t, CheckIndex(0, 0, 10))
	assert.NoError(t, CheckIndex(5, 3, 10))
	assert.ErrorIs(t, CheckIndex(2, 3, 10), ErrOutOfOrder)
	assert.ErrorIs(t, CheckIndex(10, 0, 10), ErrFrameOutOfRange)
	assert.ErrorIs(t, CheckIndex(-1, 0, 10), ErrFrameOutOfRange)
}

func TestDecodeError(t *testing.T) {
	err := &DecodeError{Index: 7, Err: assert.AnError}
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "decode frame 7")
}

func TestFrame_Clone(t *testing.T) {
	orig := &Frame{Index: 3, Planes: [][]byte{{1, 2}, {3}, {4}}}
	clone := orig.Clone()
	orig.Planes[0][0] = 99

	assert.Equal(t, 3, clone.Index)
	assert.Equal(t, byte(1), clone.Planes[0][0])
}
