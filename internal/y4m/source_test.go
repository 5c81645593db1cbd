package y4m

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/y4m-segmenter/internal/media"
)

func writeStream(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.y4m")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestSource_OpenAndDecode(t *testing.T) {
	ctx := context.Background()
	path := writeStream(t, encodeStream(1, 2, 3, 4))

	video, err := NewSource().Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = video.Close() }()

	props := video.Properties()
	assert.Equal(t, 4, props.Width)
	assert.Equal(t, 2, props.Height)
	assert.Equal(t, 4, props.FrameCount)
	assert.Equal(t, media.PixFmtYUV420P, props.PixelFormat)

	hints, err := video.(media.HintProvider).FrameHints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []media.Hint{media.HintDecodable, media.HintDecodable, media.HintDecodable, media.HintDecodable}, hints)

	frame, err := video.DecodeFrame(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(1), frame.Planes)

	frame, err = video.DecodeFrame(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(3), frame.Planes)

	_, err = video.DecodeFrame(ctx, 1)
	assert.ErrorIs(t, err, media.ErrOutOfOrder)

	frame, err = video.DecodeFrame(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, frame.Index)
}

func TestSource_DamagedFrames(t *testing.T) {
	ctx := context.Background()
	stream := encodeStream(1, 2, 3)
	// corrupt the second marker
	second := strings.Index(string(stream), "FRAME\n") + len("FRAME\n") + 12
	copy(stream[second:], "FRAMX\n")
	// and truncate the last frame
	path := writeStream(t, stream[:len(stream)-4])

	video, err := NewSource().Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = video.Close() }()

	assert.Equal(t, 3, video.Properties().FrameCount)
	hints, err := video.(media.HintProvider).FrameHints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []media.Hint{media.HintDecodable, media.HintCorrupt, media.HintCorrupt}, hints)

	_, err = video.DecodeFrame(ctx, 0)
	require.NoError(t, err)

	_, err = video.DecodeFrame(ctx, 1)
	assert.ErrorIs(t, err, media.ErrDecode)

	_, err = video.DecodeFrame(ctx, 2)
	assert.ErrorIs(t, err, media.ErrDecode)
}

func TestSource_OpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewSource().Open(ctx, filepath.Join(t.TempDir(), "missing.y4m"))
	assert.ErrorIs(t, err, media.ErrOpen)

	_, err = NewSource().Open(ctx, writeStream(t, []byte("not a y4m stream\n")))
	assert.ErrorIs(t, err, media.ErrOpen)

	_, err = NewSource().Open(ctx, writeStream(t, []byte(testHeader().String())))
	assert.ErrorIs(t, err, media.ErrOpen)
	assert.ErrorIs(t, err, media.ErrNoFrames)
}

func TestSource_Rewind(t *testing.T) {
	ctx := context.Background()
	video, err := NewSource().Open(ctx, writeStream(t, encodeStream(1, 2, 3)))
	require.NoError(t, err)
	defer func() { _ = video.Close() }()

	frame, err := video.DecodeFrame(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(3), frame.Planes)

	rewinder, ok := video.(media.Rewinder)
	require.True(t, ok)
	require.NoError(t, rewinder.Rewind())

	frame, err = video.DecodeFrame(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(1), frame.Planes)

	frame, err = video.DecodeFrame(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(2), frame.Planes)

	require.NoError(t, video.Close())
	assert.ErrorIs(t, rewinder.Rewind(), media.ErrClosed)
}

func TestSource_ClosedVideo(t *testing.T) {
	ctx := context.Background()
	video, err := NewSource().Open(ctx, writeStream(t, encodeStream(1)))
	require.NoError(t, err)
	require.NoError(t, video.Close())
	require.NoError(t, video.Close())

	_, err = video.DecodeFrame(ctx, 0)
	assert.ErrorIs(t, err, media.ErrClosed)
}
