package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/y4m-segmenter/internal/config"
	"github.com/maauso/y4m-segmenter/internal/job"
	"github.com/maauso/y4m-segmenter/internal/media"
	"github.com/maauso/y4m-segmenter/internal/storage"
	"github.com/maauso/y4m-segmenter/internal/y4m"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SegmentLength: 2,
		OnDecodeError: "omit",
		OutputDir:     t.TempDir(),
		KeepLocal:     true,
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		Port:          8080,
		LogFormat:     "text",
		LogLevel:      "info",
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeY4M writes a 4x2 yuv420p stream with n frames.
func writeY4M(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.y4m")
	w, err := y4m.Create(path, y4m.Header{
		Width:       4,
		Height:      2,
		FrameRate:   media.Rational{Num: 25, Den: 1},
		PixelFormat: media.PixFmtYUV420P,
	})
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		require.NoError(t, w.WriteFrame([][]byte{make([]byte, 8), make([]byte, 2), make([]byte, 2)}))
	}
	require.NoError(t, w.Close())
	return path
}

func TestNewStorage(t *testing.T) {
	t.Run("local", func(t *testing.T) {
		cfg := testConfig(t)
		st, err := NewStorage(cfg, cfg.OutputDir, "", quietLogger())
		require.NoError(t, err)
		assert.IsType(t, &storage.LocalStorage{}, st)
	})

	t.Run("s3", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.S3Bucket = "bucket"
		cfg.S3Region = "us-east-1"
		cfg.S3Endpoint = "http://localhost:9000"
		cfg.AWSAccessKeyID = "key"
		cfg.AWSSecretAccessKey = "secret"

		st, err := NewStorage(cfg, cfg.OutputDir, "runs/1", quietLogger())
		require.NoError(t, err)
		s3st, ok := st.(*storage.S3Storage)
		require.True(t, ok)
		assert.Equal(t, "runs/1/a.y4m", s3st.Key("a.y4m"))
	})
}

func TestNewSource_InvalidPixelFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.PixelFormat = "rgb24"

	_, err := NewSource(cfg, nil)
	assert.ErrorIs(t, err, job.ErrConfig)
}

func TestNewSegmenter_InvalidPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.OnDecodeError = "repeat"

	_, err := NewSegmenter(cfg, quietLogger(), nil, nil)
	assert.ErrorIs(t, err, job.ErrConfig)
}

func TestSplit_Y4MInputEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	input := writeY4M(t, 5)

	source, err := NewSource(cfg, nil)
	require.NoError(t, err)
	st, err := NewStorage(cfg, cfg.OutputDir, "", quietLogger())
	require.NoError(t, err)
	seg, err := NewSegmenter(cfg, quietLogger(), source, st)
	require.NoError(t, err)

	run, err := seg.Split(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, run.Segments, 2)
	assert.Equal(t, 2, run.Segments[0].Frames)
	assert.Equal(t, 3, run.Segments[1].Frames)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "segment_0000.y4m"))
	require.NoError(t, err)
	assert.Equal(t, "YUV4MPEG2 W4 H2 F25:1 Ip A0:0 C420\n", string(data[:len("YUV4MPEG2 W4 H2 F25:1 Ip A0:0 C420\n")]))
}

func TestNewDependencies(t *testing.T) {
	cfg := testConfig(t)

	deps, err := NewDependencies(cfg, quietLogger())
	require.NoError(t, err)
	assert.NotNil(t, deps.RunService)
	assert.NotNil(t, deps.Metrics)

	input := writeY4M(t, 4)
	run, err := deps.RunService.Submit(context.Background(), job.SubmitInput{Input: input})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.OutputDir, run.ID), run.OutputDir)

	require.Eventually(t, func() bool {
		r, err := deps.RunService.Get(context.Background(), run.ID)
		return err == nil && r.GetState() == job.StateCompleted
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, deps.RunService.Shutdown(context.Background()))
}
