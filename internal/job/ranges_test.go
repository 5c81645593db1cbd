package job

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/y4m-segmenter/internal/index"
	"github.com/maauso/y4m-segmenter/internal/media"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		line      string
		wantStart int
		wantEnd   int
		wantErr   bool
	}{
		{"0 10", 0, 10, false},
		{"  5   9 ", 5, 9, false},
		{"95 200", 95, 100, false},
		{"99 100", 99, 100, false},
		{"10", 0, 0, true},
		{"a 10", 0, 0, true},
		{"0 b", 0, 0, true},
		{"-1 10", 0, 0, true},
		{"10 10", 0, 0, true},
		{"50 40", 0, 0, true},
		{"100 120", 0, 0, true},
		{"1 2 3", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			start, end, err := ParseRange(tt.line, 100)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRange)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}
}

func TestSegmenter_ExtractRanges(t *testing.T) {
	src := &fakeSource{frames: 100}
	seg, dir := newTestSegmenter(t, src)

	requests := strings.NewReader("0 10\n\n95 200\nfoo\n50 40\n20 25\n")
	var results bytes.Buffer

	err := seg.ExtractRanges(context.Background(), "input.mkv", requests, &results)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(results.String(), "\n"), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, "4 2 100 1 25", lines[0])
	assert.Equal(t, fmt.Sprintf("0 %s", filepath.Join(dir, "0-10.y4m")), lines[1])
	assert.Equal(t, fmt.Sprintf("95 %s", filepath.Join(dir, "95-100.y4m")), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "error invalid range"), lines[3])
	assert.True(t, strings.HasPrefix(lines[4], "error invalid range"), lines[4])
	assert.Equal(t, fmt.Sprintf("20 %s", filepath.Join(dir, "20-25.y4m")), lines[5])

	_, values := readSegment(t, filepath.Join(dir, "0-10.y4m"))
	assert.Equal(t, seq(0, 10), values)
	_, values = readSegment(t, filepath.Join(dir, "95-100.y4m"))
	assert.Equal(t, seq(95, 100), values)
	_, values = readSegment(t, filepath.Join(dir, "20-25.y4m"))
	assert.Equal(t, seq(20, 25), values)

	// one open for the session; only "20 25" goes backwards
	videos := src.videos()
	require.Len(t, videos, 1)
	assert.Equal(t, 1, videos[0].rewindCount())
	assert.Equal(t, append(append(intRange(0, 10), intRange(95, 100)...), intRange(20, 25)...),
		videos[0].decodedIndices())
	assert.True(t, videos[0].isClosed())
}

func TestSegmenter_ExtractRanges_ForwardRequestsShareDecoder(t *testing.T) {
	src := &fakeSource{frames: 30}
	seg, _ := newTestSegmenter(t, src)

	var results bytes.Buffer
	err := seg.ExtractRanges(context.Background(), "input.mkv", strings.NewReader(`0 5
5 8
12 20
`), &results)
	require.NoError(t, err)

	videos := src.videos()
	require.Len(t, videos, 1)
	assert.Zero(t, videos[0].rewindCount())
	assert.Equal(t, append(intRange(0, 8), intRange(12, 20)...), videos[0].decodedIndices())
}

func TestSegmenter_ExtractRanges_ReopensWithoutRewind(t *testing.T) {
	src := &fakeSource{frames: 30, forwardOnly: true}
	seg, dir := newTestSegmenter(t, src)

	var results bytes.Buffer
	err := seg.ExtractRanges(context.Background(), "input.mkv", strings.NewReader(`10 15
2 4
`), &results)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(results.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, fmt.Sprintf("2 %s", filepath.Join(dir, "2-4.y4m")), lines[2])
	_, values := readSegment(t, filepath.Join(dir, "2-4.y4m"))
	assert.Equal(t, seq(2, 4), values)

	videos := src.videos()
	require.Len(t, videos, 2)
	assert.True(t, videos[0].isClosed())
	assert.True(t, videos[1].isClosed())
}

func TestSegmenter_ExtractRanges_CorruptHints(t *testing.T) {
	hints := make([]media.Hint, 10)
	for i := range hints {
		hints[i] = media.HintDecodable
	}
	hints[3] = media.HintCorrupt
	src := &fakeSource{frames: 10, hints: hints}
	seg, dir := newTestSegmenter(t, src, WithTolerance(1))

	var results bytes.Buffer
	err := seg.ExtractRanges(context.Background(), "input.mkv", strings.NewReader(`2 5
`), &results)
	require.NoError(t, err)

	_, values := readSegment(t, filepath.Join(dir, "2-5.y4m"))
	assert.Equal(t, []byte{2, 4}, values)
	// the flagged frame is never handed to the decoder
	assert.Equal(t, []int{2, 4}, src.videos()[0].decodedIndices())
}

func TestSegmenter_ExtractRanges_BudgetPerRequest(t *testing.T) {
	src := &fakeSource{frames: 30, bad: map[int]bool{2: true, 3: true}}
	seg, dir := newTestSegmenter(t, src, WithTolerance(1))

	requests := strings.NewReader("0 5\n10 15\n")
	var results bytes.Buffer

	err := seg.ExtractRanges(context.Background(), "input.mkv", requests, &results)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(results.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "error error budget exceeded: 2 decode errors, 1 tolerated")
	assert.Equal(t, fmt.Sprintf("10 %s", filepath.Join(dir, "10-15.y4m")), lines[2])
}

func TestSegmenter_ExtractRanges_OpenError(t *testing.T) {
	seg, _ := newTestSegmenter(t, &fakeSource{openErr: media.ErrOpen})

	var results bytes.Buffer
	err := seg.ExtractRanges(context.Background(), "input.mkv", strings.NewReader("0 1\n"), &results)

	assert.ErrorIs(t, err, ErrOpen)
	assert.Empty(t, results.String())
}

func TestSegmenter_ExtractRanges_EmptyVideo(t *testing.T) {
	src := &fakeSource{frames: 0}
	seg, _ := newTestSegmenter(t, src)

	var results bytes.Buffer
	err := seg.ExtractRanges(context.Background(), "input.mkv", strings.NewReader("0 1\n"), &results)

	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, index.ErrEmpty)
	assert.Empty(t, results.String())
	assert.True(t, src.videos()[0].isClosed())
}

func TestSegmenter_ExtractRanges_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seg, _ := newTestSegmenter(t, &fakeSource{frames: 10})

	var results bytes.Buffer
	err := seg.ExtractRanges(ctx, "input.mkv", strings.NewReader("0 1\n"), &results)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "4 2 10 1 25\n", results.String())
}
