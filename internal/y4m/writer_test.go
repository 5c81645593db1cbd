package y4m

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPlanes returns 4x2 yuv420p planes filled with v.
func testPlanes(v byte) [][]byte {
	return [][]byte{
		bytes.Repeat([]byte{v}, 8),
		bytes.Repeat([]byte{v + 1}, 2),
		bytes.Repeat([]byte{v + 2}, 2),
	}
}

func TestWriter_ByteLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.y4m")

	w, err := Create(path, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(testPlanes(10)))
	require.NoError(t, w.WriteFrame(testPlanes(20)))
	assert.Equal(t, 2, w.Frames())
	require.NoError(t, w.Close())

	var want bytes.Buffer
	want.WriteString("YUV4MPEG2 W4 H2 F30000:1001 Ip A0:0 C420\n")
	for _, v := range []byte{10, 20} {
		want.WriteString("FRAME\n")
		for _, p := range testPlanes(v) {
			want.Write(p)
		}
	}

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), got)
	assert.Equal(t, int64(len(got)), w.Size())
}

func TestWriter_HeaderOnlyWhenNoFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.y4m")

	w, err := Create(path, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testHeader().String(), string(got))
}

func TestWriter_RejectsBadPlanes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.y4m")
	w, err := Create(path, testHeader())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	err = w.WriteFrame([][]byte{make([]byte, 8), make([]byte, 2)})
	assert.ErrorIs(t, err, ErrPlaneSize)

	err = w.WriteFrame([][]byte{make([]byte, 8), make([]byte, 3), make([]byte, 2)})
	assert.ErrorIs(t, err, ErrPlaneSize)

	assert.Equal(t, 0, w.Frames())
	assert.Equal(t, int64(len(testHeader().String())), w.Size())

	// a rejected frame does not poison the writer
	require.NoError(t, w.WriteFrame(testPlanes(1)))
}

func TestWriter_InvalidHeader(t *testing.T) {
	h := testHeader()
	h.Width = 0
	_, err := Create(filepath.Join(t.TempDir(), "x.y4m"), h)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestWriter_CreateFails(t *testing.T) {
	_, err := Create(filepath.Join(t.TempDir(), "missing", "dir", "x.y4m"), testHeader())
	assert.ErrorIs(t, err, ErrWrite)
}

func TestWriter_FailureTruncatesToLastFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.y4m")
	w, err := Create(path, testHeader())
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame(testPlanes(1)))
	committed := w.Size()

	// simulate an I/O failure on the next write by closing the descriptor
	require.NoError(t, w.file.Close())
	err = w.WriteFrame(testPlanes(2))
	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, 1, w.Frames())

	// the error is sticky
	assert.ErrorIs(t, w.WriteFrame(testPlanes(3)), ErrWrite)

	_ = w.Close()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, committed, info.Size())
}

func TestWriter_CloseIdempotent(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "c.y4m"), testHeader())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteFrame(testPlanes(1)), ErrWriterClosed)
}
