package y4m

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeStream builds an in-memory 4x2 yuv420p stream with one frame per value.
func encodeStream(values ...byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(testHeader().String())
	for _, v := range values {
		buf.WriteString("FRAME\n")
		for _, p := range testPlanes(v) {
			buf.Write(p)
		}
	}
	return buf.Bytes()
}

func TestReader_ReadFrames(t *testing.T) {
	r, err := NewReader(bytes.NewReader(encodeStream(5, 6)))
	require.NoError(t, err)
	assert.Equal(t, testHeader(), r.Header())
	assert.Equal(t, len(testHeader().String()), r.HeaderLen())

	planes, err := r.ReadFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(5), planes)

	planes, err = r.ReadFrame(make([]byte, 12))
	require.NoError(t, err)
	assert.Equal(t, testPlanes(6), planes)

	_, err = r.ReadFrame(nil)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReader_FrameParameters(t *testing.T) {
	stream := strings.Replace(string(encodeStream(1)), "FRAME\n", "FRAME Ixyz\n", 1)
	r, err := NewReader(strings.NewReader(stream))
	require.NoError(t, err)

	planes, err := r.ReadFrame(nil)
	require.NoError(t, err)
	assert.Equal(t, testPlanes(1), planes)
}

func TestReader_Damaged(t *testing.T) {
	t.Run("truncated payload", func(t *testing.T) {
		data := encodeStream(1)
		r, err := NewReader(bytes.NewReader(data[:len(data)-3]))
		require.NoError(t, err)
		_, err = r.ReadFrame(nil)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("bad marker keeps alignment", func(t *testing.T) {
		stream := strings.Replace(string(encodeStream(1, 2)), "FRAME\n", "FRAMX\n", 1)
		r, err := NewReader(strings.NewReader(stream))
		require.NoError(t, err)

		_, err = r.ReadFrame(nil)
		assert.ErrorIs(t, err, ErrMalformedFrame)

		planes, err := r.ReadFrame(nil)
		require.NoError(t, err)
		assert.Equal(t, testPlanes(2), planes)
	})

	t.Run("skip", func(t *testing.T) {
		r, err := NewReader(bytes.NewReader(encodeStream(1, 2)))
		require.NoError(t, err)
		require.NoError(t, r.SkipFrame())
		planes, err := r.ReadFrame(nil)
		require.NoError(t, err)
		assert.Equal(t, testPlanes(2), planes)
		assert.ErrorIs(t, r.SkipFrame(), io.EOF)
	})
}

func TestNewReader_Errors(t *testing.T) {
	_, err := NewReader(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewReader(strings.NewReader("RIFF....WAVEfmt "))
	assert.ErrorIs(t, err, ErrInvalidHeader)

	_, err = NewReader(strings.NewReader("NOTY4M W1 H1 F1:1\n"))
	assert.ErrorIs(t, err, ErrInvalidHeader)
}
