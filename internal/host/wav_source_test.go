package host

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/easyrec/internal/sample"
)

func writeWAV(t *testing.T, bitDepth, numChans int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, 44100, bitDepth, numChans, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: 44100, NumChannels: numChans},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestOpenWAV_Stereo16(t *testing.T) {
	path := writeWAV(t, 16, 2, []int{100, -100, 32767, -32768, 0, 5})

	src, err := OpenWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 44100, src.SampleRate())
	assert.Equal(t, 2, src.Channels())
	require.Equal(t, 3, src.Len())

	dst := make([]sample.Frame, 2)
	n, err := src.Read(dst)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []sample.Frame{{L: 100, R: -100}, {L: 32767, R: -32768}}, dst)

	n, err = src.Read(dst)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 1, n)
	assert.Equal(t, sample.Frame{L: 0, R: 5}, dst[0])
}

func TestOpenWAV_MonoIsDuplicated(t *testing.T) {
	path := writeWAV(t, 16, 1, []int{7, -7})

	src, err := OpenWAV(path)
	require.NoError(t, err)

	dst := make([]sample.Frame, 4)
	n, err := src.Read(dst)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Equal(t, []sample.Frame{{L: 7, R: 7}, {L: -7, R: -7}}, dst[:n])
}

func TestOpenWAV_24BitScaledTo16BitRange(t *testing.T) {
	path := writeWAV(t, 24, 2, []int{256, -8388608})

	src, err := OpenWAV(path)
	require.NoError(t, err)

	dst := make([]sample.Frame, 1)
	_, err = src.Read(dst)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, sample.Frame{L: 1, R: -32768}, dst[0])
}

func TestOpenWAV_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wave file at all"), 0644))

	_, err := OpenWAV(path)
	assert.Error(t, err)

	_, err = OpenWAV(filepath.Join(t.TempDir(), "missing.wav"))
	assert.Error(t, err)
}
