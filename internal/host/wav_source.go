package host

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-audio/wav"

	"github.com/audiolibrelab/easyrec/internal/sample"
)

// fullScale is the host's sample convention: 16-bit integer range in floats
const fullScale = 32768.0

// WAVSource plays back a decoded WAV file as engine input
type WAVSource struct {
	frames     []sample.Frame
	pos        int
	sampleRate int
	channels   int
}

// OpenWAV decodes the whole file into memory
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV reads a PCM WAV stream. Mono input is duplicated to both
// channels; channels past the second are dropped.
func DecodeWAV(r io.ReadSeeker) (*WAVSource, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file format")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV data: %w", err)
	}

	numChans := int(decoder.NumChans)
	if numChans < 1 {
		return nil, fmt.Errorf("WAV file has no channels")
	}
	bitDepth := int(decoder.BitDepth)
	if bitDepth < 8 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
	scale := fullScale / float32(int64(1)<<(bitDepth-1))

	count := len(buf.Data) / numChans
	frames := make([]sample.Frame, count)
	for i := range frames {
		l := float32(buf.Data[i*numChans]) * scale
		r := l
		if numChans > 1 {
			r = float32(buf.Data[i*numChans+1]) * scale
		}
		frames[i] = sample.Frame{L: l, R: r}
	}

	slog.Debug("WAV input decoded",
		"frames", count,
		"channels", numChans,
		"sample_rate", decoder.SampleRate,
		"bit_depth", bitDepth)

	return &WAVSource{
		frames:     frames,
		sampleRate: int(decoder.SampleRate),
		channels:   numChans,
	}, nil
}

// SampleRate returns the file's sample rate
func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

// Channels returns the file's channel count
func (s *WAVSource) Channels() int {
	return s.channels
}

// Len returns the number of frames in the file
func (s *WAVSource) Len() int {
	return len(s.frames)
}

// Read copies the next frames into dst
func (s *WAVSource) Read(dst []sample.Frame) (int, error) {
	n := copy(dst, s.frames[s.pos:])
	s.pos += n
	if s.pos >= len(s.frames) {
		return n, io.EOF
	}
	return n, nil
}
