package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, start float32) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		v := start + float32(i)
		frames[i] = Frame{L: v, R: -v}
	}
	return frames
}

func TestBuffer_AppendOrderAndCount(t *testing.T) {
	b := NewBuffer(4)
	require.True(t, b.IsEmpty())

	first := ramp(3, 1)
	second := ramp(5, 100)
	b.Append(first)
	b.AppendSilence(2)
	b.Append(second)

	assert.Equal(t, 10, b.FrameCount())
	assert.False(t, b.IsEmpty())

	want := append(append(append([]Frame{}, first...), Frame{}, Frame{}), second...)
	assert.Equal(t, want, b.Frames())
}

func TestBuffer_AppendCopiesInput(t *testing.T) {
	b := NewBuffer(0)
	in := ramp(4, 1)
	b.Append(in)
	in[0] = Frame{L: 42, R: 42}

	assert.Equal(t, Frame{L: 1, R: -1}, b.Frames()[0])
}

func TestBuffer_AppendSilenceReusesCapacity(t *testing.T) {
	b := NewBuffer(8)
	b.Append(ramp(6, 1))
	b.Reset()
	b.AppendSilence(6)

	require.Equal(t, 6, b.FrameCount())
	for i, f := range b.Frames() {
		assert.Truef(t, f.IsSilent(), "frame %d should be silent after reset, got %+v", i, f)
	}
}

func TestBuffer_AppendSilenceNonPositive(t *testing.T) {
	b := NewBuffer(0)
	b.AppendSilence(0)
	b.AppendSilence(-5)
	assert.True(t, b.IsEmpty())
}

func TestBuffer_ResetIdempotent(t *testing.T) {
	b := NewBuffer(0)
	b.Append(ramp(10, 1))

	b.Reset()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.FrameCount())

	b.Reset()
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.FrameCount())
}

func TestBuffer_Trim(t *testing.T) {
	signal := []Frame{{L: 1, R: 0}, {}, {L: 0, R: -3}, {L: 5, R: 5}}

	tests := []struct {
		name  string
		build func(b *Buffer)
		want  []Frame
	}{
		{
			name: "silence around signal",
			build: func(b *Buffer) {
				b.AppendSilence(7)
				b.Append(signal)
				b.AppendSilence(3)
			},
			want: signal,
		},
		{
			name: "all silence",
			build: func(b *Buffer) {
				b.AppendSilence(64)
			},
			want: nil,
		},
		{
			name: "no silence",
			build: func(b *Buffer) {
				b.Append(ramp(5, 1))
			},
			want: ramp(5, 1),
		},
		{
			name:  "empty",
			build: func(b *Buffer) {},
			want:  nil,
		},
		{
			name: "single channel non-zero at the edge is kept",
			build: func(b *Buffer) {
				b.Append([]Frame{{L: 0, R: 0.5}, {}, {}})
			},
			want: []Frame{{L: 0, R: 0.5}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(0)
			tt.build(b)

			got := b.Trim()
			assert.Equal(t, tt.want, got)
			assert.True(t, b.IsEmpty(), "trim hands ownership to the caller")
		})
	}
}

func TestInterleave(t *testing.T) {
	frames := []Frame{{L: 32768, R: -16384}, {L: 0, R: 8192}}

	got := Interleave(frames, 1.0/32768.0)
	assert.Equal(t, []float32{1, -0.5, 0, 0.25}, got)
	assert.Len(t, got, len(frames)*Channels)
}
