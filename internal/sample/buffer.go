// Package sample holds the in-memory stereo frame store used while a take is
// being recorded.
package sample

// Channels is the number of interleaved channels in a Frame.
const Channels = 2

// Frame is one stereo sample pair
type Frame struct {
	L float32
	R float32
}

// IsSilent reports whether both channels are exactly zero
func (f Frame) IsSilent() bool {
	return f.L == 0 && f.R == 0
}

// Buffer is an append-only, growable sequence of frames.
// It has a single writer; callers provide their own locking.
type Buffer struct {
	frames []Frame
}

// NewBuffer creates a buffer with room for capacity frames before the first reallocation
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{frames: make([]Frame, 0, capacity)}
}

// Reset discards all frames but keeps the allocated storage
func (b *Buffer) Reset() {
	b.frames = b.frames[:0]
}

// Append copies frames to the end of the buffer
func (b *Buffer) Append(frames []Frame) {
	b.frames = append(b.frames, frames...)
}

// AppendSilence appends count zero frames
func (b *Buffer) AppendSilence(count int) {
	if count <= 0 {
		return
	}
	n := len(b.frames)
	if n+count > cap(b.frames) {
		b.frames = append(b.frames, make([]Frame, count)...)
		return
	}
	b.frames = b.frames[:n+count]
	clear(b.frames[n:])
}

// IsEmpty reports whether the buffer holds no frames
func (b *Buffer) IsEmpty() bool {
	return len(b.frames) == 0
}

// FrameCount returns the number of frames held
func (b *Buffer) FrameCount() int {
	return len(b.frames)
}

// Frames returns the current contents without copying. The slice is only
// valid until the next mutation.
func (b *Buffer) Frames() []Frame {
	return b.frames
}

// Trim strips fully silent frames from both ends and hands the remaining
// contiguous frames to the caller. The buffer is empty afterwards.
func (b *Buffer) Trim() []Frame {
	frames := TrimSilence(b.frames)
	b.frames = nil
	if len(frames) == 0 {
		return nil
	}
	return frames
}

// TrimSilence returns the sub-slice of frames between the first and last
// non-silent frame. Interior silence is kept.
func TrimSilence(frames []Frame) []Frame {
	start := 0
	for start < len(frames) && frames[start].IsSilent() {
		start++
	}
	end := len(frames)
	for end > start && frames[end-1].IsSilent() {
		end--
	}
	return frames[start:end]
}

// Interleave flattens frames into L,R,L,R... multiplying every value by scale.
func Interleave(frames []Frame, scale float32) []float32 {
	out := make([]float32, len(frames)*Channels)
	for i, f := range frames {
		out[i*Channels] = f.L * scale
		out[i*Channels+1] = f.R * scale
	}
	return out
}
