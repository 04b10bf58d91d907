// Package host simulates the parts of a music host the recorder talks to: a
// tick-based transport, a processing graph and an engine that drives audio
// callbacks from an input source.
package host

import (
	"sync"
)

// Transport is a song position counter in ticks driven by rendered samples
type Transport struct {
	mu             sync.Mutex
	samplesPerTick float64
	tick           int
	subTick        float64 // samples into the current tick
	playing        bool
	recording      bool
}

// NewTransport creates a stopped transport at tick 0
func NewTransport(sampleRate, bpm, ticksPerBeat int) *Transport {
	spt := float64(sampleRate) * 60 / float64(bpm*ticksPerBeat)
	if spt < 1 {
		spt = 1
	}
	return &Transport{samplesPerTick: spt}
}

// SamplesPerTick returns the tick length in samples
func (t *Transport) SamplesPerTick() float64 {
	return t.samplesPerTick
}

// Play starts playback from the song start
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	t.tick = 0
	t.subTick = 0
}

// StopPlayback stops the song. It reports whether it was playing.
func (t *Transport) StopPlayback() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.playing
	t.playing = false
	return was
}

// SetRecording toggles the host's global record button
func (t *Transport) SetRecording(recording bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recording = recording
}

func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *Transport) Recording() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recording
}

func (t *Transport) TickPosition() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tick
}

func (t *Transport) ResetTickPosition() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick = 0
}

func (t *Transport) ResetSubTickPosition() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subTick = 0
}

// Advance moves the song position by n rendered samples while playing
func (t *Transport) Advance(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing && !t.recording {
		return
	}
	t.subTick += float64(n)
	for t.subTick >= t.samplesPerTick {
		t.subTick -= t.samplesPerTick
		t.tick++
	}
}
