// Package wavetable implements the fixed-capacity, slot-indexed sample table
// that finished recordings are written into. A table can live purely in memory
// or be backed by a directory holding one WAV file per occupied slot plus a
// YAML index.
package wavetable

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Capacity is the number of slots in a wavetable
const Capacity = 200

var (
	ErrSlotOutOfRange = errors.New("wavetable slot out of range")
	ErrEmptySlot      = errors.New("wavetable slot is empty")
)

// Format is the sample format a wave is allocated with
type Format string

const (
	FormatInt16   Format = "int16"
	FormatFloat32 Format = "float32"
)

// Spec describes a wave to allocate
type Spec struct {
	Name     string
	Frames   int
	Format   Format
	Stereo   bool
	RootNote int
	Loop     bool
}

// Layer is the writable sample data of a freshly allocated wave
type Layer interface {
	SetSampleRate(rate int)
	// SetChannelData copies data[channel], data[channel+stride], ... into the
	// given channel of the layer.
	SetChannelData(data []float32, channel, stride int) error
	SetLoopBounds(start, end int)
	// Invalidate commits the written data. Until then the slot keeps its
	// previous content, and a failed commit leaves it untouched.
	Invalidate() error
}

// Wave is a stored recording
type Wave struct {
	Slot       int    `yaml:"slot"`
	Name       string `yaml:"name"`
	Frames     int    `yaml:"frames"`
	Format     Format `yaml:"format"`
	Stereo     bool   `yaml:"stereo"`
	RootNote   int    `yaml:"root_note"`
	Loop       bool   `yaml:"loop"`
	LoopStart  int    `yaml:"loop_start"`
	LoopEnd    int    `yaml:"loop_end"`
	SampleRate int    `yaml:"sample_rate"`

	// channels holds normalized samples, one slice per channel
	channels [][]float32
}

// Channels returns the number of channels of the wave
func (w *Wave) Channels() int {
	if w.Stereo {
		return 2
	}
	return 1
}

// Channel returns a copy of one channel's samples
func (w *Wave) Channel(ch int) []float32 {
	if ch < 0 || ch >= len(w.channels) {
		return nil
	}
	out := make([]float32, len(w.channels[ch]))
	copy(out, w.channels[ch])
	return out
}

// Table is a wavetable with Capacity slots
type Table struct {
	mu     sync.RWMutex
	dir    string
	waves  [Capacity]*Wave
	// gen counts allocations per slot so only the latest layer can commit
	gen    [Capacity]uint64
	logger *slog.Logger
}

// New creates an in-memory wavetable
func New() *Table {
	return &Table{
		logger: slog.Default().With("component", "wavetable"),
	}
}

// Capacity returns the number of slots
func (t *Table) Capacity() int {
	return Capacity
}

// Occupied reports whether a wave is stored in slot. Out of range slots are
// never occupied.
func (t *Table) Occupied(slot int) bool {
	if !validSlot(slot) {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.waves[slot] != nil
}

// Wave returns a copy of the wave metadata stored in slot
func (t *Table) Wave(slot int) (Wave, bool) {
	if !validSlot(slot) {
		return Wave{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	w := t.waves[slot]
	if w == nil {
		return Wave{}, false
	}
	return *w, true
}

// Waves lists all occupied slots in slot order
func (t *Table) Waves() []Wave {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var waves []Wave
	for _, w := range t.waves {
		if w != nil {
			waves = append(waves, *w)
		}
	}
	return waves
}

// Allocate creates a pending wave for slot and returns its layer for writing.
// The wave replaces the slot content once the layer is invalidated.
func (t *Table) Allocate(slot int, spec Spec) (Layer, error) {
	if !validSlot(slot) {
		return nil, fmt.Errorf("allocate slot %d: %w", slot, ErrSlotOutOfRange)
	}
	if spec.Frames < 0 {
		return nil, fmt.Errorf("allocate slot %d: negative frame count %d", slot, spec.Frames)
	}
	if spec.Format == "" {
		spec.Format = FormatFloat32
	}

	w := &Wave{
		Slot:     slot,
		Name:     spec.Name,
		Frames:   spec.Frames,
		Format:   spec.Format,
		Stereo:   spec.Stereo,
		RootNote: spec.RootNote,
		Loop:     spec.Loop,
		LoopEnd:  spec.Frames,
	}
	w.channels = make([][]float32, w.Channels())
	for ch := range w.channels {
		w.channels[ch] = make([]float32, spec.Frames)
	}

	t.mu.Lock()
	t.gen[slot]++
	gen := t.gen[slot]
	t.mu.Unlock()

	t.logger.Debug("wave allocated", "slot", slot, "name", spec.Name, "frames", spec.Frames)
	return &layer{table: t, wave: w, gen: gen}, nil
}

// Clear frees slot
func (t *Table) Clear(slot int) error {
	if !validSlot(slot) {
		return fmt.Errorf("clear slot %d: %w", slot, ErrSlotOutOfRange)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.waves[slot] == nil {
		return fmt.Errorf("clear slot %d: %w", slot, ErrEmptySlot)
	}
	t.waves[slot] = nil

	if t.dir == "" {
		return nil
	}
	if err := removeSlotFile(t.dir, slot); err != nil {
		return err
	}
	return t.writeIndexLocked()
}

// FindNextAvailable scans upward from start and returns the first unoccupied
// slot, or -1 when start is out of range or every slot up to capacity is taken.
func FindNextAvailable(o interface{ Occupied(int) bool }, start, capacity int) int {
	if start < 0 || start >= capacity {
		return -1
	}
	for i := start; i < capacity; i++ {
		if !o.Occupied(i) {
			return i
		}
	}
	return -1
}

// NoteFromMIDI converts a MIDI note number into the table's root note encoding
// (octave in the high nibble, 1-based semitone in the low nibble).
func NoteFromMIDI(midi int) int {
	return (midi/12)<<4 + midi%12 + 1
}

func validSlot(slot int) bool {
	return slot >= 0 && slot < Capacity
}

type layer struct {
	table *Table
	wave  *Wave
	gen   uint64
}

func (l *layer) SetSampleRate(rate int) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	l.wave.SampleRate = rate
}

func (l *layer) SetChannelData(data []float32, channel, stride int) error {
	if channel < 0 || channel >= l.wave.Channels() {
		return fmt.Errorf("channel %d out of range for %d-channel wave", channel, l.wave.Channels())
	}
	if stride <= 0 {
		return fmt.Errorf("invalid stride %d", stride)
	}
	need := channel + (l.wave.Frames-1)*stride + 1
	if l.wave.Frames > 0 && len(data) < need {
		return fmt.Errorf("channel data too short: need %d values, got %d", need, len(data))
	}

	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	dst := l.wave.channels[channel]
	for i := range dst {
		dst[i] = data[channel+i*stride]
	}
	return nil
}

func (l *layer) SetLoopBounds(start, end int) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	l.wave.LoopStart = start
	l.wave.LoopEnd = end
}

func (l *layer) Invalidate() error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()

	t := l.table
	slot := l.wave.Slot
	if t.gen[slot] != l.gen {
		return fmt.Errorf("slot %d was reallocated before the wave was committed", slot)
	}

	if t.dir != "" {
		if err := writeSlotFile(t.dir, l.wave); err != nil {
			return err
		}
	}

	previous := t.waves[slot]
	t.waves[slot] = l.wave
	if t.dir == "" {
		return nil
	}
	if err := t.writeIndexLocked(); err != nil {
		t.waves[slot] = previous
		return err
	}
	return nil
}
