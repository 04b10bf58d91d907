package wavetable

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"gopkg.in/yaml.v3"
)

const indexFileName = "wavetable.yaml"

// bitDepth is the PCM depth a format is stored with. Float waves are stored
// as 32-bit PCM so samples within full scale reload at float32 precision.
func bitDepth(f Format) int {
	if f == FormatInt16 {
		return 16
	}
	return 32
}

func formatFor(depth int) Format {
	if depth <= 16 {
		return FormatInt16
	}
	return FormatFloat32
}

type index struct {
	Waves []Wave `yaml:"waves"`
}

// Open loads a directory-backed wavetable, creating the directory if needed
func Open(dir string) (*Table, error) {
	if dir == "" {
		return nil, fmt.Errorf("no wavetable directory specified")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create wavetable directory: %w", err)
	}

	t := New()
	t.dir = dir

	data, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("failed to read wavetable index: %w", err)
	}

	var idx index
	if err := yaml.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse wavetable index: %w", err)
	}

	for _, entry := range idx.Waves {
		if !validSlot(entry.Slot) {
			t.logger.Warn("Skipping wavetable entry with invalid slot", "slot", entry.Slot, "name", entry.Name)
			continue
		}
		w := entry
		if err := readSlotFile(dir, &w); err != nil {
			t.logger.Warn("Skipping unreadable wave", "slot", w.Slot, "name", w.Name, "error", err)
			continue
		}
		t.waves[w.Slot] = &w
	}

	t.logger.Debug("wavetable loaded", "dir", dir, "waves", len(t.Waves()))
	return t, nil
}

// Dir returns the backing directory, empty for in-memory tables
func (t *Table) Dir() string {
	return t.dir
}

// Path returns the WAV file path of slot, empty for in-memory tables
func (t *Table) Path(slot int) string {
	if t.dir == "" {
		return ""
	}
	return slotPath(t.dir, slot)
}

func slotPath(dir string, slot int) string {
	// files are numbered the way slots are shown to users
	return filepath.Join(dir, fmt.Sprintf("%03d.wav", slot+1))
}

func (t *Table) writeIndexLocked() error {
	var idx index
	for _, w := range t.waves {
		if w != nil {
			idx.Waves = append(idx.Waves, *w)
		}
	}

	data, err := yaml.Marshal(&idx)
	if err != nil {
		return fmt.Errorf("failed to marshal wavetable index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(t.dir, indexFileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write wavetable index: %w", err)
	}
	return nil
}

// writeSlotFile replaces the slot file only once the new one is complete
func writeSlotFile(dir string, w *Wave) error {
	path := slotPath(dir, w.Slot)
	tmpPath := path + ".tmp"
	outFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create wave file: %w", err)
	}
	if err := encodeWave(outFile, w); err != nil {
		outFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close wave file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace wave file: %w", err)
	}

	slog.Debug("Wave file written", "path", path, "frames", w.Frames, "channels", w.Channels(), "format", w.Format)
	return nil
}

func encodeWave(out *os.File, w *Wave) error {
	numChans := w.Channels()
	sampleRate := w.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	depth := bitDepth(w.Format)

	data := make([]int, w.Frames*numChans)
	for ch, samples := range w.channels {
		for i, v := range samples {
			data[i*numChans+ch] = toPCM(v, depth)
		}
	}

	enc := wav.NewEncoder(out, sampleRate, depth, numChans, 1)
	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: numChans},
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write to WAV encoder: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wave file: %w", err)
	}
	return nil
}

func readSlotFile(dir string, w *Wave) error {
	f, err := os.Open(slotPath(dir, w.Slot))
	if err != nil {
		return fmt.Errorf("failed to open wave file: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return fmt.Errorf("invalid WAV file format")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("failed to decode wave file: %w", err)
	}

	numChans := int(decoder.NumChans)
	if numChans != w.Channels() {
		return fmt.Errorf("index says %d channel(s), file has %d", w.Channels(), numChans)
	}
	scale := float32(math.Pow(2, float64(decoder.BitDepth)-1))

	frames := len(buf.Data) / numChans
	w.Frames = frames
	w.Format = formatFor(int(decoder.BitDepth))
	w.SampleRate = int(decoder.SampleRate)
	w.channels = make([][]float32, numChans)
	for ch := range w.channels {
		w.channels[ch] = make([]float32, frames)
		for i := 0; i < frames; i++ {
			w.channels[ch][i] = float32(buf.Data[i*numChans+ch]) / scale
		}
	}
	return nil
}

func removeSlotFile(dir string, slot int) error {
	if err := os.Remove(slotPath(dir, slot)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove wave file: %w", err)
	}
	return nil
}

// toPCM converts a normalized sample to a signed integer of the given depth,
// clamping values beyond full scale
func toPCM(v float32, depth int) int {
	fullScale := math.Ldexp(1, depth-1)
	s := math.Round(float64(v) * fullScale)
	if s > fullScale-1 {
		return int(fullScale - 1)
	}
	if s < -fullScale {
		return int(-fullScale)
	}
	return int(s)
}
