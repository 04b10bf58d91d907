package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/easyrec/internal/metrics"
	"github.com/audiolibrelab/easyrec/internal/sample"
	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

// Mode is the record state, also exposed to the host as the Mode parameter
type Mode int

const (
	ModeStop   Mode = 0
	ModeRecord Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModeStop:
		return "STOP"
	case ModeRecord:
		return "RECORD"
	default:
		return fmt.Sprintf("MODE(%d)", int(m))
	}
}

// MarshalText renders the mode by name in JSON and YAML output
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode accepts the parameter value names and numbers
func ParseMode(s string) (Mode, error) {
	switch s {
	case "0", "stop", "Stop", "STOP":
		return ModeStop, nil
	case "1", "record", "Record", "RECORD":
		return ModeRecord, nil
	}
	return 0, fmt.Errorf("invalid mode %q (valid: stop, record)", s)
}

// NameTimeLayout is appended to the name prefix of every export
const NameTimeLayout = "2006-01-02 15.04.05"

var ErrInvalidMode = errors.New("invalid mode")

// Params are the host-automatable parameters besides Mode
type Params struct {
	// AutoStop makes a host song stop end the recording
	AutoStop bool `json:"auto_stop"`
	// WavetableSlot is 1-based
	WavetableSlot int `json:"wavetable_slot"`
	// Overwrite targets WavetableSlot exactly instead of searching for a free slot
	Overwrite bool `json:"overwrite"`
}

// DefaultParams returns the parameter defaults
func DefaultParams() Params {
	return Params{
		AutoStop:      true,
		WavetableSlot: 1,
		Overwrite:     true,
	}
}

// Validate checks the parameter ranges
func (p Params) Validate() error {
	if p.WavetableSlot < 1 || p.WavetableSlot > wavetable.Capacity {
		return fmt.Errorf("wavetable slot must be between 1 and %d, got %d", wavetable.Capacity, p.WavetableSlot)
	}
	return nil
}

// Options configure a Recorder
type Options struct {
	Params     Params
	NamePrefix string
	// InitialCapacity is the number of frames reserved for each take
	InitialCapacity int
	Metrics         *metrics.Metrics
	// OnError receives non-fatal errors meant for the user
	OnError func(error)
}

// Status is a point-in-time view of the recorder
type Status struct {
	Mode            Mode   `json:"mode"`
	TickZeroReached bool   `json:"tick_zero_reached"`
	BufferedFrames  int    `json:"buffered_frames"`
	Params          Params `json:"params"`
	NamePrefix      string `json:"name_prefix"`
}

// Recorder is the record state machine. Process is called from the audio
// thread; everything else comes from control threads.
type Recorder struct {
	host     Host
	exporter *Exporter
	metrics  *metrics.Metrics
	onError  func(error)
	logger   *slog.Logger
	capacity int

	// mu guards the buffer and the record state. It is never held across
	// storage I/O.
	mu              sync.Mutex
	buffer          *sample.Buffer
	mode            Mode
	tickZeroReached bool

	paramsMu   sync.RWMutex
	params     Params
	namePrefix string
}

// NewRecorder creates a stopped recorder that hands finished takes to exporter
func NewRecorder(host Host, exporter *Exporter, opts Options) (*Recorder, error) {
	if exporter == nil {
		return nil, fmt.Errorf("exporter is required")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if opts.InitialCapacity < 0 {
		opts.InitialCapacity = 0
	}

	return &Recorder{
		host:       host,
		exporter:   exporter,
		metrics:    opts.Metrics,
		onError:    opts.OnError,
		logger:     slog.Default().With("component", "recorder"),
		capacity:   opts.InitialCapacity,
		buffer:     sample.NewBuffer(opts.InitialCapacity),
		mode:       ModeStop,
		params:     opts.Params,
		namePrefix: opts.NamePrefix,
	}, nil
}

// Mode returns the current record state
func (r *Recorder) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Status returns a snapshot of the recorder state
func (r *Recorder) Status() Status {
	params, prefix := r.paramsSnapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Mode:            r.mode,
		TickZeroReached: r.tickZeroReached,
		BufferedFrames:  r.buffer.FrameCount(),
		Params:          params,
		NamePrefix:      prefix,
	}
}

// Params returns the current parameters
func (r *Recorder) Params() Params {
	p, _ := r.paramsSnapshot()
	return p
}

// SetParams replaces the parameters; they are read when a take is stopped
func (r *Recorder) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.paramsMu.Lock()
	defer r.paramsMu.Unlock()
	r.params = p
	return nil
}

// SetNamePrefix sets the prefix of future export names
func (r *Recorder) SetNamePrefix(prefix string) {
	r.paramsMu.Lock()
	defer r.paramsMu.Unlock()
	r.namePrefix = prefix
}

func (r *Recorder) paramsSnapshot() (Params, string) {
	r.paramsMu.RLock()
	defer r.paramsMu.RUnlock()
	return r.params, r.namePrefix
}

// SetMode switches between record and stop. Entering record discards any
// unexported audio; entering stop hands the take to the exporter.
func (r *Recorder) SetMode(m Mode) error {
	switch m {
	case ModeRecord:
		r.startRecording()
	case ModeStop:
		r.stopRecording()
	default:
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return nil
}

func (r *Recorder) startRecording() {
	r.mu.Lock()
	discarded := r.buffer.FrameCount()
	r.mode = ModeRecord
	r.buffer.Reset()
	if r.host.Transport != nil {
		r.host.Transport.ResetTickPosition()
		r.host.Transport.ResetSubTickPosition()
	}
	r.tickZeroReached = false
	r.mu.Unlock()

	r.metrics.SetRecording(true)
	r.logger.Info("Recording armed", "discarded_frames", discarded)
}

func (r *Recorder) stopRecording() {
	params, prefix := r.paramsSnapshot()
	name := ExportName(prefix, r.host.now())

	// the audio thread waits on mu, so the replacement is allocated up front
	fresh := sample.NewBuffer(r.capacity)

	r.mu.Lock()
	r.mode = ModeStop
	r.tickZeroReached = false
	var take *sample.Buffer
	if !r.buffer.IsEmpty() {
		take = r.buffer
		r.buffer = fresh
	}
	r.mu.Unlock()

	r.metrics.SetRecording(false)

	if take == nil {
		r.logger.Debug("Stopped with an empty buffer, nothing to export")
		return
	}

	job := ExportJob{
		Take:       take,
		Name:       name,
		Slot:       params.WavetableSlot - 1,
		Overwrite:  params.Overwrite,
		SampleRate: r.host.SampleRate,
	}
	r.logger.Info("Recording stopped", "name", name, "frames", take.FrameCount(), "slot", params.WavetableSlot, "overwrite", params.Overwrite)

	if err := r.exporter.Enqueue(job); err != nil {
		r.report(fmt.Errorf("could not queue %q for export: %w", name, err))
	}
}

// Stop handles the host's song stop signal
func (r *Recorder) Stop() {
	if r.Mode() != ModeRecord || !r.Params().AutoStop {
		return
	}
	r.logger.Debug("Song stopped, auto-stopping recording")
	r.stopRecording()
}

// Process is the audio callback. It returns false when it produced no audio.
func (r *Recorder) Process(ts TransportSnapshot, input, output []sample.Frame, n int) bool {
	switch ts.IO {
	case WorkModeNoIO:
		return false
	case WorkModeRead:
		passThrough(output, input, n)
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active := ts.Active()
	switch r.mode {
	case ModeRecord:
		if !active {
			break
		}
		// takes start on a tick boundary
		if ts.TickPosition == 0 {
			r.tickZeroReached = true
		}
		if ts.IO == WorkModeWrite {
			if r.tickZeroReached {
				r.buffer.AppendSilence(n)
				r.metrics.AddFrames(n)
			}
			clear(output[:min(n, len(output))])
			return true
		}
		if r.tickZeroReached {
			in := input[:min(n, len(input))]
			r.buffer.Append(in)
			r.metrics.AddFrames(len(in))
		}
	case ModeStop:
		if ts.IO == WorkModeWrite {
			return false
		}
	}

	if ts.IO == WorkModeWrite && !active {
		return false
	}

	passThrough(output, input, n)
	return true
}

func (r *Recorder) report(err error) {
	r.logger.Error("Recorder error", "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}

// ExportName builds the wave name from the user prefix and the stop time
func ExportName(prefix string, t time.Time) string {
	stamp := t.Format(NameTimeLayout)
	if prefix == "" {
		return stamp
	}
	return prefix + " " + stamp
}

func passThrough(output, input []sample.Frame, n int) {
	n = min(n, len(output), len(input))
	copy(output[:n], input[:n])
}
