package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/config"
	"github.com/audiolibrelab/easyrec/internal/host"
	"github.com/audiolibrelab/easyrec/internal/metrics"
	"github.com/audiolibrelab/easyrec/internal/state"
	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

// Version is reported by the About command
var Version = "1.0.3"

// Service represents the core EasyRec service interface
type Service interface {
	// Record operations
	SetMode(mode audio.Mode) error
	Params() audio.Params
	SetParams(p audio.Params) error

	// Transport operations
	Play()
	StopSong()

	// Machine state
	NamePrefix() string
	SetNamePrefix(text string) (string, error)

	// Information operations
	Status() Status
	Waves() []WaveInfo
	Wave(slot int) (WaveInfo, error)
	WavePath(slot int) (string, error)
	GetConfig() *config.Config
	GetLastError() string

	// Menu commands
	Commands() []Command
	RunCommand(label string) (string, error)

	// Run drives the engine until the input ends or ctx is done
	Run(ctx context.Context) (host.Stats, error)
	Close() error
}

// Status is the combined view served to clients
type Status struct {
	Profile    string        `json:"profile"`
	Recorder   audio.Status  `json:"recorder"`
	Playing    bool          `json:"playing"`
	Tick       int           `json:"tick"`
	LastExport *audio.Result `json:"last_export,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	Waves      int           `json:"waves"`
	Updated    time.Time     `json:"updated"`
}

// WaveInfo describes an occupied wavetable slot. Slot is 1-based.
type WaveInfo struct {
	Slot       int     `json:"slot"`
	Name       string  `json:"name"`
	Frames     int     `json:"frames"`
	SampleRate int     `json:"sample_rate"`
	Seconds    float64 `json:"seconds"`
	Stereo     bool    `json:"stereo"`
	RootNote   int     `json:"root_note"`
}

// Command is a fixed menu entry; Action returns the message to show
type Command struct {
	Label  string
	Action func() string
}

var ErrUnknownCommand = errors.New("unknown command")

// Options carry the dependencies that do not come from the configuration
type Options struct {
	// Source is the engine input; nil renders silence in write mode
	Source host.Source
	// Realtime paces the engine at the sample rate
	Realtime bool
	// Registerer receives the metrics; nil disables them
	Registerer prometheus.Registerer
	// Now stamps export names, defaults to time.Now
	Now func() time.Time
}

// EasyRecService is the main service implementation
type EasyRecService struct {
	cfg       *config.Config
	table     *wavetable.Table
	transport *host.Transport
	engine    *host.Engine
	exporter  *audio.Exporter
	recorder  *audio.Recorder
	source    host.Source
	logger    *slog.Logger

	stateMutex sync.Mutex
	state      *state.MachineState

	exportMutex sync.RWMutex
	lastExport  *audio.Result

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

var _ Service = (*EasyRecService)(nil)

// New wires the wavetable, recorder, exporter and engine for cfg
func New(cfg *config.Config, opts Options) (*EasyRecService, error) {
	s := &EasyRecService{
		cfg:    cfg,
		source: opts.Source,
		logger: slog.Default().With("component", "service"),
	}

	var err error
	if cfg.Wavetable.Directory != "" {
		s.table, err = wavetable.Open(cfg.Wavetable.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to open wavetable: %w", err)
		}
	} else {
		s.table = wavetable.New()
	}

	s.state = state.New()
	if cfg.State.File != "" {
		if s.state, err = state.Load(cfg.State.File); err != nil {
			return nil, err
		}
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		if m, err = metrics.New(opts.Registerer); err != nil {
			return nil, err
		}
	}

	s.transport = host.NewTransport(cfg.Host.SampleRate, cfg.Host.BPM, cfg.Host.TicksPerBeat)
	h := audio.Host{
		Transport:         s.transport,
		Graph:             host.NewGraph(cfg.Nodes),
		Storage:           s.table,
		SampleRate:        cfg.Host.SampleRate,
		DelayCompensation: cfg.Host.DelayCompensation,
		Now:               opts.Now,
	}

	s.exporter, err = audio.NewExporter(h, audio.ExporterOptions{
		QueueSize: cfg.Export.QueueSize,
		Metrics:   m,
		OnError:   s.reportError,
		OnDone:    s.exportDone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	s.recorder, err = audio.NewRecorder(h, s.exporter, audio.Options{
		Params: audio.Params{
			AutoStop:      cfg.Record.AutoStop,
			WavetableSlot: cfg.Record.WavetableSlot,
			Overwrite:     cfg.Record.Overwrite,
		},
		NamePrefix:      s.state.Text,
		InitialCapacity: cfg.Host.SampleRate * 10,
		Metrics:         m,
		OnError:         s.reportError,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	s.engine, err = host.NewEngine(s.transport, s.recorder, opts.Source, host.EngineOptions{
		BlockSize:  cfg.Host.BlockSize,
		SampleRate: cfg.Host.SampleRate,
		Realtime:   opts.Realtime,
		Mode:       audio.WorkModeReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return s, nil
}

// SetMode switches the recorder between record and stop
func (s *EasyRecService) SetMode(mode audio.Mode) error {
	s.logger.Debug("Service.SetMode called", "mode", mode)
	if mode == audio.ModeRecord {
		// Clear any previous errors when starting a new take
		s.clearLastError()
	}
	if err := s.recorder.SetMode(mode); err != nil {
		s.setLastError(fmt.Sprintf("Failed to set mode: %v", err))
		return err
	}
	return nil
}

func (s *EasyRecService) Params() audio.Params {
	return s.recorder.Params()
}

func (s *EasyRecService) SetParams(p audio.Params) error {
	if err := s.recorder.SetParams(p); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	s.logger.Info("Parameters updated", "auto_stop", p.AutoStop, "wavetable_slot", p.WavetableSlot, "overwrite", p.Overwrite)
	return nil
}

// Play starts the song from the beginning
func (s *EasyRecService) Play() {
	s.engine.Play()
}

// StopSong stops the song; with AutoStop the recorder stops as well
func (s *EasyRecService) StopSong() {
	s.engine.StopSong()
}

func (s *EasyRecService) NamePrefix() string {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	return s.state.Text
}

// SetNamePrefix sanitizes and persists the prefix and returns the stored value
func (s *EasyRecService) SetNamePrefix(text string) (string, error) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	s.state.SetText(text)
	s.recorder.SetNamePrefix(s.state.Text)

	if s.cfg.State.File != "" {
		if err := s.state.Save(s.cfg.State.File); err != nil {
			s.setLastError(fmt.Sprintf("Failed to save name prefix: %v", err))
			return s.state.Text, err
		}
	}
	return s.state.Text, nil
}

// Status returns the recorder and transport state
func (s *EasyRecService) Status() Status {
	s.exportMutex.RLock()
	var last *audio.Result
	if s.lastExport != nil {
		r := *s.lastExport
		last = &r
	}
	s.exportMutex.RUnlock()

	return Status{
		Profile:    s.cfg.Profile,
		Recorder:   s.recorder.Status(),
		Playing:    s.transport.Playing(),
		Tick:       s.transport.TickPosition(),
		LastExport: last,
		LastError:  s.GetLastError(),
		Waves:      len(s.table.Waves()),
		Updated:    time.Now(),
	}
}

// Waves lists the occupied wavetable slots
func (s *EasyRecService) Waves() []WaveInfo {
	waves := s.table.Waves()
	infos := make([]WaveInfo, 0, len(waves))
	for _, w := range waves {
		infos = append(infos, waveInfo(w))
	}
	return infos
}

// Wave returns the wave in a 1-based slot
func (s *EasyRecService) Wave(slot int) (WaveInfo, error) {
	w, ok := s.table.Wave(slot - 1)
	if !ok {
		return WaveInfo{}, fmt.Errorf("slot %d: %w", slot, wavetable.ErrEmptySlot)
	}
	return waveInfo(w), nil
}

// WavePath returns the file backing a 1-based slot
func (s *EasyRecService) WavePath(slot int) (string, error) {
	if _, err := s.Wave(slot); err != nil {
		return "", err
	}
	if s.table.Dir() == "" {
		return "", fmt.Errorf("wavetable has no directory")
	}
	return s.table.Path(slot - 1), nil
}

func waveInfo(w wavetable.Wave) WaveInfo {
	info := WaveInfo{
		Slot:       w.Slot + 1,
		Name:       w.Name,
		Frames:     w.Frames,
		SampleRate: w.SampleRate,
		Stereo:     w.Stereo,
		RootNote:   w.RootNote,
	}
	if w.SampleRate > 0 {
		info.Seconds = float64(w.Frames) / float64(w.SampleRate)
	}
	return info
}

// GetConfig returns the current configuration
func (s *EasyRecService) GetConfig() *config.Config {
	return s.cfg
}

// Commands returns the machine menu
func (s *EasyRecService) Commands() []Command {
	return []Command{
		{
			Label: "Help",
			Action: func() string {
				return "Modes\n\nRecord: Start recording input audio when song is played.\nStop: Stop recording and copy audio to wavetable."
			},
		},
		{
			Label: "About...",
			Action: func() string {
				return fmt.Sprintf("EasyRec version %s", Version)
			},
		},
	}
}

// RunCommand executes the menu command with the given label
func (s *EasyRecService) RunCommand(label string) (string, error) {
	for _, c := range s.Commands() {
		if c.Label == label {
			return c.Action(), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, label)
}

// Run starts the export worker and drives the engine
func (s *EasyRecService) Run(ctx context.Context) (host.Stats, error) {
	s.exporter.Start()
	stats, err := s.engine.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.setLastError(fmt.Sprintf("Engine stopped: %v", err))
	}
	return stats, err
}

// Close stops a running take, waits for pending exports and releases the input
func (s *EasyRecService) Close() error {
	if s.recorder.Mode() == audio.ModeRecord {
		s.logger.Info("Stopping the running take before shutdown")
		if err := s.SetMode(audio.ModeStop); err != nil {
			return err
		}
	}
	s.exporter.Close()
	if c, ok := s.source.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close input: %w", err)
		}
	}
	return nil
}

func (s *EasyRecService) exportDone(res audio.Result, err error) {
	if err != nil {
		return
	}
	s.exportMutex.Lock()
	defer s.exportMutex.Unlock()
	s.lastExport = &res
}

func (s *EasyRecService) reportError(err error) {
	s.setLastError(err.Error())
}

// GetLastError returns the last error message (thread-safe)
func (s *EasyRecService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *EasyRecService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	s.logger.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *EasyRecService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
