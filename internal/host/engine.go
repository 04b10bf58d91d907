package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/sample"
)

// Source produces input frames. Read returns io.EOF once no more frames follow.
type Source interface {
	Read(frames []sample.Frame) (int, error)
}

// LiveSource is implemented by sources whose Read blocks until the frames
// were captured. They pace a realtime run on their own.
type LiveSource interface {
	Source
	Live() bool
}

func isLive(src Source) bool {
	live, ok := src.(LiveSource)
	return ok && live.Live()
}

// Processor is the audio callback of a machine
type Processor interface {
	Process(ts audio.TransportSnapshot, input, output []sample.Frame, n int) bool
	// Stop is the host's song stop signal
	Stop()
}

// EngineOptions configure an Engine
type EngineOptions struct {
	BlockSize  int
	SampleRate int
	// Realtime paces blocks at the sample rate instead of rendering as fast as possible
	Realtime bool
	// Mode is the work mode passed to each callback. With a nil source it is
	// forced to write mode.
	Mode audio.WorkMode
	// Sink receives the output of callbacks that produced audio
	Sink func(output []sample.Frame)
}

// Stats counts what an engine run rendered
type Stats struct {
	Blocks int `json:"blocks"`
	Frames int `json:"frames"`
	// Produced counts callbacks that returned audio
	Produced int `json:"produced"`
}

// Engine drives audio callbacks block by block
type Engine struct {
	transport *Transport
	proc      Processor
	source    Source
	opts      EngineOptions
	logger    *slog.Logger

	stopSong atomic.Bool
}

// NewEngine creates an engine feeding source through proc
func NewEngine(transport *Transport, proc Processor, source Source, opts EngineOptions) (*Engine, error) {
	if transport == nil || proc == nil {
		return nil, fmt.Errorf("transport and processor are required")
	}
	if opts.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be > 0, got %d", opts.BlockSize)
	}
	if opts.Realtime && opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0 for realtime runs, got %d", opts.SampleRate)
	}
	if source == nil {
		opts.Mode = audio.WorkModeWrite
	}

	return &Engine{
		transport: transport,
		proc:      proc,
		source:    source,
		opts:      opts,
		logger:    slog.Default().With("component", "engine"),
	}, nil
}

// Transport returns the engine's transport
func (e *Engine) Transport() *Transport {
	return e.transport
}

// Play starts the song
func (e *Engine) Play() {
	e.transport.Play()
	e.logger.Info("Song started")
}

// StopSong stops the song at the next block boundary and sends the stop signal
func (e *Engine) StopSong() {
	e.stopSong.Store(true)
}

// Run renders blocks until the source is exhausted or ctx is done. The end of
// the input stops the song.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	n := e.opts.BlockSize
	input := make([]sample.Frame, n)
	output := make([]sample.Frame, n)

	var ticker *time.Ticker
	if e.opts.Realtime && !isLive(e.source) {
		period := time.Duration(float64(time.Second) * float64(n) / float64(e.opts.SampleRate))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	e.logger.Debug("Engine started", "block_size", n, "mode", e.opts.Mode, "realtime", e.opts.Realtime, "paced", ticker != nil)

	for {
		if e.stopSong.Swap(false) {
			e.songStopped()
		}

		count := n
		eof := false
		if e.source != nil {
			read, err := e.source.Read(input)
			switch {
			case errors.Is(err, io.EOF):
				eof = true
			case err != nil:
				return stats, fmt.Errorf("failed to read input: %w", err)
			}
			count = read
			clear(input[count:])
		}

		if count > 0 {
			ts := audio.Snapshot(e.transport, e.opts.Mode)
			if e.proc.Process(ts, input[:count], output[:count], count) {
				stats.Produced++
				if e.opts.Sink != nil {
					e.opts.Sink(output[:count])
				}
			}
			e.transport.Advance(count)
			stats.Blocks++
			stats.Frames += count
		}

		if eof {
			e.logger.Debug("Input exhausted", "frames", stats.Frames)
			e.songStopped()
			return stats, nil
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return stats, err
		}
	}
}

func (e *Engine) songStopped() {
	if e.transport.StopPlayback() {
		e.logger.Info("Song stopped")
	}
	e.proc.Stop()
}
