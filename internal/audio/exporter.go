package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/easyrec/internal/metrics"
	"github.com/audiolibrelab/easyrec/internal/sample"
	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

const (
	// sampleScale maps the host's 16-bit full-scale floats to [-1, 1]
	sampleScale = 1.0 / 32768.0
	// rootNoteMIDI is C4 in the host's note numbering
	rootNoteMIDI = 48
)

var (
	ErrNoFreeSlot     = errors.New("no free wavetable slot")
	ErrQueueFull      = errors.New("export queue is full")
	ErrExporterClosed = errors.New("exporter is closed")
)

// ExportJob is a stopped take on its way to the wavetable. The exporter owns
// Take once the job is queued.
type ExportJob struct {
	Take       *sample.Buffer
	Name       string
	Slot       int // 0-based start or target slot
	Overwrite  bool
	SampleRate int
}

// Result describes what an export did
type Result struct {
	Name    string        `json:"name"`
	Slot    int           `json:"slot"` // -1 when skipped
	Frames  int           `json:"frames"`
	Latency int           `json:"latency"`
	Skipped bool          `json:"skipped"`
	Reason  string        `json:"reason,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ExporterOptions configure an Exporter
type ExporterOptions struct {
	QueueSize int
	Metrics   *metrics.Metrics
	// OnError receives failed exports
	OnError func(error)
	// OnDone is called after every processed job, failed or not
	OnDone func(Result, error)
}

// Exporter trims stopped takes and writes them into the wavetable on its own
// goroutine, away from the audio thread.
type Exporter struct {
	storage           Storage
	graph             Graph
	delayCompensation bool
	metrics           *metrics.Metrics
	onError           func(error)
	onDone            func(Result, error)
	logger            *slog.Logger

	mu      sync.Mutex
	jobs    chan ExportJob
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewExporter creates an exporter writing into host.Storage
func NewExporter(host Host, opts ExporterOptions) (*Exporter, error) {
	if host.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}

	return &Exporter{
		storage:           host.Storage,
		graph:             host.Graph,
		delayCompensation: host.DelayCompensation,
		metrics:           opts.Metrics,
		onError:           opts.OnError,
		onDone:            opts.OnDone,
		logger:            slog.Default().With("component", "exporter"),
		jobs:              make(chan ExportJob, opts.QueueSize),
	}, nil
}

// Start launches the export worker. The worker outlives any engine run and
// only ends once Close has drained the queue.
func (e *Exporter) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLocked()
}

func (e *Exporter) startLocked() {
	if e.started {
		return
	}
	e.started = true

	e.wg.Add(1)
	go e.worker()
}

// Enqueue queues a job without blocking
func (e *Exporter) Enqueue(job ExportJob) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrExporterClosed
	}

	select {
	case e.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting jobs and waits until every queued job is exported.
// Jobs queued before Start are exported as well.
func (e *Exporter) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.jobs)
		e.startLocked()
	}
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Exporter) worker() {
	defer e.wg.Done()
	e.logger.Debug("Export worker started")

	for job := range e.jobs {
		e.run(job)
	}
	e.logger.Debug("Export worker finished")
}

func (e *Exporter) run(job ExportJob) {
	// queued takes are exported even after the engine run has ended
	res, err := e.Export(context.Background(), job)

	switch {
	case err != nil:
		e.metrics.RecordExport(metrics.StatusError, res.Elapsed)
		e.logger.Error("Export failed", "name", job.Name, "error", err)
		if e.onError != nil {
			e.onError(fmt.Errorf("could not allocate wave %q in wavetable: %w", job.Name, err))
		}
	case res.Skipped:
		e.metrics.RecordExport(metrics.StatusSkipped, res.Elapsed)
	default:
		e.metrics.RecordExport(metrics.StatusSuccess, res.Elapsed)
	}

	if e.onDone != nil {
		e.onDone(res, err)
	}
}

// Export trims the take, picks the target slot and writes the take into
// storage. Skipped exports are not errors.
func (e *Exporter) Export(ctx context.Context, job ExportJob) (Result, error) {
	start := time.Now()
	res := Result{Name: job.Name, Slot: -1}
	finish := func(err error) (Result, error) {
		res.Elapsed = time.Since(start)
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return finish(err)
	}
	if job.Take == nil || job.Take.IsEmpty() {
		return finish(e.skip(&res, "empty take"))
	}

	frames := job.Take.Trim()
	res.Frames = len(frames)
	if len(frames) == 0 {
		return finish(e.skip(&res, "take is silent"))
	}

	res.Latency = MaxLatency(e.graph, e.delayCompensation)
	e.metrics.SetLatency(res.Latency)

	slot, err := e.targetSlot(job)
	if err != nil {
		return finish(err)
	}
	if slot < 0 {
		return finish(e.skip(&res, fmt.Sprintf("slot %d out of range", job.Slot+1)))
	}

	if err := e.write(slot, job, frames); err != nil {
		return finish(err)
	}
	res.Slot = slot

	e.logger.Info("Take exported", "name", job.Name, "slot", slot+1, "frames", len(frames), "latency", res.Latency)
	return finish(nil)
}

func (e *Exporter) skip(res *Result, reason string) error {
	res.Skipped = true
	res.Reason = reason
	e.logger.Debug("Export skipped", "name", res.Name, "reason", reason)
	return nil
}

// targetSlot returns -1 without error when the configured slot is out of range
func (e *Exporter) targetSlot(job ExportJob) (int, error) {
	capacity := e.storage.Capacity()
	if job.Slot < 0 || job.Slot >= capacity {
		return -1, nil
	}
	if job.Overwrite {
		return job.Slot, nil
	}

	slot := wavetable.FindNextAvailable(e.storage, job.Slot, capacity)
	if slot < 0 {
		return -1, fmt.Errorf("%w at or after slot %d", ErrNoFreeSlot, job.Slot+1)
	}
	return slot, nil
}

func (e *Exporter) write(slot int, job ExportJob, frames []sample.Frame) error {
	buffer := sample.Interleave(frames, sampleScale)
	frameCount := len(frames)

	layer, err := e.storage.Allocate(slot, wavetable.Spec{
		Name:     job.Name,
		Frames:   frameCount,
		Format:   wavetable.FormatFloat32,
		Stereo:   true,
		RootNote: wavetable.NoteFromMIDI(rootNoteMIDI),
		Loop:     false,
	})
	if err != nil {
		return fmt.Errorf("allocate slot %d: %w", slot+1, err)
	}

	layer.SetSampleRate(job.SampleRate)
	if err := layer.SetChannelData(buffer, 0, sample.Channels); err != nil {
		return fmt.Errorf("write left channel: %w", err)
	}
	if err := layer.SetChannelData(buffer, 1, sample.Channels); err != nil {
		return fmt.Errorf("write right channel: %w", err)
	}
	layer.SetLoopBounds(0, frameCount)

	if err := layer.Invalidate(); err != nil {
		return fmt.Errorf("commit slot %d: %w", slot+1, err)
	}
	return nil
}
