package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/easyrec/internal/sample"
	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

type fakeTransport struct {
	mu            sync.Mutex
	playing       bool
	recording     bool
	tick          int
	tickResets    int
	subTickResets int
}

func (f *fakeTransport) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeTransport) Recording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeTransport) TickPosition() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick
}

func (f *fakeTransport) ResetTickPosition() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick = 0
	f.tickResets++
}

func (f *fakeTransport) ResetSubTickPosition() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subTickResets++
}

type fakeGraph []Node

func (g fakeGraph) Nodes() []Node { return g }

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

type fixture struct {
	transport *fakeTransport
	table     *wavetable.Table
	exporter  *Exporter
	recorder  *Recorder
	errs      []error
}

func newFixture(t *testing.T, params Params) *fixture {
	t.Helper()
	f := &fixture{
		transport: &fakeTransport{},
		table:     wavetable.New(),
	}
	host := Host{
		Transport:  f.transport,
		Graph:      fakeGraph{},
		Storage:    f.table,
		SampleRate: 48000,
		Now:        func() time.Time { return fixedNow },
	}

	var err error
	f.exporter, err = NewExporter(host, ExporterOptions{QueueSize: 4})
	require.NoError(t, err)

	f.recorder, err = NewRecorder(host, f.exporter, Options{
		Params:          params,
		NamePrefix:      "Take",
		InitialCapacity: 256,
		OnError:         func(err error) { f.errs = append(f.errs, err) },
	})
	require.NoError(t, err)
	return f
}

// queued returns the next job waiting in the export queue, if any
func (f *fixture) queued() (ExportJob, bool) {
	select {
	case job := <-f.exporter.jobs:
		return job, true
	default:
		return ExportJob{}, false
	}
}

func playing(tick int, io WorkMode) TransportSnapshot {
	return TransportSnapshot{TickPosition: tick, Playing: true, IO: io}
}

func constant(n int, v float32) []sample.Frame {
	frames := make([]sample.Frame, n)
	for i := range frames {
		frames[i] = sample.Frame{L: v, R: v}
	}
	return frames
}
