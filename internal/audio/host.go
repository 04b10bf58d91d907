package audio

import (
	"time"

	"github.com/audiolibrelab/easyrec/internal/wavetable"
)

// WorkMode tells the callback which direction audio flows in
type WorkMode int

const (
	// WorkModeNoIO means nothing is read or written
	WorkModeNoIO WorkMode = iota
	// WorkModeRead is an analysis pass; the output is not used downstream
	WorkModeRead
	// WorkModeWrite means there is no input signal, only output is consumed
	WorkModeWrite
	// WorkModeReadWrite is regular audio flow
	WorkModeReadWrite
)

func (m WorkMode) String() string {
	switch m {
	case WorkModeNoIO:
		return "noio"
	case WorkModeRead:
		return "read"
	case WorkModeWrite:
		return "write"
	case WorkModeReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Transport is the host's playback engine
type Transport interface {
	Playing() bool
	Recording() bool
	TickPosition() int
	ResetTickPosition()
	ResetSubTickPosition()
}

// TransportSnapshot is the transport state seen by one audio callback
type TransportSnapshot struct {
	TickPosition int
	Playing      bool
	Recording    bool
	IO           WorkMode
}

// Active reports whether the host is playing or globally recording
func (s TransportSnapshot) Active() bool {
	return s.Playing || s.Recording
}

// Snapshot reads the transport state for one callback
func Snapshot(t Transport, io WorkMode) TransportSnapshot {
	return TransportSnapshot{
		TickPosition: t.TickPosition(),
		Playing:      t.Playing(),
		Recording:    t.Recording(),
		IO:           io,
	}
}

// Node is one processing node of the host graph
type Node struct {
	Name   string
	Active bool
	// OverrideLatency replaces Latency unless it is NoLatencyOverride
	OverrideLatency int
	Latency         int
}

// NoLatencyOverride marks a node without a latency override
const NoLatencyOverride = -1

// Graph is the host's processing graph
type Graph interface {
	Nodes() []Node
}

// Storage is the sample table finished takes are written to
type Storage interface {
	Capacity() int
	Occupied(slot int) bool
	Allocate(slot int, spec wavetable.Spec) (wavetable.Layer, error)
}

// Host carries everything the recorder would otherwise look up globally
type Host struct {
	Transport Transport
	Graph     Graph
	Storage   Storage

	// SampleRate is stamped on exported waves
	SampleRate int
	// DelayCompensation enables graph latency aggregation on export
	DelayCompensation bool

	// Now defaults to time.Now
	Now func() time.Time
}

func (h Host) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
