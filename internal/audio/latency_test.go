package audio

import "testing"

func TestMaxLatency(t *testing.T) {
	graph := fakeGraph{
		{Name: "eq", Active: true, OverrideLatency: NoLatencyOverride, Latency: 64},
		{Name: "limiter", Active: true, OverrideLatency: 32, Latency: 512},
		{Name: "reverb", Active: false, OverrideLatency: NoLatencyOverride, Latency: 4096},
		{Name: "delay", Active: true, OverrideLatency: 256, Latency: 0},
	}

	tests := []struct {
		name              string
		graph             Graph
		delayCompensation bool
		want              int
	}{
		{"compensation off", graph, false, 0},
		{"override wins, inactive ignored", graph, true, 256},
		{"empty graph", fakeGraph{}, true, 0},
		{"nil graph", nil, true, 0},
		{"zero override", fakeGraph{{Active: true, OverrideLatency: 0, Latency: 128}}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxLatency(tt.graph, tt.delayCompensation); got != tt.want {
				t.Errorf("MaxLatency() = %d, want %d", got, tt.want)
			}
		})
	}
}
