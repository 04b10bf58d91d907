package audio

// MaxLatency returns the largest latency of any active node in the graph.
// A node's override wins over its reported latency. Without delay
// compensation the result is always zero.
func MaxLatency(g Graph, delayCompensation bool) int {
	if !delayCompensation || g == nil {
		return 0
	}

	latency := 0
	for _, n := range g.Nodes() {
		if !n.Active {
			continue
		}
		l := n.Latency
		if n.OverrideLatency != NoLatencyOverride {
			l = n.OverrideLatency
		}
		if l > latency {
			latency = l
		}
	}
	return latency
}
