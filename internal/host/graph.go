package host

import (
	"sync"

	"github.com/audiolibrelab/easyrec/internal/audio"
	"github.com/audiolibrelab/easyrec/internal/config"
)

// Graph is a static processing graph loaded from the configuration
type Graph struct {
	mu    sync.RWMutex
	nodes []audio.Node
}

// NewGraph builds the graph of a resolved profile
func NewGraph(nodes []config.Node) *Graph {
	g := &Graph{}
	for _, n := range nodes {
		g.nodes = append(g.nodes, audio.Node{
			Name:            n.Name,
			Active:          n.Active,
			OverrideLatency: n.OverrideLatency,
			Latency:         n.Latency,
		})
	}
	return g
}

// Nodes returns a copy of the graph nodes
func (g *Graph) Nodes() []audio.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]audio.Node(nil), g.nodes...)
}

// SetActive bypasses or enables the named node. It reports whether the node exists.
func (g *Graph) SetActive(name string, active bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.nodes {
		if g.nodes[i].Name == name {
			g.nodes[i].Active = active
			return true
		}
	}
	return false
}
