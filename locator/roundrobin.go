package locator

import (
	"sync/atomic"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// RoundRobin cycles through a fixed node set, skipping dead nodes. It
// ignores the request key entirely.
type RoundRobin struct {
	nodes   []Target
	counter uint64
}

// NewRoundRobin constructs a RoundRobin locator over nodes. The slice
// is retained; callers must not mutate it afterwards.
func NewRoundRobin(nodes []Target) *RoundRobin {
	return &RoundRobin{nodes: nodes}
}

// Locate returns up to req.Replicas()+1 live nodes starting from the
// next counter position, wrapping and skipping dead nodes. It probes at
// most len(nodes) positions in total; if every node is dead it returns
// an empty slice.
func (r *RoundRobin) Locate(req memcache.Request) []Target {
	n := len(r.nodes)
	if n == 0 {
		return nil
	}

	want := int(req.Replicas()) + 1
	out := make([]Target, 0, want)

	start := atomic.AddUint64(&r.counter, 1)

	for offset := uint64(0); offset < uint64(n) && len(out) < want; offset++ {
		idx := int((start + offset) % uint64(n))
		node := r.nodes[idx]
		if !node.IsDead() {
			out = append(out, node)
		}
	}

	return out
}
