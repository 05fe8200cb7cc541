package locator

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// ketamaPoint is one virtual node placed on the ring.
type ketamaPoint struct {
	hash uint32
	node Target
}

// Ketama is a consistent-hash ring seeded with 160 virtual points per
// node, matching libmemcached/spymemcached's ketama placement so ring
// membership changes move the minimum number of keys, per spec §4.6.
// Rebuild is safe to call concurrently from multiple node-set-change
// notifications; overlapping calls collapse into one ring computation.
type Ketama struct {
	mu    sync.RWMutex
	ring  []ketamaPoint
	group singleflight.Group
}

// NewKetama builds the ring for nodes, keyed by the endpoint string
// each node is registered under (used only to seed the MD5 inputs;
// Locate itself never calls back into endpoints).
func NewKetama(nodes map[string]Target) *Ketama {
	k := &Ketama{}
	k.ring = buildRing(nodes)
	return k
}

// Rebuild recomputes the ring for the current node set. Concurrent
// callers (e.g. several liveness-change notifications arriving close
// together) share a single underlying computation via singleflight.
func (k *Ketama) Rebuild(nodes map[string]Target) {
	k.group.Do("rebuild", func() (interface{}, error) {
		ring := buildRing(nodes)
		k.mu.Lock()
		k.ring = ring
		k.mu.Unlock()
		return nil, nil
	})
}

func buildRing(nodes map[string]Target) []ketamaPoint {
	var ring []ketamaPoint
	for endpoint, node := range nodes {
		for i := 0; i < 40; i++ {
			sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", endpoint, i)))
			for j := 0; j < 4; j++ {
				h := binary.LittleEndian.Uint32(sum[j*4 : j*4+4])
				ring = append(ring, ketamaPoint{hash: h, node: node})
			}
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })
	return ring
}

// Locate hashes the request's key with MD5, takes the first 4 bytes as
// a 32-bit key hash, and walks the ring clockwise from the first point
// whose hash is >= the key hash (wrapping at the end), collecting up to
// req.Replicas()+1 distinct live nodes.
func (k *Ketama) Locate(req memcache.Request) []Target {
	k.mu.RLock()
	ring := k.ring
	k.mu.RUnlock()

	if len(ring) == 0 {
		return nil
	}

	sum := md5.Sum(req.Key())
	keyHash := binary.LittleEndian.Uint32(sum[0:4])

	start := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= keyHash })
	if start == len(ring) {
		start = 0
	}

	want := int(req.Replicas()) + 1
	out := make([]Target, 0, want)
	seen := make(map[Target]bool, want)

	for offset := 0; offset < len(ring) && len(out) < want; offset++ {
		p := ring[(start+offset)%len(ring)]
		if seen[p.node] {
			continue
		}
		if p.node.IsDead() {
			continue
		}
		seen[p.node] = true
		out = append(out, p.node)
	}

	return out
}
