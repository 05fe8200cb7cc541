package locator

import (
	"github.com/couchbaselabs/gomemdcore/hashing"
	"github.com/couchbaselabs/gomemdcore/memcache"
)

// VBucketServerMap implements Couchbase-style partitioning: the key
// hashes to a fixed bucket, the bucket's row names the primary and up
// to R replicas, and the chosen bucket id is written back into the
// request so the server can validate ownership, per spec §4.6.
//
// Map[bucket] lists node indices into Nodes; -1 means "no node
// assigned" for that slot and is skipped.
type VBucketServerMap struct {
	Nodes []Target
	Map   [][]int32
}

// NewVBucketServerMap constructs a VBucketServerMap. nodes and vbmap
// are retained; callers must not mutate them afterwards.
func NewVBucketServerMap(nodes []Target, vbmap [][]int32) *VBucketServerMap {
	return &VBucketServerMap{Nodes: nodes, Map: vbmap}
}

// Locate computes bucket = couchbase_hash(key) mod len(Map), writes the
// bucket into req.Vbucket (mandatory: the server rejects requests whose
// vbucket field doesn't match), and returns the row's entries in order
// — primary first, then replicas — skipping -1 slots, up to
// req.Replicas()+1 of them.
func (m *VBucketServerMap) Locate(req memcache.Request) []Target {
	if len(m.Map) == 0 {
		return nil
	}

	bucket := hashing.VBucket(req.Key(), len(m.Map))
	req.SetVbucket(uint16(bucket))

	row := m.Map[bucket]
	want := int(req.Replicas()) + 1
	out := make([]Target, 0, want)

	for _, idx := range row {
		if len(out) >= want {
			break
		}
		if idx < 0 || int(idx) >= len(m.Nodes) {
			continue
		}
		out = append(out, m.Nodes[idx])
	}

	return out
}
