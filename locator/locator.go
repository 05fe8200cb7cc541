// Package locator maps a request key deterministically to the node(s)
// that must handle it, per spec §4.6: Round-Robin, Ketama-style
// consistent hashing, and the VBucketServerMap partitioning scheme.
package locator

import "github.com/couchbaselabs/gomemdcore/memcache"

// Target is the minimal capability a locator needs from a pool member:
// liveness, for skipping dead nodes during selection, and a handle the
// cluster facade can dispatch through once selection is done. A *Node
// satisfies this directly.
type Target interface {
	IsDead() bool
	TrySend(req memcache.Request) bool
}

// Locator picks the node(s) that should serve req, returning them
// primary-first. The caller (the cluster facade) is responsible for
// calling TrySend on each.
type Locator interface {
	Locate(req memcache.Request) []Target
}
