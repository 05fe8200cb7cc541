// Package cluster composes a Locator and a set of Nodes into the
// boundary-only facade described in spec §4.7. It is deliberately
// thin: everything that could be a real subsystem (connection
// management, partitioning) already lives in transport/node/locator.
package cluster

import (
	"sync"
	"time"

	"github.com/couchbaselabs/gomemdcore/locator"
	"github.com/couchbaselabs/gomemdcore/memcache"
	"github.com/couchbaselabs/gomemdcore/pkg/log"
)

// Config configures the facade's liveness-recompute loop.
type Config struct {
	LivenessInterval time.Duration
	Logger           log.Logger
}

func (c *Config) setDefaults() {
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Nop
	}
}

// RecomputeLocator is called from the liveness loop whenever a node's
// dead flag is observed to have changed, giving the caller the chance
// to rebuild a Locator (e.g. Ketama's ring) around the current live
// set. It returns the Locator to use from then on.
type RecomputeLocator func() locator.Locator

// Cluster dispatches requests across nodes chosen by a Locator and
// reacts to node liveness changes, per spec §4.7.
type Cluster struct {
	cfg     Config
	nodes   []locator.Target
	rebuild RecomputeLocator

	mu       sync.RWMutex
	active   locator.Locator
	lastDead []bool

	stop chan struct{}
}

// New constructs a Cluster. initial is the Locator to use until the
// first liveness recompute; nodes is every node the liveness loop
// watches for dead-flag transitions, and must include every node any
// Locator returned by rebuild could select.
func New(initial locator.Locator, nodes []locator.Target, rebuild RecomputeLocator, cfg Config) *Cluster {
	cfg.setDefaults()
	c := &Cluster{
		cfg:      cfg,
		nodes:    nodes,
		rebuild:  rebuild,
		active:   initial,
		lastDead: make([]bool, len(nodes)),
		stop:     make(chan struct{}),
	}
	for i, n := range nodes {
		c.lastDead[i] = n.IsDead()
	}
	go c.livenessLoop()
	return c
}

// Dispatch asks the active Locator for replicas()+1 nodes and calls
// TrySend on each in order. A Target that refuses already calls
// req.Fail() itself before returning false (see Node.TrySend), so
// Dispatch must not call it again - doing so would double-count the
// failure against req's aggregation policy and could fire its callback
// before a still-outstanding TrySend on a later target gets a chance
// to succeed.
func (c *Cluster) Dispatch(req memcache.Request) {
	c.mu.RLock()
	loc := c.active
	c.mu.RUnlock()

	targets := loc.Locate(req)
	if len(targets) == 0 {
		req.Fail()
		return
	}

	for _, target := range targets {
		target.TrySend(req)
	}
}

func (c *Cluster) livenessLoop() {
	ticker := time.NewTicker(c.cfg.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.checkLiveness()
		}
	}
}

func (c *Cluster) checkLiveness() {
	changed := false
	for i, n := range c.nodes {
		dead := n.IsDead()
		if dead != c.lastDead[i] {
			changed = true
		}
		c.lastDead[i] = dead
	}

	if !changed || c.rebuild == nil {
		return
	}

	newLocator := c.rebuild()

	c.mu.Lock()
	c.active = newLocator
	c.mu.Unlock()

	c.cfg.Logger.Debugf("cluster: node liveness changed, locator recomputed")
}

// Close stops the liveness loop. It does not shut down the underlying
// nodes; callers own those separately.
func (c *Cluster) Close() {
	close(c.stop)
}
