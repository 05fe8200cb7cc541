// Package node owns one endpoint's bounded pool of transports: it
// dispatches through whichever transport is currently available,
// recreates transports that die on a fatal send failure, and drives
// cooperative shutdown across the whole pool.
package node

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchbaselabs/gomemdcore/memcache"
	"github.com/couchbaselabs/gomemdcore/pkg/log"
	"github.com/couchbaselabs/gomemdcore/transport"
)

// Config bundles the pool-scoped settings alongside the per-transport
// Config that every constructed Transport shares.
type Config struct {
	PoolSize              int
	ShutdownGrace         time.Duration
	InitialConnectTimeout time.Duration
	Transport             transport.Config
	Dialer                transport.Dialer
	Logger                log.Logger
}

func (c *Config) setDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 1
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 2 * time.Second
	}
	if c.InitialConnectTimeout <= 0 {
		c.InitialConnectTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Nop
	}
}

// Node is an endpoint-scoped pool of Transports with admission control,
// per spec §4.5.
type Node struct {
	endpoint string
	cfg      Config

	mu         sync.Mutex
	transports map[*transport.Transport]bool
	available  []*transport.Transport

	dead     int32
	closing  int32
}

// New constructs a Node for endpoint and starts its initial pool of
// Config.PoolSize transports. The pool's first connect attempts run
// concurrently; New blocks only up to InitialConnectTimeout waiting for
// them and logs (but does not fail on) the first error among them —
// every transport's own reconnect loop keeps retrying in the
// background regardless of what happens here.
func New(endpoint string, cfg Config) *Node {
	cfg.setDefaults()
	n := &Node{
		endpoint:   endpoint,
		cfg:        cfg,
		transports: make(map[*transport.Transport]bool),
	}

	g := new(errgroup.Group)
	for i := 0; i < cfg.PoolSize; i++ {
		t := n.spawnTransport()
		if t == nil {
			continue
		}
		g.Go(func() error {
			select {
			case err := <-t.FirstOutcome():
				return err
			case <-time.After(cfg.InitialConnectTimeout):
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		n.cfg.Logger.Warnf("node %s: initial pool connect error: %v", endpoint, err)
	}

	return n
}

func (n *Node) Endpoint() string { return n.endpoint }

func (n *Node) isClosing() bool { return atomic.LoadInt32(&n.closing) != 0 }

// IsDead reports whether the Node is currently marked dead. The flag is
// set when the last transport in the pool dies (onTransportDead) or when
// TrySend finds no available transport that accepts the request, and it
// clears automatically once a transport registers or becomes available.
func (n *Node) IsDead() bool { return atomic.LoadInt32(&n.dead) != 0 }

func (n *Node) spawnTransport() *transport.Transport {
	if n.isClosing() {
		return nil
	}

	t := transport.New(n.endpoint, n.cfg.Transport, n.cfg.Dialer, n.onRegister, n.onAvailable, n.isClosing)
	t.OnTransportDead(n.onTransportDead)

	n.mu.Lock()
	n.transports[t] = true
	n.mu.Unlock()

	t.Start()
	return t
}

// onRegister fires the first time a transport completes authentication
// and is ready to serve; it marks the pool as having at least one live
// member, clearing the dead flag.
func (n *Node) onRegister(t *transport.Transport) {
	atomic.StoreInt32(&n.dead, 0)
}

// onAvailable pushes t onto the available stack, unless the pool is
// shutting down and t isn't the one transport still draining a QUIT.
// A transport becoming available is a recovery: it clears the dead
// flag however it got set, whether by the whole pool emptying
// (onTransportDead) or by the available stack merely running dry
// under backpressure (TrySend).
func (n *Node) onAvailable(t *transport.Transport) {
	atomic.StoreInt32(&n.dead, 0)

	n.mu.Lock()
	for _, existing := range n.available {
		if existing == t {
			n.mu.Unlock()
			return
		}
	}
	n.available = append(n.available, t)
	n.mu.Unlock()
}

// onTransportDead implements spec §4.4/§4.5's replacement guarantee: a
// fatally failed transport is dropped from bookkeeping and, unless the
// Node is closing, a fresh transport is spawned at the same endpoint so
// the pool's slot count never shrinks.
func (n *Node) onTransportDead(t *transport.Transport) {
	n.mu.Lock()
	delete(n.transports, t)
	n.removeAvailableLocked(t)
	remaining := len(n.transports)
	n.mu.Unlock()

	if remaining == 0 {
		atomic.StoreInt32(&n.dead, 1)
		n.cfg.Logger.Warnf("node %s: pool exhausted, marking dead until a transport recovers", n.endpoint)
	}

	if !n.isClosing() {
		n.spawnTransport()
	}
}

func (n *Node) removeAvailableLocked(t *transport.Transport) {
	for i, existing := range n.available {
		if existing == t {
			n.available = append(n.available[:i], n.available[i+1:]...)
			return
		}
	}
}

func (n *Node) popAvailableLocked() *transport.Transport {
	if len(n.available) == 0 {
		return nil
	}
	last := len(n.available) - 1
	t := n.available[last]
	n.available = n.available[:last]
	return t
}

// TrySend pops a transport from the available stack and hands it req.
// A transport that accepts the send (returns true) is not re-pushed —
// it re-admits itself via onAvailable once it is ready to take another
// request. A transport that refuses is tried again from the next one
// down the stack; if none accept, the request is failed and the Node
// is marked dead until a transport recovers (see onAvailable), per
// spec §4.5 - this covers the available stack merely running dry under
// backpressure, not only the whole pool emptying out.
func (n *Node) TrySend(req memcache.Request) bool {
	for {
		n.mu.Lock()
		t := n.popAvailableLocked()
		n.mu.Unlock()

		if t == nil {
			atomic.StoreInt32(&n.dead, 1)
			req.Fail()
			return false
		}

		if t.TrySend(req) {
			return true
		}
	}
}

// Shutdown drains every transport cooperatively: each live transport is
// sent a best-effort QUIT whose reply disposes it, and after
// ShutdownGrace any stragglers are force-disposed.
func (n *Node) Shutdown() {
	if !atomic.CompareAndSwapInt32(&n.closing, 0, 1) {
		return
	}

	n.mu.Lock()
	targets := make([]*transport.Transport, 0, len(n.transports))
	for t := range n.transports {
		targets = append(targets, t)
	}
	n.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, t := range targets {
		t := t
		go func() {
			defer wg.Done()
			t.Shutdown(func() {})
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(n.cfg.ShutdownGrace):
		for _, t := range targets {
			t.Dispose()
		}
	}
}
