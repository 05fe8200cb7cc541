// Package transport implements the per-connection half of the core: a
// single pipelined, self-healing TCP connection speaking the memcached
// binary protocol, with SASL authentication and cooperative backpressure.
package transport

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchbaselabs/gomemdcore/memcache"
	"github.com/couchbaselabs/gomemdcore/metrics"
	"github.com/couchbaselabs/gomemdcore/pkg/log"
)

type state int32

const (
	stateUnconnected state = iota
	stateAuthenticating
	stateReady
	stateConnectFailed
	stateDraining
	stateDisposed
)

// Config configures one Transport's buffers, timeouts, and plugins.
// It is the transport-scoped slice of the configuration surface
// enumerated in spec §6.
type Config struct {
	PinnedBufferSize int
	RecvBufferSize   int
	QueueLength      uint32
	SocketTimeout    time.Duration
	ReconnectPeriod  time.Duration
	Authenticator    Authenticator
	Logger           log.Logger
	Metrics          metrics.Recorder

	// CompressionMinSize is the value size, in bytes, above which a
	// compressible mutation is snappy-compressed before sending. 0
	// disables compression entirely (the default).
	CompressionMinSize int
	// CompressionMinRatio is the maximum compressed/uncompressed size
	// ratio worth sending compressed; a worse ratio sends the value
	// uncompressed instead. Defaults to 0.9 when compression is on.
	CompressionMinRatio float64
	// DisableDecompression, if true, leaves an incoming compressed
	// value compressed instead of transparently inflating it.
	DisableDecompression bool
}

func (c *Config) setDefaults() {
	if c.PinnedBufferSize <= 0 {
		c.PinnedBufferSize = 16 * 1024
	}
	if c.ReconnectPeriod <= 0 {
		c.ReconnectPeriod = time.Second
	}
	if c.SocketTimeout <= 0 {
		c.SocketTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Nop
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Nop
	}
	if c.CompressionMinSize > 0 && c.CompressionMinRatio <= 0 {
		c.CompressionMinRatio = 0.9
	}
}

// Transport owns one TCP connection to one endpoint. It is created by a
// Node, may replace its underlying socket any number of times, and is
// torn down on a fatal send failure.
type Transport struct {
	Hooks

	endpoint string
	dialer   Dialer
	cfg      Config

	onRegister  func(*Transport)
	onAvailable func(*Transport)
	nodeClosing func() bool

	mu    sync.Mutex
	conn  Conn
	st    state
	registered bool

	sendMu  sync.Mutex
	sendBuf []byte

	recvHdrBuf  []byte
	recvBodyBuf []byte

	pendingMu sync.Mutex
	pending   *list.List

	availabilityDeferred int32

	disposed     int32
	shuttingDown int32

	sendComplete func()

	stopConnectLoop chan struct{}

	firstOutcome     chan error
	firstOutcomeOnce sync.Once
}

// New constructs a Transport bound to endpoint. onRegister is called
// once, the first time the transport becomes ready; onAvailable is
// called every time the transport should be (re-)offered to the
// Node's available pool. nodeClosing lets the transport's reconnect
// loop notice a Node-wide shutdown without holding a strong reference
// back to the Node.
func New(endpoint string, cfg Config, dialer Dialer, onRegister, onAvailable func(*Transport), nodeClosing func() bool) *Transport {
	cfg.setDefaults()
	t := &Transport{
		endpoint:        endpoint,
		dialer:          dialer,
		cfg:             cfg,
		onRegister:      onRegister,
		onAvailable:     onAvailable,
		nodeClosing:     nodeClosing,
		pending:         list.New(),
		stopConnectLoop: make(chan struct{}),
		firstOutcome:    make(chan error, 1),
	}
	t.sendComplete = t.defaultSendComplete
	return t
}

func (t *Transport) Endpoint() string { return t.endpoint }

// FirstOutcome reports the result (nil for success) of the transport's
// first connect-and-authenticate attempt. It is used by Node to build
// its initial pool concurrently and surface the first connect error
// without blocking the reconnect loop's own retry cadence.
func (t *Transport) FirstOutcome() <-chan error { return t.firstOutcome }

func (t *Transport) signalFirstOutcome(err error) {
	t.firstOutcomeOnce.Do(func() { t.firstOutcome <- err })
}

func (t *Transport) isDisposed() bool     { return atomic.LoadInt32(&t.disposed) != 0 }
func (t *Transport) isShuttingDown() bool { return atomic.LoadInt32(&t.shuttingDown) != 0 }

func (t *Transport) setState(s state) {
	t.mu.Lock()
	t.st = s
	t.mu.Unlock()
}

// State reports the transport's current lifecycle state, mainly for
// tests and diagnostics.
func (t *Transport) State() string {
	t.mu.Lock()
	s := t.st
	t.mu.Unlock()
	switch s {
	case stateUnconnected:
		return "unconnected"
	case stateAuthenticating:
		return "authenticating"
	case stateReady:
		return "ready"
	case stateConnectFailed:
		return "connect-failed"
	case stateDraining:
		return "draining"
	case stateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Start kicks off the connect/auth/reconnect loop in the background.
func (t *Transport) Start() {
	go t.connectLoop()
}

func (t *Transport) connectLoop() {
	for {
		if t.isDisposed() {
			return
		}
		if t.nodeClosing != nil && t.nodeClosing() {
			return
		}

		_, err := t.connectAndAuth()
		if err == nil {
			t.becomeReady()
			t.cfg.Metrics.Reconnect(t.endpoint)
			t.signalFirstOutcome(nil)
			return
		}

		t.cfg.Logger.Debugf("transport %s: connect failed: %v", t.endpoint, err)
		t.fireError(err)
		t.setState(stateConnectFailed)
		t.signalFirstOutcome(err)

		select {
		case <-time.After(t.cfg.ReconnectPeriod):
		case <-t.stopConnectLoop:
			return
		}
	}
}

func (t *Transport) connectAndAuth() (Conn, error) {
	t.setState(stateUnconnected)

	conn, err := t.dialer.Dial(t.endpoint)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.conn = conn
	t.sendBuf = make([]byte, t.cfg.PinnedBufferSize)
	t.recvHdrBuf = make([]byte, memcache.HeaderSize)
	t.recvBodyBuf = make([]byte, t.cfg.PinnedBufferSize)
	hdrBuf, bodyBuf := t.recvHdrBuf, t.recvBodyBuf
	t.mu.Unlock()

	t.setState(stateAuthenticating)

	// The receive loop has to be running before authenticate() sends
	// anything: a SASL step's reply is delivered back through the same
	// dequeue_to_match path as any other response (see auth.go), so
	// nothing would ever wake sendAuthRequestSync's latch otherwise.
	go t.receiveLoop(conn, hdrBuf, bodyBuf)

	if err := t.authenticate(conn); err != nil {
		conn.Close()
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		return nil, err
	}

	return conn, nil
}

func (t *Transport) becomeReady() {
	t.setState(stateReady)

	t.mu.Lock()
	firstTime := !t.registered
	t.registered = true
	t.mu.Unlock()

	if firstTime && t.onRegister != nil {
		t.onRegister(t)
	}
	t.defaultSendComplete()
}

func (t *Transport) defaultSendComplete() {
	if t.onAvailable != nil {
		t.onAvailable(t)
	}
}

// TrySend enqueues req and writes it to the wire. It never blocks on
// network I/O beyond the bounded cost of flushing req's bytes, and
// returns false (without enqueueing) if the transport is disposed,
// shutting down, or backpressured.
func (t *Transport) TrySend(req memcache.Request) bool {
	if t.isDisposed() || t.isShuttingDown() {
		return false
	}
	return t.sendNow(req)
}

// sendNow is TrySend's implementation, minus the shutting-down check,
// so Shutdown can use it to flush the one QUIT request it is allowed to
// send after shuttingDown has already been set.
func (t *Transport) sendNow(req memcache.Request) bool {
	if t.isDisposed() {
		return false
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	t.pendingMu.Lock()
	n := t.pending.Len()
	t.pendingMu.Unlock()

	if t.cfg.QueueLength > 0 && uint32(n) >= t.cfg.QueueLength {
		// Mark ourselves pending re-admission. If the receive side
		// drains the queue concurrently and wins the race to flip this
		// back to false (see maybeReadmit), it will also have called
		// onAvailable — so the transport is not lost from the pool
		// even though this particular call still refuses the send.
		atomic.StoreInt32(&t.availabilityDeferred, 1)
		// If the receive side drained the queue before the flag was set,
		// its maybeReadmit found nothing to flip; re-check and re-admit
		// here, through the same CAS, so the wakeup is not lost.
		t.pendingMu.Lock()
		n = t.pending.Len()
		t.pendingMu.Unlock()
		if uint32(n) < t.cfg.QueueLength && atomic.CompareAndSwapInt32(&t.availabilityDeferred, 1, 0) {
			t.sendComplete()
		}
		t.cfg.Metrics.DispatchAttempt(t.endpoint, false)
		return false
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.handleSendFailure(ErrNotConnected)
		return false
	}

	t.pendingMu.Lock()
	elem := t.pending.PushBack(req)
	t.pendingMu.Unlock()

	if err := t.writeRequest(conn, req); err != nil {
		t.pendingMu.Lock()
		t.pending.Remove(elem)
		t.pendingMu.Unlock()
		t.cfg.Metrics.DispatchAttempt(t.endpoint, false)
		t.handleSendFailure(err)
		return false
	}

	t.pendingMu.Lock()
	depth := t.pending.Len()
	t.pendingMu.Unlock()
	t.cfg.Metrics.PendingQueueDepth(t.endpoint, depth)
	t.cfg.Metrics.DispatchAttempt(t.endpoint, true)

	t.sendComplete()

	return true
}

func (t *Transport) writeRequest(conn Conn, req memcache.Request) error {
	buf := t.maybeCompress(req.QueryBuffer())
	pos := 0
	for pos < len(buf) {
		n := copy(t.sendBuf, buf[pos:])
		if err := writeAll(conn, t.sendBuf[:n]); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

func writeAll(conn Conn, b []byte) error {
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// handleSendFailure implements the fatal send-failure path of spec
// §4.4: the transport is torn down for good, a DeadHook observer (the
// owning Node) is given the chance to spawn a replacement at the same
// endpoint so the pool never loses its slot, and every pending request
// is failed.
func (t *Transport) handleSendFailure(err error) {
	if !atomic.CompareAndSwapInt32(&t.disposed, 0, 1) {
		return
	}

	t.cfg.Metrics.TransportDead(t.endpoint)
	t.fireError(err)
	t.fireDead(t)
	t.disposeLocked()
	t.failAllPending()
}

// handleReceiveFailure implements the non-fatal receive-failure path:
// the socket is torn down but the Transport object survives so that
// the next TrySend against it observes a nil connection and routes
// through handleSendFailure, which is where the replacement is
// actually spawned.
func (t *Transport) handleReceiveFailure(err error) {
	if t.isDisposed() {
		return
	}

	t.mu.Lock()
	preReady := t.st != stateReady
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.st = stateConnectFailed
	t.mu.Unlock()

	// failAllPending also wakes any authenticate() step still blocked on
	// its latch (authWaitRequest.Fail signals it) instead of leaving it
	// to time out.
	t.failAllPending()

	if preReady {
		// The connection broke while still inside connectAndAuth; that
		// call's own error return is what drives connectLoop's retry
		// and error reporting, so there is nothing further to announce
		// here - the transport was never registered or made available.
		return
	}

	t.fireError(err)
	t.sendComplete()
}

func (t *Transport) disposeLocked() {
	t.mu.Lock()
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
	t.st = stateDisposed
	t.mu.Unlock()

	select {
	case <-t.stopConnectLoop:
	default:
		close(t.stopConnectLoop)
	}
}

// Dispose releases the socket and pinned buffers. Subsequent operations
// are no-ops. Safe to call more than once.
func (t *Transport) Dispose() {
	if !atomic.CompareAndSwapInt32(&t.disposed, 0, 1) {
		return
	}
	t.disposeLocked()
	t.failAllPending()
}

func (t *Transport) failAllPending() {
	t.pendingMu.Lock()
	pending := t.pending
	t.pending = list.New()
	t.pendingMu.Unlock()

	for e := pending.Front(); e != nil; e = e.Next() {
		e.Value.(memcache.Request).Fail()
	}
}

// Shutdown is idempotent. If cb is non-nil and the transport is live, a
// QUIT request is sent whose reply invokes cb and then disposes the
// transport. If cb is nil, or the transport isn't live, every pending
// request is failed and the transport is disposed immediately.
func (t *Transport) Shutdown(cb func()) {
	if !atomic.CompareAndSwapInt32(&t.shuttingDown, 0, 1) {
		return
	}

	t.mu.Lock()
	live := t.conn != nil && t.st == stateReady
	t.mu.Unlock()

	if cb == nil || !live {
		t.Dispose()
		return
	}

	quit := newQuitRequest(func() {
		cb()
		t.Dispose()
	})

	if !t.sendNow(quit) {
		t.Dispose()
	}
}
