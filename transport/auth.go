package transport

import (
	"time"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// AuthToken drives one SASL conversation. StepAuthenticate is called
// repeatedly: NoError means authentication is complete, AuthContinue
// means req must be sent and its reply fed back into the next step,
// anything else fails the transport.
type AuthToken interface {
	StepAuthenticate(timeout time.Duration) (memcache.StatusCode, memcache.Request, error)
	// Release frees any resources the token holds (key material,
	// scratch buffers). Called exactly once, on every exit path.
	Release()
}

// Authenticator is the SASL plugin contract from Config.Authenticator.
type Authenticator interface {
	CreateToken() (AuthToken, error)
}

// latch is a single-fire wakeup used to drive the synchronous SASL
// request/reply exchange during authenticate(). authWaitRequest signals
// it when the step's reply (or failure) is delivered; the transport's
// sendComplete hook is not swapped or otherwise touched during
// authentication.
type latch struct {
	ch chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) signal() {
	select {
	case <-l.ch:
		// already signaled; a quiet no-op keeps signal() safe to call
		// more than once (e.g. from both a reply and a stray timeout).
	default:
		close(l.ch)
	}
}

func (l *latch) wait(timeout time.Duration) error {
	if timeout <= 0 {
		<-l.ch
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-l.ch:
		return nil
	case <-timer.C:
		return ErrAuthTimeout
	}
}

// authWaitRequest wraps a SASL step's request so that, once its reply
// arrives via the normal dequeue_to_match/HandleResponse path, the
// status and body are captured and the swapped-in latch is released —
// this is the "wait for its reply" half of the synchronous SASL send
// described in spec §4.4.
type authWaitRequest struct {
	inner  memcache.Request
	done   *latch
	status memcache.StatusCode
	body   []byte
}

func (r *authWaitRequest) QueryBuffer() []byte    { return r.inner.QueryBuffer() }
func (r *authWaitRequest) Key() []byte            { return r.inner.Key() }
func (r *authWaitRequest) RequestID() uint32      { return r.inner.RequestID() }
func (r *authWaitRequest) Replicas() uint8        { return r.inner.Replicas() }
func (r *authWaitRequest) Policy() memcache.Policy { return r.inner.Policy() }
func (r *authWaitRequest) Vbucket() uint16        { return r.inner.Vbucket() }
func (r *authWaitRequest) SetVbucket(v uint16)    { r.inner.SetVbucket(v) }

func (r *authWaitRequest) HandleResponse(h memcache.Header, key, extras, value []byte) {
	r.status = h.Status()
	r.body = value
	r.inner.HandleResponse(h, key, extras, value)
	r.done.signal()
}

func (r *authWaitRequest) Fail() {
	r.status = memcache.StatusInternalError
	r.inner.Fail()
	r.done.signal()
}

// authenticate runs the SASL step-wise handshake described in spec
// §4.4. It is only ever called from connectAndAuth, before the
// transport is registered with its Node, so there is no concurrent
// TrySend caller writing to conn at the same time.
func (t *Transport) authenticate(conn Conn) error {
	if t.cfg.Authenticator == nil {
		return nil
	}

	token, err := t.cfg.Authenticator.CreateToken()
	if err != nil {
		return err
	}
	defer token.Release()

	for {
		status, req, err := token.StepAuthenticate(t.cfg.SocketTimeout)
		if err != nil {
			return err
		}
		if status == memcache.StatusNoError {
			return nil
		}
		if status != memcache.StatusAuthContinue {
			return memcache.NewError(status)
		}
		if req == nil {
			return ErrAuthProtocol
		}

		if err := t.sendAuthRequestSync(conn, req); err != nil {
			return err
		}
	}
}

// sendAuthRequestSync sends req on the raw connection and blocks until
// its reply comes back through the normal receive loop, waiting on a
// one-shot latch that authWaitRequest releases when the reply (or a
// failure) is delivered.
func (t *Transport) sendAuthRequestSync(conn Conn, req memcache.Request) error {
	l := newLatch()
	wrapped := &authWaitRequest{inner: req, done: l}

	t.pendingMu.Lock()
	elem := t.pending.PushBack(memcache.Request(wrapped))
	t.pendingMu.Unlock()

	if err := t.writeRequest(conn, wrapped); err != nil {
		t.pendingMu.Lock()
		t.pending.Remove(elem)
		t.pendingMu.Unlock()
		return err
	}

	return l.wait(t.cfg.SocketTimeout)
}
