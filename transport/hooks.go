package transport

import (
	"sync"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// ErrorHook is invoked on transient and fatal transport errors.
type ErrorHook func(err error)

// MemcacheHook is invoked with the response header and the request it
// matched, either for a non-NoError reply (fireMemcacheError) or a
// NoError one (fireMemcacheResponse).
type MemcacheHook func(h memcache.Header, req memcache.Request)

// DeadHook is invoked once a transport has been torn down after a fatal
// send failure. Node registers one to spawn a replacement and keep the
// pool's slot count stable.
type DeadHook func(t *Transport)

// Hooks is a small multicast event system: each slot fans out to every
// registered observer, the way the teacher's events are consumed by
// more than one subscriber (logging, tracing, pool bookkeeping).
type Hooks struct {
	mu                 sync.Mutex
	onTransportError   []ErrorHook
	onMemcacheError    []MemcacheHook
	onMemcacheResponse []MemcacheHook
	onTransportDead    []DeadHook
}

func (h *Hooks) OnTransportError(f ErrorHook) {
	h.mu.Lock()
	h.onTransportError = append(h.onTransportError, f)
	h.mu.Unlock()
}

func (h *Hooks) OnMemcacheError(f MemcacheHook) {
	h.mu.Lock()
	h.onMemcacheError = append(h.onMemcacheError, f)
	h.mu.Unlock()
}

func (h *Hooks) OnMemcacheResponse(f MemcacheHook) {
	h.mu.Lock()
	h.onMemcacheResponse = append(h.onMemcacheResponse, f)
	h.mu.Unlock()
}

func (h *Hooks) OnTransportDead(f DeadHook) {
	h.mu.Lock()
	h.onTransportDead = append(h.onTransportDead, f)
	h.mu.Unlock()
}

func (h *Hooks) fireError(err error) {
	h.mu.Lock()
	fns := append([]ErrorHook(nil), h.onTransportError...)
	h.mu.Unlock()
	for _, f := range fns {
		f(err)
	}
}

func (h *Hooks) fireMemcacheError(hdr memcache.Header, req memcache.Request) {
	h.mu.Lock()
	fns := append([]MemcacheHook(nil), h.onMemcacheError...)
	h.mu.Unlock()
	for _, f := range fns {
		f(hdr, req)
	}
}

func (h *Hooks) fireMemcacheResponse(hdr memcache.Header, req memcache.Request) {
	h.mu.Lock()
	fns := append([]MemcacheHook(nil), h.onMemcacheResponse...)
	h.mu.Unlock()
	for _, f := range fns {
		f(hdr, req)
	}
}

func (h *Hooks) fireDead(t *Transport) {
	h.mu.Lock()
	fns := append([]DeadHook(nil), h.onTransportDead...)
	h.mu.Unlock()
	for _, f := range fns {
		f(t)
	}
}
