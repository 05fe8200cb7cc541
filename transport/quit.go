package transport

import (
	"sync"
	"sync/atomic"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

var quitOpaqueCounter uint32

// quitRequest is the best-effort QUIT sent during Shutdown. Its reply
// (or failure) invokes cb exactly once.
type quitRequest struct {
	opaque uint32
	cb     func()
	once   sync.Once
}

func newQuitRequest(cb func()) *quitRequest {
	return &quitRequest{
		opaque: atomic.AddUint32(&quitOpaqueCounter, 1),
		cb:     cb,
	}
}

func (q *quitRequest) QueryBuffer() []byte {
	return memcache.EncodeRequest(memcache.OpQuit, q.opaque, 0, 0, nil, nil, nil)
}

func (q *quitRequest) Key() []byte             { return nil }
func (q *quitRequest) RequestID() uint32       { return q.opaque }
func (q *quitRequest) Replicas() uint8         { return 0 }
func (q *quitRequest) Policy() memcache.Policy { return memcache.AnyOK }
func (q *quitRequest) Vbucket() uint16         { return 0 }
func (q *quitRequest) SetVbucket(uint16)       {}

func (q *quitRequest) HandleResponse(memcache.Header, []byte, []byte, []byte) {
	q.once.Do(q.cb)
}

func (q *quitRequest) Fail() {
	q.once.Do(q.cb)
}
