package memcache

import "sync"

// Policy controls how a redundant request (replicas > 0) aggregates the
// replies it receives from each attempt into a single outcome.
type Policy int

const (
	// AnyOK fires the callback on the first NoError reply it sees. If
	// every attempt fails, it fires with the highest-priority status
	// among the failures (see statusRank).
	AnyOK Policy = iota
	// AllOK fires NoError only if every attempt replied NoError; any
	// non-NoError reply becomes (and stays) the final status.
	AllOK
)

// Request is the capability surface the transport/node/locator/cluster
// layers need from a caller-constructed operation. Everything else
// about a request — how it was built, what serializer it uses, what
// user callback it eventually invokes — is the façade's concern and is
// opaque here.
type Request interface {
	// QueryBuffer returns a fully formed binary request, including the
	// opaque identifier returned by RequestID. Called once per attempt,
	// after the locator (if any) has set Vbucket.
	QueryBuffer() []byte
	// Key is the raw key a Locator hashes or hashes-and-partitions on.
	// It is independent of QueryBuffer's encoding.
	Key() []byte
	// RequestID is the 32-bit opaque embedded in QueryBuffer.
	RequestID() uint32
	// Replicas is the number of additional attempts beyond the primary;
	// 0 means no replication.
	Replicas() uint8
	// Policy controls reply aggregation across replicas+1 attempts.
	Policy() Policy
	// Vbucket is the partition slot a VBucketServerMap locator may set.
	Vbucket() uint16
	SetVbucket(v uint16)

	// HandleResponse delivers one reply. It may be called up to
	// Replicas()+1 times.
	HandleResponse(h Header, key, extras, value []byte)
	// Fail delivers a synthetic InternalError reply with no body. It
	// counts as one of the Replicas()+1 events.
	Fail()
}

// Callback receives the final aggregated outcome of a Request, exactly
// once, regardless of how many of the Replicas()+1 attempts fired.
type Callback func(status StatusCode, extras, key, value []byte)

// OpRequest is the concrete Request used by the façade for ordinary
// Get/Set/Delete/Incr/... operations. It owns the aggregation state
// machine described in spec §4.3.
type OpRequest struct {
	Opcode   Opcode
	Opaque   uint32
	Extras   []byte
	KeyBytes []byte
	Value    []byte
	CAS      uint64

	replicas uint8
	policy   Policy
	callback Callback

	mu          sync.Mutex
	vbucket     uint16
	remaining   int
	fired       bool
	haveAny     bool
	finalStatus StatusCode
	finalExtras []byte
	finalKey    []byte
	finalValue  []byte
}

// NewOpRequest constructs an OpRequest. remaining is initialized to
// replicas+1, matching the number of HandleResponse/Fail events the
// state machine expects before it must have produced a result.
func NewOpRequest(opcode Opcode, opaque uint32, extras, key, value []byte, replicas uint8, policy Policy, cb Callback) *OpRequest {
	return &OpRequest{
		Opcode:    opcode,
		Opaque:    opaque,
		Extras:    extras,
		KeyBytes:  key,
		Value:     value,
		replicas:  replicas,
		policy:    policy,
		callback:  cb,
		remaining: int(replicas) + 1,
	}
}

func (r *OpRequest) QueryBuffer() []byte {
	r.mu.Lock()
	vb := r.vbucket
	r.mu.Unlock()
	return EncodeRequest(r.Opcode, r.Opaque, vb, r.CAS, r.Extras, r.KeyBytes, r.Value)
}

// Key returns the raw key bytes, independent of the wire encoding.
func (r *OpRequest) Key() []byte { return r.KeyBytes }

func (r *OpRequest) RequestID() uint32 { return r.Opaque }
func (r *OpRequest) Replicas() uint8   { return r.replicas }
func (r *OpRequest) Policy() Policy    { return r.policy }

func (r *OpRequest) Vbucket() uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vbucket
}

func (r *OpRequest) SetVbucket(v uint16) {
	r.mu.Lock()
	r.vbucket = v
	r.mu.Unlock()
}

// HandleResponse implements the AnyOK/AllOK aggregation in spec §4.3.
func (r *OpRequest) HandleResponse(h Header, key, extras, value []byte) {
	r.observe(h.Status(), extras, key, value)
}

// Fail is equivalent to a reply with status InternalError and no body.
func (r *OpRequest) Fail() {
	r.observe(StatusInternalError, nil, nil, nil)
}

func (r *OpRequest) observe(status StatusCode, extras, key, value []byte) {
	r.mu.Lock()

	if r.remaining > 0 {
		r.remaining--
	}

	if r.fired {
		// The callback has already fired; later events are counted
		// above (so draining a transport's pending queue can still
		// reach remaining==0) but otherwise ignored.
		r.mu.Unlock()
		return
	}

	shouldFire := false
	switch r.policy {
	case AnyOK:
		if status == StatusNoError {
			r.finalStatus = status
			r.finalExtras, r.finalKey, r.finalValue = extras, key, value
			shouldFire = true
			break
		}
		if !r.haveAny || higherPriority(status, r.finalStatus) {
			r.haveAny = true
			r.finalStatus = status
			r.finalExtras, r.finalKey, r.finalValue = extras, key, value
		}
		shouldFire = r.remaining == 0

	case AllOK:
		if !r.haveAny {
			r.haveAny = true
			r.finalStatus = StatusNoError
		}
		if status != StatusNoError && r.finalStatus == StatusNoError {
			r.finalStatus = status
			r.finalExtras, r.finalKey, r.finalValue = extras, key, value
		}
		shouldFire = r.remaining == 0
	}

	var cb Callback
	var fStatus StatusCode
	var fExtras, fKey, fValue []byte
	if shouldFire {
		r.fired = true
		cb = r.callback
		fStatus, fExtras, fKey, fValue = r.finalStatus, r.finalExtras, r.finalKey, r.finalValue
	}

	r.mu.Unlock()

	if cb != nil {
		cb(fStatus, fExtras, fKey, fValue)
	}
}
