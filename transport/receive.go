package transport

import (
	"io"
	"sync/atomic"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// receiveLoop owns conn's read side for as long as it is the current
// connection. hdrBuf and bodyBuf are the pinned buffers allocated for
// this connection's lifetime in connectAndAuth: hdrBuf is always
// exactly memcache.HeaderSize bytes, bodyBuf is PinnedBufferSize bytes
// and is walked in chunks for bodies that exceed it. receiveLoop exits
// (without disposing the Transport) the first time a read or protocol
// error occurs, handing off to handleReceiveFailure so the socket can
// be replaced on the next send.
func (t *Transport) receiveLoop(conn Conn, hdrBuf, bodyBuf []byte) {
	for {
		if err := readFull(conn, hdrBuf); err != nil {
			t.handleReceiveFailure(err)
			return
		}

		h := memcache.DecodeHeader(hdrBuf)

		body, err := readBody(conn, bodyBuf, int(h.TotalBodyLength))
		if err != nil {
			t.handleReceiveFailure(err)
			return
		}

		// DCP no-ops are server-initiated requests, not replies to
		// anything this client sent; they are answered immediately,
		// outside the pending-FIFO match.
		if h.IsRequest() && h.Opcode == memcache.OpDcpNoop {
			if err := t.replyDcpNoop(conn, h.Opaque); err != nil {
				t.handleReceiveFailure(err)
				return
			}
			continue
		}

		if err := t.handleIncoming(h, body); err != nil {
			t.handleReceiveFailure(err)
			return
		}
	}
}

func readFull(conn Conn, buf []byte) error {
	_, err := io.ReadFull(conn, buf)
	return err
}

// readBody reads exactly total bytes off conn, walking them through
// the pinned bodyBuf in chunks no larger than its length and appending
// each chunk into an accumulator pre-sized to total so the append
// below never reallocates. The accumulator, not bodyBuf itself, is
// what gets handed to callers: bodyBuf is reused by the very next
// message.
func readBody(conn Conn, bodyBuf []byte, total int) ([]byte, error) {
	if total == 0 {
		return nil, nil
	}
	accum := make([]byte, 0, total)
	for remaining := total; remaining > 0; {
		chunk := bodyBuf
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		if err := readFull(conn, chunk); err != nil {
			return nil, err
		}
		accum = append(accum, chunk...)
		remaining -= len(chunk)
	}
	return accum, nil
}

// replyDcpNoop echoes opaque straight back as a response, serialized
// against ordinary request writes on the same connection via sendMu.
func (t *Transport) replyDcpNoop(conn Conn, opaque uint32) error {
	buf := make([]byte, memcache.HeaderSize)
	memcache.EncodeHeader(buf, memcache.Header{
		Magic:  memcache.MagicResponse,
		Opcode: memcache.OpDcpNoop,
		Opaque: opaque,
	})

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	return writeAll(conn, buf)
}

// handleIncoming matches one reply against the pending queue, fires the
// memcache hooks, and delivers it to the matched request. A quiet
// opcode producing a NoError reply, or a reply with nothing pending to
// match, is a fatal protocol error: the pipeline is desynced and cannot
// be trusted to continue. A quiet opcode's non-NoError reply is matched
// and delivered like any other.
func (t *Transport) handleIncoming(h memcache.Header, body []byte) error {
	if memcache.IsQuiet(h.Opcode) && h.Status() == memcache.StatusNoError {
		return ErrQuietReply
	}

	req, err := t.dequeueToMatch(h)
	if err != nil {
		return err
	}

	extras, key, value := memcache.SplitPayload(h, body)

	value, err = t.maybeDecompress(h, value)
	if err != nil {
		t.cfg.Logger.Debugf("transport %s: failed to decompress value for opaque %d: %v", t.endpoint, h.Opaque, err)
		return ErrDecompress
	}

	if h.Status() == memcache.StatusNoError {
		t.fireMemcacheResponse(h, req)
	} else {
		t.fireMemcacheError(h, req)
	}

	req.HandleResponse(h, key, extras, value)

	t.maybeReadmit()

	return nil
}

// dequeueToMatch implements spec §4.4's head-of-queue matching: the
// opaque of the oldest pending request must equal the reply's opaque.
// A Stat reply with a nonzero body and NoError status is the one
// exception — it is peeked, not dequeued, because a single Stat
// request produces a stream of such rows terminated by an empty-body
// NoError row.
func (t *Transport) dequeueToMatch(h memcache.Header) (memcache.Request, error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()

	front := t.pending.Front()
	if front == nil {
		return nil, ErrUnexpectedReply
	}

	req := front.Value.(memcache.Request)
	if req.RequestID() != h.Opaque {
		return nil, ErrOpaqueMismatch
	}

	if isStatRow(h) {
		return req, nil
	}

	t.pending.Remove(front)
	return req, nil
}

func isStatRow(h memcache.Header) bool {
	return h.Opcode == memcache.OpStat && h.Status() == memcache.StatusNoError && h.TotalBodyLength > 0
}

// maybeReadmit is the receive-side half of backpressure: once the
// pending queue has drained below QueueLength, it flips
// availabilityDeferred back off and re-announces the transport as
// available. sendNow re-checks the queue with the same CAS right after
// setting the flag, so at most one of this call and that re-check
// announces the transport for a given deferred period — never zero,
// since whichever side loses the CAS knows the other side already fired
// the announcement it was about to make.
func (t *Transport) maybeReadmit() {
	t.pendingMu.Lock()
	n := t.pending.Len()
	t.pendingMu.Unlock()

	if t.cfg.QueueLength > 0 && uint32(n) >= t.cfg.QueueLength {
		return
	}

	if atomic.CompareAndSwapInt32(&t.availabilityDeferred, 1, 0) {
		t.sendComplete()
	}
}

