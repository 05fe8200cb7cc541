package transport

import "github.com/pkg/errors"

var (
	// ErrDisposed is returned when an operation is attempted against a
	// disposed transport.
	ErrDisposed = errors.New("transport: disposed")
	// ErrShuttingDown is returned when try_send is attempted during a
	// cooperative shutdown.
	ErrShuttingDown = errors.New("transport: shutting down")
	// ErrNotConnected means a send was attempted against a transport
	// whose socket was torn down by a prior receive failure; the caller
	// of TrySend sees a plain false, but this is the underlying reason.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrQuietReply is a fatal protocol error: a quiet opcode must never
	// produce a NoError reply.
	ErrQuietReply = errors.New("transport: quiet opcode produced a reply")
	// ErrUnexpectedReply is a fatal protocol error: a reply arrived with
	// nothing pending to match it against.
	ErrUnexpectedReply = errors.New("transport: reply with no matching request")
	// ErrOpaqueMismatch is a fatal protocol error: the head-of-queue
	// request's opaque did not match the response's.
	ErrOpaqueMismatch = errors.New("transport: opaque mismatch, pipeline desynced")
	// ErrAuthProtocol is returned when the authenticator's step reports
	// AuthContinue without supplying a request to send.
	ErrAuthProtocol = errors.New("transport: auth continue without a request")
	// ErrAuthTimeout is returned when a synchronous SASL step exceeds
	// the configured socket timeout waiting for its reply.
	ErrAuthTimeout = errors.New("transport: auth step timed out")
	// ErrDecompress is a fatal protocol error: a reply claimed to carry
	// a snappy-compressed value but failed to decode.
	ErrDecompress = errors.New("transport: failed to decompress value")
)
