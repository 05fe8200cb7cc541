// Package memdtest provides in-memory net.Pipe-backed test doubles
// shared by the transport and node test suites, so a fake server side
// of the wire doesn't need reimplementing per package.
package memdtest

import (
	"errors"
	"net"
	"sync"

	"github.com/couchbaselabs/gomemdcore/memcache"
	"github.com/couchbaselabs/gomemdcore/transport"
)

// Dialer hands out one side of a net.Pipe per Dial call, publishing
// the server side on Dials so the test can drive it. After FailLimit
// calls it stops failing and starts succeeding.
type Dialer struct {
	mu        sync.Mutex
	FailLimit int
	calls     int
	Dials     chan net.Conn
}

// NewDialer constructs a Dialer that fails its first failLimit calls.
func NewDialer(failLimit int) *Dialer {
	return &Dialer{FailLimit: failLimit, Dials: make(chan net.Conn, 16)}
}

// Calls reports how many times Dial has been invoked so far.
func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Dialer) Dial(endpoint string) (transport.Conn, error) {
	d.mu.Lock()
	d.calls++
	fail := d.calls <= d.FailLimit
	d.mu.Unlock()

	if fail {
		return nil, errors.New("memdtest: fake dial failure")
	}

	client, server := net.Pipe()
	d.Dials <- server
	return client, nil
}

// ReadFull reads exactly len(buf) bytes from conn.
func ReadFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadRequest reads one full binary request off conn and returns its
// header and raw body.
func ReadRequest(conn net.Conn) (memcache.Header, []byte, error) {
	hdrBuf := make([]byte, memcache.HeaderSize)
	if _, err := ReadFull(conn, hdrBuf); err != nil {
		return memcache.Header{}, nil, err
	}
	h := memcache.DecodeHeader(hdrBuf)
	body := make([]byte, h.TotalBodyLength)
	if len(body) > 0 {
		if _, err := ReadFull(conn, body); err != nil {
			return memcache.Header{}, nil, err
		}
	}
	return h, body, nil
}

// Reply writes a response with the given opcode, opaque, status, and
// value to conn.
func Reply(conn net.Conn, opcode memcache.Opcode, opaque uint32, status memcache.StatusCode, value []byte) error {
	buf := make([]byte, memcache.HeaderSize+len(value))
	memcache.EncodeHeader(buf, memcache.Header{
		Opcode:          opcode,
		StatusOrVbucket: uint16(status),
		TotalBodyLength: uint32(len(value)),
		Opaque:          opaque,
	})
	copy(buf[memcache.HeaderSize:], value)
	_, err := conn.Write(buf)
	return err
}
