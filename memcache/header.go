package memcache

import "encoding/binary"

// HeaderSize is the fixed size of a binary-protocol request or response
// header, in bytes.
const HeaderSize = 24

const (
	reqMagic = byte(0x80)
	resMagic = byte(0x81)

	// MagicRequest and MagicResponse are the exported forms of the two
	// magic bytes, needed outside this package wherever a caller must
	// tell a server-initiated request (e.g. a DCP no-op) apart from a
	// reply, or build a response header of its own.
	MagicRequest  = reqMagic
	MagicResponse = resMagic
)

// Header is the decoded 24-byte binary-protocol header, shared by
// requests and responses. For a response, StatusOrVbucket holds the
// status code; for a request, it holds the vbucket id.
type Header struct {
	Magic          byte
	Opcode         Opcode
	KeyLength      uint16
	ExtrasLength   uint8
	DataType       uint8
	StatusOrVbucket uint16
	TotalBodyLength uint32
	Opaque          uint32
	CAS             uint64
}

// Status interprets StatusOrVbucket as a response status code.
func (h Header) Status() StatusCode {
	return StatusCode(h.StatusOrVbucket)
}

// Vbucket interprets StatusOrVbucket as a request vbucket id.
func (h Header) Vbucket() uint16 {
	return h.StatusOrVbucket
}

// IsRequest reports whether h carries the request magic rather than
// the response magic. The only packets this client ever receives with
// request magic are server-initiated ones, such as a DCP no-op.
func (h Header) IsRequest() bool {
	return h.Magic == reqMagic
}

// PayloadLength is the portion of TotalBodyLength left over once the key
// and extras are accounted for: total - key - extras.
func (h Header) PayloadLength() int {
	n := int(h.TotalBodyLength) - int(h.KeyLength) - int(h.ExtrasLength)
	if n < 0 {
		return 0
	}
	return n
}

// DecodeHeader parses a 24-byte big-endian binary-protocol header.
func DecodeHeader(buf []byte) Header {
	return Header{
		Magic:           buf[0],
		Opcode:          Opcode(buf[1]),
		KeyLength:       binary.BigEndian.Uint16(buf[2:4]),
		ExtrasLength:    buf[4],
		DataType:        buf[5],
		StatusOrVbucket: binary.BigEndian.Uint16(buf[6:8]),
		TotalBodyLength: binary.BigEndian.Uint32(buf[8:12]),
		Opaque:          binary.BigEndian.Uint32(buf[12:16]),
		CAS:             binary.BigEndian.Uint64(buf[16:24]),
	}
}

// EncodeHeader writes h into the first HeaderSize bytes of buf (which
// must be at least HeaderSize long). Every field, including Magic and
// StatusOrVbucket, is written exactly as given in h, so the same call
// builds request and response headers.
func EncodeHeader(buf []byte, h Header) {
	buf[0] = h.Magic
	buf[1] = byte(h.Opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.KeyLength)
	buf[4] = h.ExtrasLength
	buf[5] = h.DataType
	binary.BigEndian.PutUint16(buf[6:8], h.StatusOrVbucket)
	binary.BigEndian.PutUint32(buf[8:12], h.TotalBodyLength)
	binary.BigEndian.PutUint32(buf[12:16], h.Opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.CAS)
}

// EncodeRequest builds a fully formed binary request: a 24-byte header
// (magic 0x80, status field carrying vbucket) followed by extras, key,
// and value in that order.
func EncodeRequest(opcode Opcode, opaque uint32, vbucket uint16, cas uint64, extras, key, value []byte) []byte {
	buf := make([]byte, HeaderSize+len(extras)+len(key)+len(value))
	EncodeHeader(buf, Header{
		Magic:           reqMagic,
		Opcode:          opcode,
		KeyLength:       uint16(len(key)),
		ExtrasLength:    uint8(len(extras)),
		StatusOrVbucket: vbucket,
		TotalBodyLength: uint32(len(extras) + len(key) + len(value)),
		Opaque:          opaque,
		CAS:             cas,
	})
	n := HeaderSize
	n += copy(buf[n:], extras)
	n += copy(buf[n:], key)
	copy(buf[n:], value)
	return buf
}

// SplitPayload slices extras, key, and value out of a response body that
// has already been read in full, using the lengths carried by h.
func SplitPayload(h Header, body []byte) (extras, key, value []byte) {
	extras = body[:h.ExtrasLength]
	key = body[h.ExtrasLength : int(h.ExtrasLength)+int(h.KeyLength)]
	value = body[int(h.ExtrasLength)+int(h.KeyLength):]
	return extras, key, value
}
