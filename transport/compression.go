package transport

import (
	"github.com/golang/snappy"

	"github.com/couchbaselabs/gomemdcore/memcache"
)

// compressibleOpcodes mirrors the teacher's isCompressibleOp switch:
// only mutations that carry a value are worth compressing.
var compressibleOpcodes = map[memcache.Opcode]bool{
	memcache.OpSet:        true,
	memcache.OpAdd:        true,
	memcache.OpReplace:    true,
	memcache.OpAppend:     true,
	memcache.OpPrepend:    true,
	memcache.OpSetQ:       true,
	memcache.OpAddQ:       true,
	memcache.OpReplaceQ:   true,
	memcache.OpAppendQ:    true,
	memcache.OpPrependQ:   true,
}

// maybeCompress returns a new buffer with buf's value snappy-compressed
// when compression is configured, the opcode is compressible,
// the value exceeds CompressionMinSize, and the compressed form beats
// CompressionMinRatio. Otherwise it returns buf unchanged.
func (t *Transport) maybeCompress(buf []byte) []byte {
	if t.cfg.CompressionMinSize <= 0 {
		return buf
	}

	h := memcache.DecodeHeader(buf)
	if !compressibleOpcodes[h.Opcode] {
		return buf
	}
	if h.DataType&memcache.DataTypeCompressed != 0 {
		return buf
	}

	body := buf[memcache.HeaderSize:]
	extras, key, value := memcache.SplitPayload(h, body)
	if len(value) <= t.cfg.CompressionMinSize {
		return buf
	}

	compressed := snappy.Encode(nil, value)
	if float64(len(compressed))/float64(len(value)) > t.cfg.CompressionMinRatio {
		return buf
	}

	h.DataType |= memcache.DataTypeCompressed
	h.TotalBodyLength = uint32(len(extras) + len(key) + len(compressed))

	out := make([]byte, memcache.HeaderSize+len(extras)+len(key)+len(compressed))
	memcache.EncodeHeader(out, h)
	n := memcache.HeaderSize
	n += copy(out[n:], extras)
	n += copy(out[n:], key)
	copy(out[n:], compressed)
	return out
}

// maybeDecompress returns value inflated into a new slice when h.DataType carries the
// compressed flag and decompression hasn't been disabled. A corrupt
// compressed payload is treated as a fatal protocol error, the same
// way the teacher logs and discards it, except the caller decides the
// failure mode.
func (t *Transport) maybeDecompress(h memcache.Header, value []byte) ([]byte, error) {
	if h.DataType&memcache.DataTypeCompressed == 0 || t.cfg.DisableDecompression {
		return value, nil
	}
	return snappy.Decode(nil, value)
}
