package memcache

// Opcode identifies a memcached binary-protocol command.
type Opcode uint8

const (
	OpGet        = Opcode(0x00)
	OpSet        = Opcode(0x01)
	OpAdd        = Opcode(0x02)
	OpReplace    = Opcode(0x03)
	OpDelete     = Opcode(0x04)
	OpIncrement  = Opcode(0x05)
	OpDecrement  = Opcode(0x06)
	OpQuit       = Opcode(0x07)
	OpFlush      = Opcode(0x08)
	OpGetQ       = Opcode(0x09)
	OpNoOp       = Opcode(0x0A)
	OpVersion    = Opcode(0x0B)
	OpGetK       = Opcode(0x0C)
	OpGetKQ      = Opcode(0x0D)
	OpAppend     = Opcode(0x0E)
	OpPrepend    = Opcode(0x0F)
	OpStat       = Opcode(0x10)
	OpSetQ       = Opcode(0x11)
	OpAddQ       = Opcode(0x12)
	OpReplaceQ   = Opcode(0x13)
	OpDeleteQ    = Opcode(0x14)
	OpIncrementQ = Opcode(0x15)
	OpDecrementQ = Opcode(0x16)
	OpQuitQ      = Opcode(0x17)
	OpFlushQ     = Opcode(0x18)
	OpAppendQ    = Opcode(0x19)
	OpPrependQ   = Opcode(0x1A)

	OpSASLListMechs = Opcode(0x20)
	OpSASLAuth      = Opcode(0x21)
	OpSASLStep      = Opcode(0x22)

	// OpDcpNoop is a server-initiated keepalive: the server sends it as
	// a request (not a reply to anything pending) and expects an
	// immediate echo back, outside the normal pending-FIFO match.
	OpDcpNoop = Opcode(0x5C)
)

// quietOpcodes are the opcodes whose success path produces no response;
// the server only replies on failure. For SetQ through FlushQ the low
// nibble matches the non-quiet command they pair with; GetQ, GetKQ,
// AppendQ and PrependQ do not follow that pattern.
var quietOpcodes = map[Opcode]bool{
	OpGetQ:       true,
	OpGetKQ:      true,
	OpSetQ:       true,
	OpAddQ:       true,
	OpReplaceQ:   true,
	OpDeleteQ:    true,
	OpIncrementQ: true,
	OpDecrementQ: true,
	OpQuitQ:      true,
	OpFlushQ:     true,
	OpAppendQ:    true,
	OpPrependQ:   true,
}

// IsQuiet reports whether op is a quiet opcode: the server replies only
// on failure, never on success.
func IsQuiet(op Opcode) bool {
	return quietOpcodes[op]
}
