package memcache

import "fmt"

// StatusCode is the status field of a binary-protocol response header.
type StatusCode uint16

const (
	StatusNoError                     = StatusCode(0x00)
	StatusKeyNotFound                 = StatusCode(0x01)
	StatusKeyExists                   = StatusCode(0x02)
	StatusValueTooLarge               = StatusCode(0x03)
	StatusInvalidArguments            = StatusCode(0x04)
	StatusItemNotStored               = StatusCode(0x05)
	StatusNonNumeric                  = StatusCode(0x06)
	StatusVBucketBelongsToAnotherServer = StatusCode(0x07)
	StatusAuthRequired                = StatusCode(0x20)
	StatusAuthContinue                = StatusCode(0x21)
	StatusUnknownCommand               = StatusCode(0x81)
	StatusOutOfMemory                  = StatusCode(0x82)
	StatusBusy                         = StatusCode(0x85)
	StatusTemporaryFailure             = StatusCode(0x86)

	// StatusInternalError is synthetic: it never appears on the wire. It
	// is produced locally by Fail() to represent a client-generated
	// failure (e.g. a dead transport, a torn-down connection).
	StatusInternalError = StatusCode(0xFFFF)
)

var statusText = map[StatusCode]string{
	StatusNoError:                        "no error",
	StatusKeyNotFound:                    "key not found",
	StatusKeyExists:                      "key exists",
	StatusValueTooLarge:                  "value too large",
	StatusInvalidArguments:               "invalid arguments",
	StatusItemNotStored:                  "item not stored",
	StatusNonNumeric:                     "incr/decr on non-numeric value",
	StatusVBucketBelongsToAnotherServer:  "vbucket belongs to another server",
	StatusAuthRequired:                   "authentication required",
	StatusAuthContinue:                   "authentication continue",
	StatusUnknownCommand:                 "unknown command",
	StatusOutOfMemory:                    "server out of memory",
	StatusBusy:                           "server busy",
	StatusTemporaryFailure:               "temporary failure",
	StatusInternalError:                  "internal client error",
}

func (s StatusCode) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("status 0x%02x", uint16(s))
}

// statusRank defines the AnyOK priority order used when every reply for
// a redundant request failed and a final status must still be chosen:
// NoError > KeyNotFound > Busy > ... > InternalError > any auth failure.
// A lower rank wins. Statuses not listed rank just above InternalError
// and below every named status, keeping InternalError and auth failures
// the least authoritative answers a server (or the client itself) can
// give.
var statusRank = map[StatusCode]int{
	StatusNoError:                       0,
	StatusKeyNotFound:                   1,
	StatusBusy:                          2,
	StatusKeyExists:                     3,
	StatusItemNotStored:                 4,
	StatusVBucketBelongsToAnotherServer: 5,
	StatusValueTooLarge:                 6,
	StatusInvalidArguments:              7,
	StatusNonNumeric:                    8,
	StatusUnknownCommand:                9,
	StatusOutOfMemory:                   10,
	StatusTemporaryFailure:              11,
}

const (
	defaultRank  = 100
	internalRank = 1000
	authRank     = 1001
)

func rankOf(s StatusCode) int {
	if s == StatusInternalError {
		return internalRank
	}
	if s == StatusAuthRequired || s == StatusAuthContinue {
		return authRank
	}
	if r, ok := statusRank[s]; ok {
		return r
	}
	return defaultRank
}

// higherPriority reports whether candidate should replace current as the
// final status of an AnyOK aggregation where no NoError has been seen.
func higherPriority(candidate, current StatusCode) bool {
	return rankOf(candidate) < rankOf(current)
}
