package memcache

// DataType bits carried in Header.DataType. Only the compression flag
// is interpreted by this core; JSON/XATTR bits (if any) pass through
// untouched for the façade to interpret.
const (
	DataTypeRaw        = uint8(0x00)
	DataTypeCompressed = uint8(0x02)
)
