// Package hashing implements the bucket-key hash used to map a key to
// its owning vbucket, bit-compatible with Couchbase server.
package hashing

import "hash/crc32"

// CouchbaseHash computes the "Couchbase default" hash of key: a CRC32
// (IEEE polynomial, the same reflected 0xEDB88320 polynomial
// hash/crc32.IEEE uses) of the raw key bytes, folded down to 15 bits by
// taking (crc >> 16) & 0x7FFF. Keys are never normalized; the hash
// operates on exactly the bytes given.
func CouchbaseHash(key []byte) uint32 {
	crc := crc32.ChecksumIEEE(key)
	return (crc >> 16) & 0x7FFF
}

// VBucket maps key to a bucket index in [0, numBuckets).
func VBucket(key []byte, numBuckets int) int {
	return int(CouchbaseHash(key)) % numBuckets
}
