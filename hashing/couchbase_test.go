package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCouchbaseHash_Vectors(t *testing.T) {
	tests := []struct {
		key  string
		hash uint32
	}{
		{"XXXXX", 13701},
		{"Sikkim", 99},
		{"coming", 546},
		{"abandon", 3467},
		{"Grünewald", 3331},
		{"rotational", 2632},
		{"work", 21326},
		{"Chernobyl", 10641},
		{"squirm", 19755},
		{"smear", 15853},
		{"democratic", 9974},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.Equal(t, tt.hash, CouchbaseHash([]byte(tt.key)))
		})
	}
}

func TestVBucket_Example(t *testing.T) {
	require.Equal(t, 133, VBucket([]byte("XXXXX"), 1024))
}
