package locator

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchbaselabs/gomemdcore/hashing"
	"github.com/couchbaselabs/gomemdcore/memcache"
)

type fakeTarget struct {
	dead bool
	sent []memcache.Request
}

func (f *fakeTarget) IsDead() bool { return f.dead }

func (f *fakeTarget) TrySend(req memcache.Request) bool {
	if f.dead {
		return false
	}
	f.sent = append(f.sent, req)
	return true
}

func TestRoundRobin_CyclesAndSkipsDead(t *testing.T) {
	a, b, c := &fakeTarget{}, &fakeTarget{dead: true}, &fakeTarget{}
	rr := NewRoundRobin([]Target{a, b, c})

	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("k"), nil, 0, memcache.AnyOK, nil)

	for i := 0; i < 6; i++ {
		out := rr.Locate(req)
		require.Len(t, out, 1)
		require.NotEqual(t, Target(b), out[0])
	}
}

func TestRoundRobin_AllDeadReturnsEmpty(t *testing.T) {
	rr := NewRoundRobin([]Target{&fakeTarget{dead: true}, &fakeTarget{dead: true}})
	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("k"), nil, 0, memcache.AnyOK, nil)
	require.Empty(t, rr.Locate(req))
}

func TestRoundRobin_ReplicasReturnsMultipleDistinctNodes(t *testing.T) {
	a, b, c := &fakeTarget{}, &fakeTarget{}, &fakeTarget{}
	rr := NewRoundRobin([]Target{a, b, c})
	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("k"), nil, 2, memcache.AnyOK, nil)

	out := rr.Locate(req)
	require.Len(t, out, 3)
	require.NotSame(t, out[0], out[1])
	require.NotSame(t, out[0], out[2])
	require.NotSame(t, out[1], out[2])
}

func TestKetama_SameKeyAlwaysMapsToSameNode(t *testing.T) {
	a := &fakeTarget{}
	b := &fakeTarget{}
	k := NewKetama(map[string]Target{"10.0.0.1:11210": a, "10.0.0.2:11210": b})

	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("session:42"), nil, 0, memcache.AnyOK, nil)

	first := k.Locate(req)
	second := k.Locate(req)
	require.Len(t, first, 1)
	require.Equal(t, first, second)
}

func TestKetama_RebuildPicksUpNewNodeSet(t *testing.T) {
	a := &fakeTarget{}
	k := NewKetama(map[string]Target{"10.0.0.1:11210": a})

	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("session:42"), nil, 0, memcache.AnyOK, nil)
	require.Len(t, k.Locate(req), 1)

	b := &fakeTarget{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Rebuild(map[string]Target{"10.0.0.1:11210": a, "10.0.0.2:11210": b})
		}()
	}
	wg.Wait()

	out := k.Locate(req)
	require.Len(t, out, 1)

	// With one replica requested, both nodes must now be on the ring.
	replicated := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("session:42"), nil, 1, memcache.AnyOK, nil)
	require.Len(t, k.Locate(replicated), 2)
}

func TestKetama_SkipsDeadNodes(t *testing.T) {
	a := &fakeTarget{dead: true}
	b := &fakeTarget{}
	k := NewKetama(map[string]Target{"10.0.0.1:11210": a, "10.0.0.2:11210": b})

	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, []byte("session:42"), nil, 0, memcache.AnyOK, nil)

	out := k.Locate(req)
	require.Len(t, out, 1)
	require.Equal(t, Target(b), out[0])
}

func TestVBucketServerMap_WritesBucketIntoRequest(t *testing.T) {
	a, b := &fakeTarget{}, &fakeTarget{}
	key := []byte("user:17")
	bucket := hashing.VBucket(key, 4)

	vbmap := make([][]int32, 4)
	for i := range vbmap {
		vbmap[i] = []int32{-1, -1}
	}
	vbmap[bucket] = []int32{0, 1}

	m := NewVBucketServerMap([]Target{a, b}, vbmap)
	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, key, nil, 1, memcache.AnyOK, nil)

	out := m.Locate(req)
	require.Equal(t, []Target{a, b}, out)
	require.EqualValues(t, bucket, req.Vbucket())
}

func TestVBucketServerMap_SkipsUnassignedSlots(t *testing.T) {
	a := &fakeTarget{}
	key := []byte("user:17")
	bucket := hashing.VBucket(key, 2)

	vbmap := [][]int32{{-1, -1}, {-1, -1}}
	vbmap[bucket] = []int32{-1, 0}

	m := NewVBucketServerMap([]Target{a}, vbmap)
	req := memcache.NewOpRequest(memcache.OpGet, 0, nil, key, nil, 1, memcache.AnyOK, nil)

	out := m.Locate(req)
	require.Equal(t, []Target{a}, out)
}
