package cluster

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/couchbaselabs/gomemdcore/locator"
	"github.com/couchbaselabs/gomemdcore/memcache"
)

type fakeNode struct {
	mu   sync.Mutex
	dead bool
	sent []memcache.Request
	fail bool
}

func (f *fakeNode) IsDead() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dead
}

func (f *fakeNode) setDead(d bool) {
	f.mu.Lock()
	f.dead = d
	f.mu.Unlock()
}

// TrySend matches Node.TrySend's own contract: a refused send calls
// req.Fail() itself before returning false, rather than leaving the
// caller to do it.
func (f *fakeNode) TrySend(req memcache.Request) bool {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()

	if fail {
		req.Fail()
		return false
	}

	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return true
}

type fixedLocator struct {
	targets []locator.Target
}

func (l *fixedLocator) Locate(req memcache.Request) []locator.Target { return l.targets }

func TestCluster_Dispatch_SendsToEveryLocatedTarget(t *testing.T) {
	a, b := &fakeNode{}, &fakeNode{}
	loc := &fixedLocator{targets: []locator.Target{a, b}}

	c := New(loc, []locator.Target{a, b}, nil, Config{LivenessInterval: time.Hour})
	defer c.Close()

	req := memcache.NewOpRequest(memcache.OpGet, 1, nil, []byte("k"), nil, 1, memcache.AnyOK, nil)
	c.Dispatch(req)

	require.Len(t, a.sent, 1)
	require.Len(t, b.sent, 1)
}

func TestCluster_Dispatch_NoTargetsFailsRequest(t *testing.T) {
	loc := &fixedLocator{}
	c := New(loc, nil, nil, Config{LivenessInterval: time.Hour})
	defer c.Close()

	var gotStatus memcache.StatusCode
	req := memcache.NewOpRequest(memcache.OpGet, 1, nil, []byte("k"), nil, 0, memcache.AnyOK, func(status memcache.StatusCode, extras, key, value []byte) {
		gotStatus = status
	})
	c.Dispatch(req)

	require.Equal(t, memcache.StatusInternalError, gotStatus)
}

func TestCluster_Dispatch_RefusingNodeFailsThatAttempt(t *testing.T) {
	a := &fakeNode{fail: true}
	b := &fakeNode{}
	loc := &fixedLocator{targets: []locator.Target{a, b}}

	c := New(loc, []locator.Target{a, b}, nil, Config{LivenessInterval: time.Hour})
	defer c.Close()

	var gotStatus memcache.StatusCode
	req := memcache.NewOpRequest(memcache.OpGet, 1, nil, []byte("k"), nil, 1, memcache.AllOK, func(status memcache.StatusCode, extras, key, value []byte) {
		gotStatus = status
	})
	c.Dispatch(req)

	require.Len(t, b.sent, 1)

	// b's accepted send only completes once its reply arrives, same as
	// a real Node.TrySend(true) returning before the transport has a
	// response; simulate that reply now to reach AllOK's remaining==0.
	req.HandleResponse(memcache.Header{StatusOrVbucket: uint16(memcache.StatusNoError)}, nil, nil, nil)

	require.Equal(t, memcache.StatusInternalError, gotStatus)
}

func TestCluster_LivenessChangeTriggersRebuild(t *testing.T) {
	a := &fakeNode{}
	loc := &fixedLocator{targets: []locator.Target{a}}

	rebuilt := make(chan struct{}, 1)
	rebuild := func() locator.Locator {
		select {
		case rebuilt <- struct{}{}:
		default:
		}
		return loc
	}

	c := New(loc, []locator.Target{a}, rebuild, Config{LivenessInterval: 5 * time.Millisecond})
	defer c.Close()

	a.setDead(true)

	select {
	case <-rebuilt:
	case <-time.After(time.Second):
		t.Fatal("liveness loop never noticed the dead flag and rebuilt the locator")
	}
}
