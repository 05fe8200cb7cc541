package memcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpRequest_SuccessfulGet(t *testing.T) {
	var gotStatus StatusCode
	var gotValue []byte

	req := NewOpRequest(OpGet, 0, nil, []byte("Hello"), nil, 0, AnyOK, func(status StatusCode, extras, key, value []byte) {
		gotStatus = status
		gotValue = value
	})

	req.HandleResponse(Header{Opcode: OpGet, StatusOrVbucket: uint16(StatusNoError)}, []byte("Hello"), []byte{0xDE, 0xAD, 0xBE, 0xEF}, []byte("World"))

	require.Equal(t, StatusNoError, gotStatus)
	require.Equal(t, []byte("World"), gotValue)
}

func TestOpRequest_Fail(t *testing.T) {
	var gotStatus StatusCode
	var gotValue []byte
	called := 0

	req := NewOpRequest(OpGet, 0, nil, []byte("Hello"), nil, 0, AnyOK, func(status StatusCode, extras, key, value []byte) {
		called++
		gotStatus = status
		gotValue = value
	})

	req.Fail()

	require.Equal(t, 1, called)
	require.Equal(t, StatusInternalError, gotStatus)
	require.Nil(t, gotValue)
}

func TestOpRequest_AnyOK_FiresOnFirstSuccess(t *testing.T) {
	calls := 0
	var gotValue []byte

	req := NewOpRequest(OpGet, 0, nil, []byte("Hello"), nil, 2, AnyOK, func(status StatusCode, extras, key, value []byte) {
		calls++
		gotValue = value
	})

	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, []byte("first"))
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, []byte("second"))
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, []byte("third"))

	require.Equal(t, 1, calls)
	require.Equal(t, []byte("first"), gotValue)
}

func TestOpRequest_AnyOK_AllFailLastKeyNotFoundWins(t *testing.T) {
	var gotStatus StatusCode
	calls := 0

	req := NewOpRequest(OpGet, 0, nil, []byte("Hello"), nil, 2, AnyOK, func(status StatusCode, extras, key, value []byte) {
		calls++
		gotStatus = status
	})

	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusKeyNotFound)}, nil, nil, nil)
	req.Fail()
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusKeyNotFound)}, nil, nil, nil)

	require.Equal(t, 1, calls)
	require.Equal(t, StatusKeyNotFound, gotStatus)
}

func TestOpRequest_AllOK_FirstNonNoErrorWins(t *testing.T) {
	var gotStatus StatusCode

	req := NewOpRequest(OpGet, 0, nil, nil, nil, 2, AllOK, func(status StatusCode, extras, key, value []byte) {
		gotStatus = status
	})

	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusKeyNotFound)}, nil, nil, nil)
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusBusy)}, nil, nil, nil)

	require.Equal(t, StatusKeyNotFound, gotStatus)
}

func TestOpRequest_AllOK_InternalErrorThenSuccess(t *testing.T) {
	var gotStatus StatusCode

	req := NewOpRequest(OpGet, 0, nil, nil, nil, 1, AllOK, func(status StatusCode, extras, key, value []byte) {
		gotStatus = status
	})

	req.Fail()
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)

	require.Equal(t, StatusInternalError, gotStatus)
}

func TestOpRequest_AllOK_AllSuccess(t *testing.T) {
	var gotStatus StatusCode

	req := NewOpRequest(OpGet, 0, nil, nil, nil, 1, AllOK, func(status StatusCode, extras, key, value []byte) {
		gotStatus = status
	})

	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)

	require.Equal(t, StatusNoError, gotStatus)
}

func TestOpRequest_CallbackFiresExactlyOnce(t *testing.T) {
	calls := 0

	req := NewOpRequest(OpGet, 0, nil, nil, nil, 1, AnyOK, func(status StatusCode, extras, key, value []byte) {
		calls++
	})

	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)
	req.HandleResponse(Header{StatusOrVbucket: uint16(StatusNoError)}, nil, nil, nil)
	req.Fail()

	require.Equal(t, 1, calls)
}

func TestOpRequest_VbucketRoundTrip(t *testing.T) {
	req := NewOpRequest(OpGet, 5, nil, []byte("k"), nil, 0, AnyOK, nil)
	req.SetVbucket(133)
	require.EqualValues(t, 133, req.Vbucket())

	buf := req.QueryBuffer()
	h := DecodeHeader(buf)
	require.EqualValues(t, 133, h.Vbucket())
}
