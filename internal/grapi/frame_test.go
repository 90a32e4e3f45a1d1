package grapi

import (
	"testing"

	"github.com/grout-project/groutd/internal/grerrno"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestHeaderRoundTrip(t *testing.T) {
	h := RequestHeader{ID: 42, Type: 7, PayloadLen: 128}
	buf := EncodeRequestHeader(h)
	require.Len(t, buf, HeaderSize)

	got, err := DecodeRequestHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestResponseHeaderRoundTrip(t *testing.T) {
	h := ResponseHeader{ForID: 1, Status: 0, PayloadLen: 4}
	buf := EncodeResponseHeader(h)
	require.Len(t, buf, HeaderSize)

	got, err := DecodeResponseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeRequestHeaderShortIsEMSGSIZE(t *testing.T) {
	_, err := DecodeRequestHeader([]byte{1, 2, 3})
	assert.ErrorIs(t, err, grerrno.EMSGSIZE)
}

func TestEncodeResponseAppendsPayload(t *testing.T) {
	frame := EncodeResponse(9, grerrno.ENODEV, []byte("hi"))
	require.Len(t, frame, HeaderSize+2)

	h, err := DecodeResponseHeader(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), h.ForID)
	assert.Equal(t, uint32(2), h.PayloadLen)
	assert.Equal(t, "hi", string(frame[HeaderSize:]))
}

func TestCheckPayloadLen(t *testing.T) {
	assert.NoError(t, CheckPayloadLen(100, 200))
	assert.ErrorIs(t, CheckPayloadLen(300, 200), grerrno.EMSGSIZE)
}
