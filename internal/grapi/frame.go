// Package grapi implements the control-plane wire protocol (§4.A), the
// handler registry (§4.E), and the single-threaded, non-blocking reactor
// server loop that dispatches requests against it (§4.F). It is grounded
// on original_source/main/main.c's api_read_cb/api_write_cb/listen_api_socket
// (the exact accept/read/dispatch/write-retry state machine), transcribed
// from libevent's callback style onto a raw epoll loop since Go has no
// direct libevent binding in the retrieved pack; listener lifecycle idiom
// (close-on-exec local UNIX socket) follows caddyserver-caddy/admin.go.
package grapi

import (
	"encoding/binary"
	"fmt"

	"github.com/grout-project/groutd/internal/grerrno"
)

// HeaderSize is the fixed 12-byte frame header shared by requests and
// responses: three little-endian uint32 fields.
const HeaderSize = 12

// RequestHeader is the fixed header of a client request frame:
// {id, type, payload_len}.
type RequestHeader struct {
	ID         uint32
	Type       uint32
	PayloadLen uint32
}

// ResponseHeader is the fixed header of a server response frame:
// {for_id, status, payload_len}.
type ResponseHeader struct {
	ForID      uint32
	Status     uint32
	PayloadLen uint32
}

// EncodeRequestHeader writes h into a fresh HeaderSize-byte buffer.
func EncodeRequestHeader(h RequestHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.ID)
	binary.LittleEndian.PutUint32(buf[4:8], h.Type)
	binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf
}

// DecodeRequestHeader parses a HeaderSize-byte buffer into a RequestHeader.
func DecodeRequestHeader(buf []byte) (RequestHeader, error) {
	if len(buf) < HeaderSize {
		return RequestHeader{}, fmt.Errorf("request header: short read: %w", grerrno.EMSGSIZE)
	}
	return RequestHeader{
		ID:         binary.LittleEndian.Uint32(buf[0:4]),
		Type:       binary.LittleEndian.Uint32(buf[4:8]),
		PayloadLen: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// EncodeResponseHeader writes h into a fresh HeaderSize-byte buffer.
func EncodeResponseHeader(h ResponseHeader) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.ForID)
	binary.LittleEndian.PutUint32(buf[4:8], h.Status)
	binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLen)
	return buf
}

// DecodeResponseHeader parses a HeaderSize-byte buffer into a
// ResponseHeader.
func DecodeResponseHeader(buf []byte) (ResponseHeader, error) {
	if len(buf) < HeaderSize {
		return ResponseHeader{}, fmt.Errorf("response header: short read: %w", grerrno.EMSGSIZE)
	}
	return ResponseHeader{
		ForID:      binary.LittleEndian.Uint32(buf[0:4]),
		Status:     binary.LittleEndian.Uint32(buf[4:8]),
		PayloadLen: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// EncodeResponse serializes a full response frame (header + payload).
func EncodeResponse(forID uint32, status grerrno.Errno, payload []byte) []byte {
	h := EncodeResponseHeader(ResponseHeader{ForID: forID, Status: uint32(status.Syscall()), PayloadLen: uint32(len(payload))})
	return append(h, payload...)
}

// CheckPayloadLen rejects a request/response payload length exceeding max,
// matching §4.A's EMSGSIZE ceiling.
func CheckPayloadLen(length, max uint32) error {
	if length > max {
		return fmt.Errorf("payload length %d exceeds max %d: %w", length, max, grerrno.EMSGSIZE)
	}
	return nil
}
