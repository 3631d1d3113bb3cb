// Package burstwire defines the datagram layout shared by the burst sender
// and receiver. All header fields are fixed width, network byte order:
//
//	burst_id (8) | fragment_index (2) | fragment_count (2) | payload_len (2) | payload
package burstwire

import (
	"encoding/binary"
	"errors"
	"time"
)

const (
	HeaderLen = 14

	// MaxPayload keeps the whole datagram inside the RFC 768 limit.
	MaxPayload = 65507 - HeaderLen
)

var (
	ErrShortBuffer = errors.New("buffer too small")
	ErrTruncated   = errors.New("datagram truncated")
	ErrBadHeader   = errors.New("malformed fragment header")
)

// FragmentPacket is one fragment of a burst. SendTime is sender-local state
// for pacing bookkeeping and never crosses the wire.
type FragmentPacket struct {
	BurstID       uint64
	FragmentIndex uint16
	FragmentCount uint16
	Payload       []byte
	SendTime      time.Time
}

func (p *FragmentPacket) Encode(dst []byte) (int, error) {
	need := HeaderLen + len(p.Payload)
	if len(dst) < need {
		return 0, ErrShortBuffer
	}
	if len(p.Payload) > MaxPayload {
		return 0, ErrBadHeader
	}
	binary.BigEndian.PutUint64(dst[0:8], p.BurstID)
	binary.BigEndian.PutUint16(dst[8:10], p.FragmentIndex)
	binary.BigEndian.PutUint16(dst[10:12], p.FragmentCount)
	binary.BigEndian.PutUint16(dst[12:14], uint16(len(p.Payload)))
	copy(dst[HeaderLen:], p.Payload)
	return need, nil
}

// Decode parses a received datagram. The payload aliases src; callers that
// retain it past the read buffer's lifetime must copy.
func (p *FragmentPacket) Decode(src []byte) (int, error) {
	if len(src) < HeaderLen {
		return 0, ErrTruncated
	}
	p.BurstID = binary.BigEndian.Uint64(src[0:8])
	p.FragmentIndex = binary.BigEndian.Uint16(src[8:10])
	p.FragmentCount = binary.BigEndian.Uint16(src[10:12])
	payloadLen := int(binary.BigEndian.Uint16(src[12:14]))

	if p.FragmentCount == 0 || p.FragmentIndex >= p.FragmentCount {
		return 0, ErrBadHeader
	}
	need := HeaderLen + payloadLen
	if len(src) < need {
		return 0, ErrTruncated
	}
	p.Payload = src[HeaderLen:need]
	return need, nil
}

// PeekBurstID reads the burst identity without a full decode.
func PeekBurstID(src []byte) (uint64, bool) {
	if len(src) < HeaderLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(src[0:8]), true
}
