package burstwire

import (
	"bytes"
	"errors"
	"testing"
)

func TestFragmentPacketRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 1400)
	pkt := FragmentPacket{
		BurstID:       42,
		FragmentIndex: 3,
		FragmentCount: 36,
		Payload:       payload,
	}

	buf := make([]byte, HeaderLen+len(payload))
	n, err := pkt.Encode(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if n != HeaderLen+len(payload) {
		t.Fatalf("encoded length = %d, want %d", n, HeaderLen+len(payload))
	}

	var got FragmentPacket
	m, err := got.Decode(buf[:n])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m != n {
		t.Fatalf("decoded length = %d, want %d", m, n)
	}
	if got.BurstID != pkt.BurstID || got.FragmentIndex != pkt.FragmentIndex || got.FragmentCount != pkt.FragmentCount {
		t.Fatalf("header mismatch: %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Fatal("payload mismatch")
	}
}

func TestEncodeShortBuffer(t *testing.T) {
	pkt := FragmentPacket{BurstID: 1, FragmentCount: 1, Payload: make([]byte, 100)}
	buf := make([]byte, HeaderLen+50)
	if _, err := pkt.Encode(buf); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("err = %v, want ErrShortBuffer", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	pkt := FragmentPacket{BurstID: 7, FragmentIndex: 0, FragmentCount: 2, Payload: make([]byte, 64)}
	buf := make([]byte, HeaderLen+64)
	n, err := pkt.Encode(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got FragmentPacket
	if _, err := got.Decode(buf[:n-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("truncated payload err = %v, want ErrTruncated", err)
	}
	if _, err := got.Decode(buf[:HeaderLen-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("truncated header err = %v, want ErrTruncated", err)
	}
}

func TestDecodeBadHeader(t *testing.T) {
	cases := []struct {
		name  string
		index uint16
		count uint16
	}{
		{"zero count", 0, 0},
		{"index equals count", 4, 4},
		{"index past count", 9, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pkt := FragmentPacket{BurstID: 1, FragmentIndex: tc.index, FragmentCount: tc.count}
			buf := make([]byte, HeaderLen)
			if _, err := pkt.Encode(buf); err != nil {
				t.Fatalf("encode: %v", err)
			}
			var got FragmentPacket
			if _, err := got.Decode(buf); !errors.Is(err, ErrBadHeader) {
				t.Fatalf("err = %v, want ErrBadHeader", err)
			}
		})
	}
}

func TestPeekBurstID(t *testing.T) {
	pkt := FragmentPacket{BurstID: 1234567, FragmentIndex: 0, FragmentCount: 1, Payload: []byte("x")}
	buf := make([]byte, HeaderLen+1)
	n, err := pkt.Encode(buf)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	id, ok := PeekBurstID(buf[:n])
	if !ok || id != 1234567 {
		t.Fatalf("PeekBurstID = %d, %v", id, ok)
	}
	if _, ok := PeekBurstID(buf[:4]); ok {
		t.Fatal("peek on short datagram should fail")
	}
}
