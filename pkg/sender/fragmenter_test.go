package sender

import (
	"errors"
	"testing"

	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

func TestFragmentInvariants(t *testing.T) {
	cases := []struct {
		name       string
		size       uint32
		maxPayload int
		wantCount  int
		wantLast   int
	}{
		{"uneven split", 50000, 1400, 36, 1000},
		{"even split", 4200, 1400, 3, 1400},
		{"single fragment", 900, 1400, 1, 900},
		{"exactly one", 1400, 1400, 1, 1400},
		{"one byte", 1, 1400, 1, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			desc := trace.BurstDescriptor{Seq: 17, SizeBytes: tc.size}
			packets, err := Fragment(desc, tc.maxPayload)
			if err != nil {
				t.Fatalf("Fragment: %v", err)
			}
			if len(packets) != tc.wantCount {
				t.Fatalf("count = %d, want %d", len(packets), tc.wantCount)
			}

			total := 0
			for i, pkt := range packets {
				if pkt.BurstID != desc.Seq {
					t.Fatalf("packet %d burst id = %d", i, pkt.BurstID)
				}
				if pkt.FragmentIndex != uint16(i) {
					t.Fatalf("packet %d index = %d", i, pkt.FragmentIndex)
				}
				if pkt.FragmentCount != uint16(tc.wantCount) {
					t.Fatalf("packet %d count = %d", i, pkt.FragmentCount)
				}
				if i < len(packets)-1 && len(pkt.Payload) != tc.maxPayload {
					t.Fatalf("packet %d payload = %d, want %d", i, len(pkt.Payload), tc.maxPayload)
				}
				total += len(pkt.Payload)
			}
			if lastLen := len(packets[len(packets)-1].Payload); lastLen != tc.wantLast {
				t.Fatalf("last payload = %d, want %d", lastLen, tc.wantLast)
			}
			if total != int(tc.size) {
				t.Fatalf("payload sum = %d, want %d", total, tc.size)
			}
		})
	}
}

func TestFragmentRejectsInvalidBursts(t *testing.T) {
	var invalid *InvalidBurstError

	_, err := Fragment(trace.BurstDescriptor{SizeBytes: 0}, 1400)
	if !errors.As(err, &invalid) {
		t.Fatalf("zero size err = %v, want InvalidBurstError", err)
	}

	_, err = Fragment(trace.BurstDescriptor{SizeBytes: 100}, 0)
	if !errors.As(err, &invalid) {
		t.Fatalf("zero payload size err = %v, want InvalidBurstError", err)
	}

	// 100 MB at 1-byte fragments would exceed the uint16 fragment counter
	_, err = Fragment(trace.BurstDescriptor{SizeBytes: 100 << 20}, 1)
	if !errors.As(err, &invalid) {
		t.Fatalf("overflow err = %v, want InvalidBurstError", err)
	}
}
