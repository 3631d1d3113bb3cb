package sender

import (
	"fmt"

	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/burstwire"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

// InvalidBurstError reports a burst that cannot be fragmented. It is a
// configuration-level failure and callers should abort the run.
type InvalidBurstError struct {
	BurstID uint64
	Reason  string
}

func (e *InvalidBurstError) Error() string {
	return fmt.Sprintf("invalid burst %d: %s", e.BurstID, e.Reason)
}

// Fragment splits a burst into transmission-ordered packets of at most
// maxPayload payload bytes each. Every fragment carries maxPayload bytes
// except the last, which carries the remainder. Payloads slice one shared
// zero-filled buffer sized to the burst.
func Fragment(desc trace.BurstDescriptor, maxPayload int) ([]burstwire.FragmentPacket, error) {
	if desc.SizeBytes == 0 {
		return nil, &InvalidBurstError{BurstID: desc.Seq, Reason: "zero size"}
	}
	if maxPayload <= 0 {
		return nil, &InvalidBurstError{BurstID: desc.Seq, Reason: "fragment payload size must be positive"}
	}
	if maxPayload > burstwire.MaxPayload {
		return nil, &InvalidBurstError{BurstID: desc.Seq, Reason: fmt.Sprintf("fragment payload size %d exceeds datagram limit", maxPayload)}
	}

	size := int(desc.SizeBytes)
	count := (size + maxPayload - 1) / maxPayload
	if count > 0xffff {
		return nil, &InvalidBurstError{BurstID: desc.Seq, Reason: fmt.Sprintf("burst needs %d fragments, limit is 65535", count)}
	}

	body := make([]byte, size)
	packets := make([]burstwire.FragmentPacket, 0, count)
	for offset := 0; offset < size; offset += maxPayload {
		end := offset + maxPayload
		if end > size {
			end = size
		}
		packets = append(packets, burstwire.FragmentPacket{
			BurstID:       desc.Seq,
			FragmentIndex: uint16(len(packets)),
			FragmentCount: uint16(count),
			Payload:       body[offset:end],
		})
	}
	return packets, nil
}
