// Package trace produces ordered sequences of burst descriptors, either by
// replaying a recorded trace file or by sampling a statistical traffic model.
package trace

import (
	"errors"
	"fmt"
	"time"
)

// BurstDescriptor is one frame-equivalent unit of traffic to transmit.
// ScheduledAt is the offset from run start; descriptors from any Source are
// strictly increasing in ScheduledAt.
type BurstDescriptor struct {
	Seq         uint64
	ScheduledAt time.Duration
	SizeBytes   uint32
}

// ErrTraceExhausted signals the end of a finite trace.
var ErrTraceExhausted = errors.New("trace exhausted")

// MalformedTraceError reports a recorded trace that cannot be replayed:
// non-monotonic offsets, non-positive sizes, or unparseable records.
type MalformedTraceError struct {
	Path   string
	Record int
	Reason string
}

func (e *MalformedTraceError) Error() string {
	return fmt.Sprintf("malformed trace %s record %d: %s", e.Path, e.Record, e.Reason)
}

// Source yields burst descriptors one at a time. Next returns
// ErrTraceExhausted once the sequence ends.
type Source interface {
	Next() (BurstDescriptor, error)
}
