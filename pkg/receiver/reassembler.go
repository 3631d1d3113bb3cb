// Package receiver reassembles bursts from fragments arriving over an
// unreliable datagram channel and reports each burst's fate exactly once:
// completed when every fragment lands, timed out otherwise.
package receiver

import (
	"math"
	"time"

	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/burstwire"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/stats"
)

// Sink consumes reassembly results. *stats.Collector satisfies it.
type Sink interface {
	Observe(stats.BurstOutcome)
	AddStray()
	AddDuplicate()
}

type assembly struct {
	burstID       uint64
	fragmentCount uint16
	received      map[uint16]struct{}
	bytes         int

	firstArrival time.Time
	lastArrival  time.Time

	// Welford accumulation over inter-fragment arrival gaps
	gapCount uint64
	gapMean  float64
	gapM2    float64
}

func (a *assembly) record(idx uint16, payloadLen int, now time.Time) {
	if !a.lastArrival.IsZero() {
		sample := float64(now.Sub(a.lastArrival))
		a.gapCount++
		delta := sample - a.gapMean
		a.gapMean += delta / float64(a.gapCount)
		a.gapM2 += delta * (sample - a.gapMean)
	}
	a.received[idx] = struct{}{}
	a.bytes += payloadLen
	a.lastArrival = now
}

func (a *assembly) jitter() time.Duration {
	if a.gapCount < 2 {
		return 0
	}
	return time.Duration(math.Sqrt(a.gapM2 / float64(a.gapCount-1)))
}

// Reassembler is the receiver-side state machine. It is not safe for
// concurrent use; the receive loop owns it.
type Reassembler struct {
	timeout   time.Duration
	retention time.Duration

	open      map[uint64]*assembly
	closedIDs map[uint64]struct{}
	deadlines deadlineHeap

	sink Sink
}

// NewReassembler builds a reassembler whose assemblies live at most timeout
// past their first fragment. Markers for closed bursts are retained twice
// that long so late fragments are recognized as stray instead of seeding a
// fresh assembly.
func NewReassembler(timeout time.Duration, sink Sink) *Reassembler {
	return &Reassembler{
		timeout:   timeout,
		retention: 2 * timeout,
		open:      make(map[uint64]*assembly),
		closedIDs: make(map[uint64]struct{}),
		sink:      sink,
	}
}

// OnDatagram feeds one received datagram into the state machine. Malformed
// datagrams are counted as stray and dropped.
func (r *Reassembler) OnDatagram(data []byte, now time.Time) {
	var pkt burstwire.FragmentPacket
	if _, err := pkt.Decode(data); err != nil {
		r.sink.AddStray()
		internal.Debug("dropping malformed datagram", internal.Fields{
			internal.FieldBytes: len(data),
			internal.FieldError: err.Error(),
		})
		return
	}
	r.onPacket(&pkt, now)
}

func (r *Reassembler) onPacket(pkt *burstwire.FragmentPacket, now time.Time) {
	if _, closed := r.closedIDs[pkt.BurstID]; closed {
		// Late fragment for a burst already decided. The outcome is
		// immutable, so this never reopens the assembly.
		r.sink.AddStray()
		return
	}

	a, ok := r.open[pkt.BurstID]
	if !ok {
		a = &assembly{
			burstID:       pkt.BurstID,
			fragmentCount: pkt.FragmentCount,
			received:      make(map[uint16]struct{}, pkt.FragmentCount),
			firstArrival:  now,
		}
		r.open[pkt.BurstID] = a
		r.deadlines.push(deadlineEntry{at: now.Add(r.timeout), burstID: pkt.BurstID})
	}

	if pkt.FragmentCount != a.fragmentCount {
		r.sink.AddStray()
		return
	}
	if _, dup := a.received[pkt.FragmentIndex]; dup {
		r.sink.AddDuplicate()
		return
	}

	a.record(pkt.FragmentIndex, len(pkt.Payload), now)

	if len(a.received) == int(a.fragmentCount) {
		r.close(a, now, true)
	}
}

// NextDeadline reports the earliest pending assembly timeout or marker
// purge, letting the receive loop bound its socket wait.
func (r *Reassembler) NextDeadline() (time.Time, bool) {
	e, ok := r.deadlines.peek()
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Expire pops every deadline at or before now: open assemblies time out and
// emit partial outcomes, closed-burst markers are forgotten.
func (r *Reassembler) Expire(now time.Time) {
	for {
		e, ok := r.deadlines.peek()
		if !ok || e.at.After(now) {
			return
		}
		r.deadlines.pop()

		if e.purge {
			delete(r.closedIDs, e.burstID)
			continue
		}
		if a, open := r.open[e.burstID]; open {
			r.close(a, now, false)
		}
	}
}

// Flush closes every open assembly as timed out. Called on shutdown so no
// pending burst goes unreported.
func (r *Reassembler) Flush(now time.Time) {
	for _, a := range r.open {
		r.close(a, now, false)
	}
}

// Open reports the number of in-progress assemblies.
func (r *Reassembler) Open() int {
	return len(r.open)
}

func (r *Reassembler) close(a *assembly, now time.Time, completed bool) {
	delete(r.open, a.burstID)
	r.closedIDs[a.burstID] = struct{}{}
	r.deadlines.push(deadlineEntry{at: now.Add(r.retention), burstID: a.burstID, purge: true})

	last := a.lastArrival
	if last.IsZero() {
		last = a.firstArrival
	}
	r.sink.Observe(stats.BurstOutcome{
		BurstID:           a.burstID,
		Completed:         completed,
		FragmentsReceived: uint16(len(a.received)),
		FragmentsExpected: a.fragmentCount,
		BytesReceived:     a.bytes,
		FirstArrival:      a.firstArrival,
		LastArrival:       last,
		CompletionDelay:   last.Sub(a.firstArrival),
		FragmentJitter:    a.jitter(),
	})
}
