package receiver

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/stats"
)

type Config struct {
	// ReassemblyTimeout bounds how long an assembly may wait for missing
	// fragments after its first one arrives.
	ReassemblyTimeout time.Duration

	ReadBufferSize int

	// PollInterval caps the socket wait so cancellation and timeouts are
	// observed even when no deadline is pending.
	PollInterval time.Duration
}

// Receiver runs the single-threaded receive loop: block on datagram arrival
// bounded by the earliest reassembly deadline, feed the reassembler, expire
// what is due.
type Receiver struct {
	pc        net.PacketConn
	cfg       Config
	asm       *Reassembler
	collector *stats.Collector
	runID     uuid.UUID
}

func New(pc net.PacketConn, cfg Config, collector *stats.Collector) *Receiver {
	if cfg.ReassemblyTimeout <= 0 {
		cfg.ReassemblyTimeout = 100 * time.Millisecond
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 64 * 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Receiver{
		pc:        pc,
		cfg:       cfg,
		asm:       NewReassembler(cfg.ReassemblyTimeout, collector),
		collector: collector,
		runID:     uuid.New(),
	}
}

// RunID identifies this receiver run in logs.
func (r *Receiver) RunID() uuid.UUID {
	return r.runID
}

// Run loops until ctx is cancelled or the transport fails fatally. Open
// assemblies are flushed as timed out before returning.
func (r *Receiver) Run(ctx context.Context) error {
	internal.Info("receiver run starting", internal.Fields{
		internal.FieldRun:  r.runID.String(),
		internal.FieldAddr: r.pc.LocalAddr().String(),
	})

	buf := make([]byte, r.cfg.ReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			r.asm.Flush(time.Now())
			return ctx.Err()
		default:
		}

		now := time.Now()
		r.asm.Expire(now)

		wait := r.cfg.PollInterval
		if deadline, ok := r.asm.NextDeadline(); ok {
			if until := deadline.Sub(now); until < wait {
				wait = until
			}
			if wait < time.Millisecond {
				wait = time.Millisecond
			}
		}
		_ = r.pc.SetReadDeadline(now.Add(wait))

		n, _, err := r.pc.ReadFrom(buf)
		arrival := time.Now()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if isTransient(err) {
				internal.Warn("transient receive error", internal.Fields{
					internal.FieldError: err.Error(),
				})
				continue
			}
			r.asm.Flush(arrival)
			return err
		}

		r.asm.OnDatagram(buf[:n], arrival)
		r.asm.Expire(arrival)
	}
}

func isTransient(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Temporary()
}
