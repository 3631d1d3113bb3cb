// Package sender turns a trace of burst descriptors into paced UDP
// datagrams: wake at each burst's scheduled offset, fragment it, and spread
// the fragments over a bounded slice of the gap to the next burst.
package sender

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/burstwire"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

type Config struct {
	RemoteAddr *net.UDPAddr

	// MaxFragmentSize bounds each fragment's payload bytes.
	MaxFragmentSize int

	// BurstSpread is the fraction of the inter-burst gap over which a
	// burst's fragments are spaced. Must stay below 1 so the whole burst
	// lands strictly before the next one is due.
	BurstSpread float64
}

// Hooks lets callers observe the emit loop. Both are optional and run on the
// scheduling goroutine.
type Hooks struct {
	OnBurst      func(desc trace.BurstDescriptor, wake time.Time)
	OnPacketSent func(pkt *burstwire.FragmentPacket)
}

// TxStats is a point-in-time view of sender counters.
type TxStats struct {
	BurstsSent  uint64
	PacketsSent uint64
	BytesSent   uint64
	SendErrors  uint64
	LateWakes   uint64
}

type Sender struct {
	pc    net.PacketConn
	cfg   Config
	hooks Hooks
	runID uuid.UUID

	mu    sync.Mutex
	stats TxStats
}

func New(pc net.PacketConn, cfg Config, hooks Hooks) *Sender {
	if cfg.MaxFragmentSize <= 0 {
		cfg.MaxFragmentSize = 1400
	}
	if cfg.BurstSpread <= 0 || cfg.BurstSpread >= 1 {
		cfg.BurstSpread = 0.5
	}
	return &Sender{
		pc:    pc,
		cfg:   cfg,
		hooks: hooks,
		runID: uuid.New(),
	}
}

// RunID identifies this sender run in logs.
func (s *Sender) RunID() uuid.UUID {
	return s.runID
}

func (s *Sender) Stats() TxStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run drives the schedule until the trace is exhausted or ctx is cancelled.
// Wake times are computed from the run's start against the original schedule,
// so one slow burst never shifts the ones after it.
func (s *Sender) Run(ctx context.Context, src trace.Source) error {
	if s.cfg.RemoteAddr == nil {
		return errors.New("remote addr required")
	}

	cur, err := src.Next()
	if errors.Is(err, trace.ErrTraceExhausted) {
		return nil
	}
	if err != nil {
		return err
	}

	internal.Info("sender run starting", internal.Fields{
		internal.FieldRun:  s.runID.String(),
		internal.FieldAddr: s.cfg.RemoteAddr.String(),
	})

	start := time.Now()
	buf := make([]byte, burstwire.HeaderLen+s.cfg.MaxFragmentSize)

	for {
		nxt, nerr := src.Next()
		if nerr != nil && !errors.Is(nerr, trace.ErrTraceExhausted) {
			return nerr
		}

		gap := time.Duration(0)
		if nerr == nil {
			gap = nxt.ScheduledAt - cur.ScheduledAt
		}

		if err := s.emitBurst(ctx, start, cur, gap, buf); err != nil {
			return err
		}

		if nerr != nil {
			return nil
		}
		cur = nxt
	}
}

func (s *Sender) emitBurst(ctx context.Context, start time.Time, desc trace.BurstDescriptor, gap time.Duration, buf []byte) error {
	target := start.Add(desc.ScheduledAt)
	if err := sleepUntil(ctx, target); err != nil {
		return err
	}

	wake := time.Now()
	if late := wake.Sub(target); late > 0 {
		s.mu.Lock()
		s.stats.LateWakes++
		s.mu.Unlock()
		internal.Debug("burst wake overran schedule", internal.Fields{
			internal.FieldBurst: desc.Seq,
			internal.FieldDelay: late.String(),
		})
	}
	if s.hooks.OnBurst != nil {
		s.hooks.OnBurst(desc, wake)
	}

	packets, err := Fragment(desc, s.cfg.MaxFragmentSize)
	if err != nil {
		return err
	}

	// Fragment pacing targets are absolute too: the i-th fragment goes out
	// at wake + i*spacing, spacing chosen so the burst fits inside
	// BurstSpread of the gap.
	var spacing time.Duration
	if gap > 0 && len(packets) > 1 {
		budget := time.Duration(float64(gap) * s.cfg.BurstSpread)
		spacing = budget / time.Duration(len(packets))
	}

	sent := 0
	for i := range packets {
		if spacing > 0 && i > 0 {
			if err := sleepUntil(ctx, wake.Add(time.Duration(i)*spacing)); err != nil {
				return err
			}
		}
		if s.sendPacket(&packets[i], buf) {
			sent++
		}
	}

	s.mu.Lock()
	s.stats.BurstsSent++
	s.mu.Unlock()

	internal.Debug("burst sent", internal.Fields{
		internal.FieldRun:       s.runID.String(),
		internal.FieldBurst:     desc.Seq,
		internal.FieldFragments: sent,
		internal.FieldBytes:     desc.SizeBytes,
	})
	return nil
}

// sendPacket reports whether the datagram left the socket. A failed send is
// logged and skipped; later fragments of the same burst still go out.
func (s *Sender) sendPacket(pkt *burstwire.FragmentPacket, buf []byte) bool {
	pkt.SendTime = time.Now()
	n, err := pkt.Encode(buf)
	if err != nil {
		s.countSendError(pkt, err)
		return false
	}
	if _, err := s.pc.WriteTo(buf[:n], s.cfg.RemoteAddr); err != nil {
		s.countSendError(pkt, err)
		return false
	}

	s.mu.Lock()
	s.stats.PacketsSent++
	s.stats.BytesSent += uint64(len(pkt.Payload))
	s.mu.Unlock()

	if s.hooks.OnPacketSent != nil {
		s.hooks.OnPacketSent(pkt)
	}
	return true
}

func (s *Sender) countSendError(pkt *burstwire.FragmentPacket, err error) {
	s.mu.Lock()
	s.stats.SendErrors++
	s.mu.Unlock()
	internal.Warn("fragment send failed", internal.Fields{
		internal.FieldBurst:    pkt.BurstID,
		internal.FieldFragment: pkt.FragmentIndex,
		internal.FieldError:    err.Error(),
	})
}

func sleepUntil(ctx context.Context, target time.Time) error {
	wait := time.Until(target)
	if wait <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
