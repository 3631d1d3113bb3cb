package receiver

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/sender"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/stats"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

// dropConn drops every n-th outgoing datagram while pretending the send
// succeeded, simulating transport loss.
type dropConn struct {
	net.PacketConn
	every int64
	count int64
}

func (c *dropConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	n := atomic.AddInt64(&c.count, 1)
	if n%c.every == 0 {
		return len(p), nil
	}
	return c.PacketConn.WriteTo(p, addr)
}

func runScenario(t *testing.T, lossy bool) stats.Summary {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen receiver: %v", err)
	}
	defer rc.Close()

	sc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen sender: %v", err)
	}
	defer sc.Close()

	nominal := time.Second / 60
	collector := stats.NewCollector(nominal)

	rcv := New(rc, Config{
		ReassemblyTimeout: 100 * time.Millisecond,
	}, collector)

	rcvCtx, rcvCancel := context.WithCancel(ctx)
	rcvDone := make(chan error, 1)
	go func() {
		rcvDone <- rcv.Run(rcvCtx)
	}()

	model, err := trace.NewNormalModel(trace.NormalConfig{
		FrameRate:  60,
		SizeMean:   50000,
		SizeStddev: 0,
		Seed:       1,
	})
	if err != nil {
		t.Fatalf("NewNormalModel: %v", err)
	}
	src := trace.NewSynthetic(model, 10, 0)

	var senderConn net.PacketConn = sc
	if lossy {
		senderConn = &dropConn{PacketConn: sc, every: 3}
	}
	snd := sender.New(senderConn, sender.Config{
		RemoteAddr:      rc.LocalAddr().(*net.UDPAddr),
		MaxFragmentSize: 1400,
		BurstSpread:     0.5,
	}, sender.Hooks{})

	if err := snd.Run(ctx, src); err != nil {
		t.Fatalf("sender run: %v", err)
	}

	// give in-flight datagrams time to land and partial bursts time to
	// hit the reassembly timeout
	deadline := time.After(2 * time.Second)
	for {
		if collector.Snapshot().BurstsObserved == 10 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d bursts observed", collector.Snapshot().BurstsObserved)
		case <-time.After(20 * time.Millisecond):
		}
	}

	rcvCancel()
	if err := <-rcvDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("receiver run: %v", err)
	}
	return collector.Snapshot()
}

func TestEndToEndZeroLoss(t *testing.T) {
	s := runScenario(t, false)

	if s.BurstsCompleted != 10 || s.BurstsTimedOut != 0 {
		t.Fatalf("completed/timed out = %d/%d, want 10/0", s.BurstsCompleted, s.BurstsTimedOut)
	}
	// 10 bursts of ceil(50000/1400) = 36 fragments
	if s.FragmentsReceived != 360 || s.FragmentsExpected != 360 {
		t.Fatalf("fragments = %d/%d, want 360/360", s.FragmentsReceived, s.FragmentsExpected)
	}
	if s.LossRate != 0 {
		t.Fatalf("LossRate = %v, want 0", s.LossRate)
	}
	if s.BytesReceived != 500000 {
		t.Fatalf("BytesReceived = %d, want 500000", s.BytesReceived)
	}
	// fragments are paced inside the burst, so first-to-last arrival is
	// non-zero but must stay under the inter-burst interval
	if s.MeanDelay <= 0 || s.MeanDelay >= time.Second/60 {
		t.Fatalf("Mean burst delay = %v", s.MeanDelay)
	}
}

func TestEndToEndEveryThirdPacketDropped(t *testing.T) {
	s := runScenario(t, true)

	if s.BurstsObserved != 10 {
		t.Fatalf("observed = %d, want 10", s.BurstsObserved)
	}
	// every burst spans 36 fragments, so each one loses a third of them
	if s.BurstsTimedOut != 10 || s.BurstsCompleted != 0 {
		t.Fatalf("completed/timed out = %d/%d, want 0/10", s.BurstsCompleted, s.BurstsTimedOut)
	}
	if s.FragmentsReceived >= s.FragmentsExpected {
		t.Fatalf("fragments = %d/%d, expected losses", s.FragmentsReceived, s.FragmentsExpected)
	}
	if s.LossRate <= 0 {
		t.Fatalf("LossRate = %v, want > 0", s.LossRate)
	}
}
