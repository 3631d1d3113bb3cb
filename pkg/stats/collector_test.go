package stats

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func outcomeAt(id uint64, first time.Time, completed bool, recv, want uint16) BurstOutcome {
	return BurstOutcome{
		BurstID:           id,
		Completed:         completed,
		FragmentsReceived: recv,
		FragmentsExpected: want,
		BytesReceived:     int(recv) * 1400,
		FirstArrival:      first,
		LastArrival:       first.Add(5 * time.Millisecond),
		CompletionDelay:   5 * time.Millisecond,
	}
}

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector(10 * time.Millisecond)
	base := time.Now()

	c.Observe(outcomeAt(0, base, true, 4, 4))
	c.Observe(outcomeAt(1, base.Add(10*time.Millisecond), true, 4, 4))
	c.Observe(outcomeAt(2, base.Add(20*time.Millisecond), false, 2, 4))
	c.AddStray()
	c.AddDuplicate()
	c.AddDuplicate()

	s := c.Snapshot()
	if s.BurstsObserved != 3 || s.BurstsCompleted != 2 || s.BurstsTimedOut != 1 {
		t.Fatalf("counts = %d/%d/%d", s.BurstsObserved, s.BurstsCompleted, s.BurstsTimedOut)
	}
	if s.FragmentsReceived != 10 || s.FragmentsExpected != 12 {
		t.Fatalf("fragments = %d/%d", s.FragmentsReceived, s.FragmentsExpected)
	}
	if s.StrayFragments != 1 || s.DuplicateFragments != 2 {
		t.Fatalf("stray/dup = %d/%d", s.StrayFragments, s.DuplicateFragments)
	}

	// per-burst loss ratios 0, 0, 0.5 averaged
	if got, want := s.LossRate, 0.5/3; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("LossRate = %v, want %v", got, want)
	}
	if s.MeanDelay != 5*time.Millisecond {
		t.Fatalf("MeanDelay = %v", s.MeanDelay)
	}
	// arrivals land exactly on the nominal schedule
	if s.InterBurstJitter != 0 {
		t.Fatalf("InterBurstJitter = %v, want 0", s.InterBurstJitter)
	}
}

func TestCollectorJitter(t *testing.T) {
	c := NewCollector(10 * time.Millisecond)
	base := time.Now()

	// gaps of 10ms and 20ms: deviations 0 and 10ms, sample stddev ~7.07ms
	c.Observe(outcomeAt(0, base, true, 1, 1))
	c.Observe(outcomeAt(1, base.Add(10*time.Millisecond), true, 1, 1))
	c.Observe(outcomeAt(2, base.Add(30*time.Millisecond), true, 1, 1))

	got := c.Snapshot().InterBurstJitter
	want := 7071 * time.Microsecond
	if got < want-50*time.Microsecond || got > want+50*time.Microsecond {
		t.Fatalf("InterBurstJitter = %v, want ~%v", got, want)
	}
}

func TestCollectorOutcomeLog(t *testing.T) {
	c := NewCollector(0)
	var buf bytes.Buffer
	c.SetLogWriter(&buf)

	base := time.Now()
	c.Observe(outcomeAt(0, base, true, 4, 4))
	c.Observe(outcomeAt(1, base.Add(10*time.Millisecond), false, 1, 4))

	scanner := bufio.NewScanner(&buf)
	var lines []BurstOutcome
	for scanner.Scan() {
		var o BurstOutcome
		if err := json.Unmarshal(scanner.Bytes(), &o); err != nil {
			t.Fatalf("bad log line %q: %v", scanner.Text(), err)
		}
		lines = append(lines, o)
	}
	if len(lines) != 2 {
		t.Fatalf("log lines = %d, want 2", len(lines))
	}
	if lines[0].BurstID != 0 || !lines[0].Completed {
		t.Fatalf("line 0 = %+v", lines[0])
	}
	if lines[1].BurstID != 1 || lines[1].Completed || lines[1].FragmentsReceived != 1 {
		t.Fatalf("line 1 = %+v", lines[1])
	}
}

func TestCollectorPrometheusRegistry(t *testing.T) {
	c := NewCollector(0)
	c.Observe(outcomeAt(0, time.Now(), true, 4, 4))

	families, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"bursty_bursts_completed_total",
		"bursty_bursts_timed_out_total",
		"bursty_bursts_loss_rate",
		"bursty_bursts_fragments_received_total",
	} {
		if !found[name] {
			t.Fatalf("metric %s not registered (have %v)", name, found)
		}
	}
}
