// Package stats aggregates per-burst outcomes into running summaries and
// exposes them through a Prometheus registry and an append-only outcome log.
package stats

import (
	"encoding/json"
	"io"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultNamespace = "bursty"
	subsystemBursts  = "bursts"
)

// BurstOutcome is the terminal record of one burst at the receiver. Outcomes
// are append-only: once emitted they are never revised.
type BurstOutcome struct {
	BurstID           uint64        `json:"burst_id"`
	Completed         bool          `json:"completed"`
	FragmentsReceived uint16        `json:"fragments_received"`
	FragmentsExpected uint16        `json:"fragments_expected"`
	BytesReceived     int           `json:"bytes_received"`
	FirstArrival      time.Time     `json:"first_arrival"`
	LastArrival       time.Time     `json:"last_arrival"`
	CompletionDelay   time.Duration `json:"completion_delay_ns"`
	FragmentJitter    time.Duration `json:"fragment_jitter_ns"`
}

// Summary is a point-in-time aggregate over all observed outcomes.
type Summary struct {
	BurstsObserved     uint64
	BurstsCompleted    uint64
	BurstsTimedOut     uint64
	FragmentsReceived  uint64
	FragmentsExpected  uint64
	BytesReceived      uint64
	StrayFragments     uint64
	DuplicateFragments uint64
	LossRate           float64
	MeanDelay          time.Duration
	InterBurstJitter   time.Duration
	ThroughputBps      float64
	Elapsed            time.Duration
}

// Collector consumes the outcome stream. Nominal, when non-zero, is the
// schedule's inter-burst interval and anchors the jitter estimate.
type Collector struct {
	mu        sync.RWMutex
	nominal   time.Duration
	registry  *prometheus.Registry
	logMu     sync.Mutex
	logEnc    *json.Encoder
	startTime time.Time
	lastTime  time.Time

	bursts     uint64
	completed  uint64
	timedOut   uint64
	fragsRecv  uint64
	fragsWant  uint64
	bytesRecv  uint64
	strays     uint64
	duplicates uint64

	lossRatioSum float64
	delaySum     time.Duration

	// Welford accumulation over (inter-arrival - nominal)
	lastFirstArrival time.Time
	gapCount         uint64
	gapMean          float64
	gapM2            float64
}

func NewCollector(nominal time.Duration) *Collector {
	c := &Collector{
		nominal:  nominal,
		registry: prometheus.NewRegistry(),
	}
	c.registerMetrics()
	return c
}

// Registry returns the prometheus registry managed by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetLogWriter enables the durable per-burst log. Each outcome is appended
// as one JSON object per line.
func (c *Collector) SetLogWriter(w io.Writer) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if w == nil {
		c.logEnc = nil
		return
	}
	c.logEnc = json.NewEncoder(w)
}

// Observe folds one outcome into the running aggregates and appends it to
// the outcome log when one is configured.
func (c *Collector) Observe(o BurstOutcome) {
	c.mu.Lock()
	if c.startTime.IsZero() {
		c.startTime = o.FirstArrival
	}
	if o.LastArrival.After(c.lastTime) {
		c.lastTime = o.LastArrival
	}

	c.bursts++
	if o.Completed {
		c.completed++
	} else {
		c.timedOut++
	}
	c.fragsRecv += uint64(o.FragmentsReceived)
	c.fragsWant += uint64(o.FragmentsExpected)
	c.bytesRecv += uint64(o.BytesReceived)

	if o.FragmentsExpected > 0 {
		c.lossRatioSum += 1 - float64(o.FragmentsReceived)/float64(o.FragmentsExpected)
	}
	c.delaySum += o.CompletionDelay

	if !c.lastFirstArrival.IsZero() {
		gap := o.FirstArrival.Sub(c.lastFirstArrival)
		sample := float64(gap - c.nominal)
		c.gapCount++
		delta := sample - c.gapMean
		c.gapMean += delta / float64(c.gapCount)
		c.gapM2 += delta * (sample - c.gapMean)
	}
	c.lastFirstArrival = o.FirstArrival
	c.mu.Unlock()

	c.appendLog(o)
}

// AddStray counts datagrams that matched no open assembly: malformed
// arrivals and fragments of bursts already closed.
func (c *Collector) AddStray() {
	c.mu.Lock()
	c.strays++
	c.mu.Unlock()
}

// AddDuplicate counts repeated deliveries of a fragment already recorded.
func (c *Collector) AddDuplicate() {
	c.mu.Lock()
	c.duplicates++
	c.mu.Unlock()
}

// Snapshot returns current aggregates.
func (c *Collector) Snapshot() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.buildSummaryLocked()
}

func (c *Collector) buildSummaryLocked() Summary {
	s := Summary{
		BurstsObserved:     c.bursts,
		BurstsCompleted:    c.completed,
		BurstsTimedOut:     c.timedOut,
		FragmentsReceived:  c.fragsRecv,
		FragmentsExpected:  c.fragsWant,
		BytesReceived:      c.bytesRecv,
		StrayFragments:     c.strays,
		DuplicateFragments: c.duplicates,
	}
	if c.bursts > 0 {
		s.LossRate = c.lossRatioSum / float64(c.bursts)
		s.MeanDelay = c.delaySum / time.Duration(c.bursts)
	}
	if c.gapCount > 1 {
		variance := c.gapM2 / float64(c.gapCount-1)
		s.InterBurstJitter = time.Duration(math.Sqrt(variance))
	}
	if !c.startTime.IsZero() && c.lastTime.After(c.startTime) {
		s.Elapsed = c.lastTime.Sub(c.startTime)
		s.ThroughputBps = float64(c.bytesRecv) / s.Elapsed.Seconds()
	}
	return s
}

func (c *Collector) appendLog(o BurstOutcome) {
	c.logMu.Lock()
	defer c.logMu.Unlock()
	if c.logEnc == nil {
		return
	}
	if err := c.logEnc.Encode(o); err != nil {
		// Outcome logging is best effort; the in-memory aggregates stay
		// authoritative.
		c.logEnc = nil
	}
}

func (c *Collector) registerMetrics() {
	makeGauge := func(name, help string, valueFn func(Summary) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: defaultNamespace,
			Subsystem: subsystemBursts,
			Name:      name,
			Help:      help,
		}, func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return valueFn(c.buildSummaryLocked())
		})
	}

	makeCounter := func(name, help string, valueFn func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: defaultNamespace,
			Subsystem: subsystemBursts,
			Name:      name,
			Help:      help,
		}, valueFn)
	}

	c.registry.MustRegister(makeGauge(
		"loss_rate",
		"Fragment loss rate averaged over observed bursts.",
		func(s Summary) float64 { return s.LossRate },
	))
	c.registry.MustRegister(makeGauge(
		"mean_delay_milliseconds",
		"Mean first-to-last fragment arrival delay per burst.",
		func(s Summary) float64 { return float64(s.MeanDelay) / float64(time.Millisecond) },
	))
	c.registry.MustRegister(makeGauge(
		"inter_burst_jitter_milliseconds",
		"Standard deviation of burst inter-arrival versus the nominal schedule.",
		func(s Summary) float64 { return float64(s.InterBurstJitter) / float64(time.Millisecond) },
	))
	c.registry.MustRegister(makeGauge(
		"throughput_bytes_per_second",
		"Payload bytes received per second since the first arrival.",
		func(s Summary) float64 { return s.ThroughputBps },
	))

	c.registry.MustRegister(makeCounter(
		"completed_total",
		"Bursts for which every fragment arrived before the reassembly timeout.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.completed)
		},
	))
	c.registry.MustRegister(makeCounter(
		"timed_out_total",
		"Bursts closed by the reassembly timeout with fragments missing.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.timedOut)
		},
	))
	c.registry.MustRegister(makeCounter(
		"fragments_received_total",
		"Unique fragments accepted into assemblies.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.fragsRecv)
		},
	))
	c.registry.MustRegister(makeCounter(
		"fragments_stray_total",
		"Datagrams discarded: malformed or addressed to closed bursts.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.strays)
		},
	))
	c.registry.MustRegister(makeCounter(
		"fragments_duplicate_total",
		"Fragments delivered more than once.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.duplicates)
		},
	))
	c.registry.MustRegister(makeCounter(
		"bytes_received_total",
		"Total payload bytes accepted into assemblies.",
		func() float64 {
			c.mu.RLock()
			defer c.mu.RUnlock()
			return float64(c.bytesRecv)
		},
	))
}
