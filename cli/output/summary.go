// Package output renders run summaries for the CLI using pterm primitives,
// keeping presentation out of the core packages.
package output

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"

	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/sender"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/stats"
)

// RenderSummary prints the receiver's final aggregate snapshot.
func RenderSummary(s stats.Summary) {
	rows := pterm.TableData{
		{"Metric", "Value"},
		{"Bursts observed", fmt.Sprintf("%d", s.BurstsObserved)},
		{"Completed", fmt.Sprintf("%d", s.BurstsCompleted)},
		{"Timed out", fmt.Sprintf("%d", s.BurstsTimedOut)},
		{"Fragments received", fmt.Sprintf("%d / %d", s.FragmentsReceived, s.FragmentsExpected)},
		{"Stray fragments", fmt.Sprintf("%d", s.StrayFragments)},
		{"Duplicate fragments", fmt.Sprintf("%d", s.DuplicateFragments)},
		{"Loss rate", fmt.Sprintf("%.4f", s.LossRate)},
		{"Mean burst delay", formatDuration(s.MeanDelay)},
		{"Inter-burst jitter", formatDuration(s.InterBurstJitter)},
		{"Throughput", fmt.Sprintf("%.2f Mbit/s", s.ThroughputBps*8/1e6)},
		{"Elapsed", formatDuration(s.Elapsed)},
	}
	pterm.DefaultSection.Println("Receiver summary")
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// RenderTxStats prints the sender's final counters.
func RenderTxStats(s sender.TxStats) {
	rows := pterm.TableData{
		{"Metric", "Value"},
		{"Bursts sent", fmt.Sprintf("%d", s.BurstsSent)},
		{"Packets sent", fmt.Sprintf("%d", s.PacketsSent)},
		{"Payload bytes", fmt.Sprintf("%d", s.BytesSent)},
		{"Send errors", fmt.Sprintf("%d", s.SendErrors)},
		{"Late wakes", fmt.Sprintf("%d", s.LateWakes)},
	}
	pterm.DefaultSection.Println("Sender summary")
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

// TraceInfo describes a validated trace file.
type TraceInfo struct {
	Path      string
	Bursts    int
	Duration  time.Duration
	TotalSize uint64
	MinSize   uint32
	MaxSize   uint32
	MeanRate  float64
}

// RenderTraceInfo prints the shape of a recorded trace.
func RenderTraceInfo(info TraceInfo) {
	rows := pterm.TableData{
		{"Metric", "Value"},
		{"Trace", info.Path},
		{"Bursts", fmt.Sprintf("%d", info.Bursts)},
		{"Duration", formatDuration(info.Duration)},
		{"Total payload", fmt.Sprintf("%d B", info.TotalSize)},
		{"Burst size min/max", fmt.Sprintf("%d / %d B", info.MinSize, info.MaxSize)},
		{"Mean rate", fmt.Sprintf("%.2f Mbit/s", info.MeanRate/1e6)},
	}
	pterm.Success.Println("trace is well formed")
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	return d.Round(time.Microsecond).String()
}
