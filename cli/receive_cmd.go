package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/akhila-s-rao/bursty-traffic-generator/cli/output"
	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/receiver"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/stats"
)

type receiveOpts struct {
	configPath  string
	listenAddr  string
	timeoutMs   int
	outcomeLog  string
	metricsAddr string
	frameRate   float64
}

func ReceiveCommand() *cobra.Command {
	var opts receiveOpts

	cmd := &cobra.Command{
		Use:     "receive",
		Aliases: []string{"rx", "recv"},
		Short:   "Reassemble incoming bursts and report delay, jitter and loss",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := internal.LoadReceiverConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = opts.listenAddr
			}
			if cmd.Flags().Changed("reassembly-timeout-ms") {
				cfg.ReassemblyTimeoutMs = opts.timeoutMs
			}
			if cmd.Flags().Changed("outcome-log") {
				cfg.OutcomeLog = opts.outcomeLog
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = opts.metricsAddr
			}

			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}

			var nominal time.Duration
			if opts.frameRate > 0 {
				nominal = time.Duration(float64(time.Second) / opts.frameRate)
			}
			collector := stats.NewCollector(nominal)

			if cfg.OutcomeLog != "" {
				f, err := os.OpenFile(cfg.OutcomeLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return err
				}
				defer f.Close()
				collector.SetLogWriter(f)
			}

			if cfg.MetricsAddr != "" {
				startMetricsServer(ctx, cfg.MetricsAddr, collector)
			}

			pc, err := net.ListenPacket("udp", cfg.ListenAddr)
			if err != nil {
				return err
			}
			defer pc.Close()

			rcv := receiver.New(pc, receiver.Config{
				ReassemblyTimeout: time.Duration(cfg.ReassemblyTimeoutMs) * time.Millisecond,
				ReadBufferSize:    cfg.ReadBufferSize,
			}, collector)

			runErr := rcv.Run(ctx)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			output.RenderSummary(collector.Snapshot())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to receiver config file (TOML)")
	cmd.Flags().StringVar(&opts.listenAddr, "listen", "", "UDP listen address host:port")
	cmd.Flags().IntVar(&opts.timeoutMs, "reassembly-timeout-ms", 0, "Per-burst reassembly timeout")
	cmd.Flags().StringVar(&opts.outcomeLog, "outcome-log", "", "Append per-burst outcomes to this file (JSON lines)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().Float64Var(&opts.frameRate, "frame-rate", 0, "Nominal sender frame rate, anchors the jitter estimate")
	return cmd
}

func startMetricsServer(ctx context.Context, addr string, collector *stats.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		internal.Info("metrics server listening", internal.Fields{
			internal.FieldAddr: addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			internal.Warn("metrics server stopped", internal.Fields{
				internal.FieldError: err.Error(),
			})
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
