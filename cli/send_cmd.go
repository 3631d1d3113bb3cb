package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/akhila-s-rao/bursty-traffic-generator/cli/output"
	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/sender"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

type sendOpts struct {
	configPath string
	remoteAddr string
	traceFile  string
	model      string
	vrApp      string
	frameRate  float64
	rateMbps   float64
	sizeMean   float64
	sizeStddev float64
	fragSize   int
	spread     float64
	seed       int64
	maxBursts  int
	durationMs int
}

func SendCommand() *cobra.Command {
	var opts sendOpts

	cmd := &cobra.Command{
		Use:     "send",
		Aliases: []string{"tx"},
		Short:   "Emit paced burst traffic towards a receiver",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := internal.LoadSenderConfig(opts.configPath)
			if err != nil {
				return err
			}
			applySendFlags(cmd, &opts, cfg)

			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}

			src, err := buildSource(cfg)
			if err != nil {
				return err
			}

			remote, err := net.ResolveUDPAddr("udp", cfg.RemoteAddr)
			if err != nil {
				return fmt.Errorf("resolve remote addr %q: %w", cfg.RemoteAddr, err)
			}
			pc, err := net.ListenPacket("udp", ":0")
			if err != nil {
				return err
			}
			defer pc.Close()

			snd := sender.New(pc, sender.Config{
				RemoteAddr:      remote,
				MaxFragmentSize: cfg.MaxFragmentSize,
				BurstSpread:     cfg.BurstSpread,
			}, sender.Hooks{})

			runErr := snd.Run(ctx, src)
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}

			output.RenderTxStats(snd.Stats())
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to sender config file (TOML)")
	cmd.Flags().StringVar(&opts.remoteAddr, "remote", "", "Receiver address host:port")
	cmd.Flags().StringVar(&opts.traceFile, "trace", "", "Recorded trace file to replay instead of a model")
	cmd.Flags().StringVar(&opts.model, "model", "", "Traffic model: vr or normal")
	cmd.Flags().StringVar(&opts.vrApp, "vr-app", "", "VR application profile: "+strings.Join(trace.VrApps(), ", "))
	cmd.Flags().Float64Var(&opts.frameRate, "frame-rate", 0, "Frames per second")
	cmd.Flags().Float64Var(&opts.rateMbps, "target-rate-mbps", 0, "Target bitrate for the VR model")
	cmd.Flags().Float64Var(&opts.sizeMean, "size-mean", 0, "Mean burst size in bytes (normal model)")
	cmd.Flags().Float64Var(&opts.sizeStddev, "size-stddev", 0, "Burst size stddev in bytes (normal model)")
	cmd.Flags().IntVar(&opts.fragSize, "fragment-size", 0, "Max fragment payload bytes")
	cmd.Flags().Float64Var(&opts.spread, "burst-spread", 0, "Fraction of the inter-burst gap used for pacing")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Model seed")
	cmd.Flags().IntVar(&opts.maxBursts, "max-bursts", 0, "Stop after this many bursts (0 = unbounded)")
	cmd.Flags().IntVar(&opts.durationMs, "duration-ms", 0, "Stop after this schedule duration (0 = unbounded)")
	return cmd
}

func applySendFlags(cmd *cobra.Command, opts *sendOpts, cfg *internal.SenderConfig) {
	if cmd.Flags().Changed("remote") {
		cfg.RemoteAddr = opts.remoteAddr
	}
	if cmd.Flags().Changed("trace") {
		cfg.TraceFile = opts.traceFile
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = opts.model
	}
	if cmd.Flags().Changed("vr-app") {
		cfg.VrApp = opts.vrApp
	}
	if cmd.Flags().Changed("frame-rate") {
		cfg.FrameRate = opts.frameRate
	}
	if cmd.Flags().Changed("target-rate-mbps") {
		cfg.TargetRateMbps = opts.rateMbps
	}
	if cmd.Flags().Changed("size-mean") {
		cfg.SizeMean = opts.sizeMean
	}
	if cmd.Flags().Changed("size-stddev") {
		cfg.SizeStddev = opts.sizeStddev
	}
	if cmd.Flags().Changed("fragment-size") {
		cfg.MaxFragmentSize = opts.fragSize
	}
	if cmd.Flags().Changed("burst-spread") {
		cfg.BurstSpread = opts.spread
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = opts.seed
	}
	if cmd.Flags().Changed("max-bursts") {
		cfg.MaxBursts = opts.maxBursts
	}
	if cmd.Flags().Changed("duration-ms") {
		cfg.DurationMs = opts.durationMs
	}
}

// buildSource picks the trace source: a recorded file when one is
// configured, otherwise a synthetic source over the configured model.
func buildSource(cfg *internal.SenderConfig) (trace.Source, error) {
	if cfg.TraceFile != "" {
		fs, err := trace.LoadFile(cfg.TraceFile)
		if err != nil {
			return nil, err
		}
		internal.Info("trace loaded", internal.Fields{
			internal.FieldTrace: cfg.TraceFile,
			"bursts":            fs.Len(),
			"duration":          fs.Duration().String(),
		})
		return fs, nil
	}

	model, err := buildModel(cfg)
	if err != nil {
		return nil, err
	}
	internal.Info("synthetic trace configured", internal.Fields{
		"model":            cfg.Model,
		internal.FieldSeed: cfg.Seed,
	})
	return trace.NewSynthetic(model, cfg.MaxBursts, time.Duration(cfg.DurationMs)*time.Millisecond), nil
}

func buildModel(cfg *internal.SenderConfig) (trace.Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Model)) {
	case "vr", "":
		return trace.NewVrModel(trace.VrConfig{
			App:            cfg.VrApp,
			FrameRate:      cfg.FrameRate,
			TargetRateMbps: cfg.TargetRateMbps,
			Seed:           cfg.Seed,
		})
	case "normal":
		return trace.NewNormalModel(trace.NormalConfig{
			FrameRate:      cfg.FrameRate,
			SizeMean:       cfg.SizeMean,
			SizeStddev:     cfg.SizeStddev,
			SizeMin:        cfg.SizeMin,
			IntervalJitter: cfg.IntervalJitter,
			Seed:           cfg.Seed,
		})
	default:
		return nil, fmt.Errorf("unknown model %q (want vr or normal)", cfg.Model)
	}
}
