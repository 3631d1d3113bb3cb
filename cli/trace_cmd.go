package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/akhila-s-rao/bursty-traffic-generator/cli/output"
	"github.com/akhila-s-rao/bursty-traffic-generator/internal"
	"github.com/akhila-s-rao/bursty-traffic-generator/pkg/trace"
)

func TraceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Generate and inspect recorded burst traces",
	}
	cmd.AddCommand(TraceGenerate(), TraceValidate())
	return cmd
}

func TraceGenerate() *cobra.Command {
	var (
		configPath string
		outPath    string
		bursts     int
	)

	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"gen"},
		Short:   "Sample a traffic model into a replayable trace file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadSenderConfig(configPath)
			if err != nil {
				return err
			}
			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}
			if bursts <= 0 {
				return fmt.Errorf("bursts must be positive, got %d", bursts)
			}

			model, err := buildModel(cfg)
			if err != nil {
				return err
			}
			src := trace.NewSynthetic(model, bursts, 0)

			descs := make([]trace.BurstDescriptor, 0, bursts)
			for {
				desc, err := src.Next()
				if errors.Is(err, trace.ErrTraceExhausted) {
					break
				}
				if err != nil {
					return err
				}
				descs = append(descs, desc)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := trace.WriteFile(f, descs); err != nil {
				return err
			}

			internal.Info("trace written", internal.Fields{
				internal.FieldTrace: outPath,
				"bursts":            len(descs),
				internal.FieldSeed:  cfg.Seed,
			})
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to sender config file (TOML)")
	cmd.Flags().StringVar(&outPath, "out", "trace.csv", "Output trace file")
	cmd.Flags().IntVar(&bursts, "bursts", 600, "Number of bursts to sample")
	return cmd
}

func TraceValidate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <trace-file>",
		Short: "Check a recorded trace and print its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := trace.LoadFile(args[0])
			if err != nil {
				return err
			}

			var total uint64
			minSize, maxSize := ^uint32(0), uint32(0)
			for {
				desc, err := fs.Next()
				if errors.Is(err, trace.ErrTraceExhausted) {
					break
				}
				if err != nil {
					return err
				}
				total += uint64(desc.SizeBytes)
				if desc.SizeBytes < minSize {
					minSize = desc.SizeBytes
				}
				if desc.SizeBytes > maxSize {
					maxSize = desc.SizeBytes
				}
			}

			duration := fs.Duration()
			var rateBps float64
			if duration > 0 {
				rateBps = float64(total) * 8 / duration.Seconds()
			}
			output.RenderTraceInfo(output.TraceInfo{
				Path:      args[0],
				Bursts:    fs.Len(),
				Duration:  duration,
				TotalSize: total,
				MinSize:   minSize,
				MaxSize:   maxSize,
				MeanRate:  rateBps,
			})
			return nil
		},
	}
	return cmd
}
