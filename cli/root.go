package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bursty",
		Short: "bursty generates and measures VR-style burst traffic over UDP",
		Long: `bursty replays recorded traces or samples statistical traffic models to
produce frame-style bursts, fragments them into paced UDP datagrams, and on
the receiving side reassembles bursts and reports per-burst delay, jitter and
loss.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(SendCommand())
	rootCmd.AddCommand(ReceiveCommand())
	rootCmd.AddCommand(TraceCommand())
	return rootCmd
}
