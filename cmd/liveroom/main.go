package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "liveroom",
		Short:         "Real-time rooms for live classroom sessions, chat and whiteboards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to config.yaml (default: ./config.yaml or $LIVEROOM_CONFIG_DEFAULT_PATH)")

	root.AddCommand(newServeCmd(), newTokenCmd(), newChatCmd(), newSmokeCmd())
	return root
}
