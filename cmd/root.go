package cmd

import (
	"log/slog"
	"os"

	"github.com/0w0mewo/localsendgs/cmd/peer"
	"github.com/0w0mewo/localsendgs/cmd/recv"
	"github.com/0w0mewo/localsendgs/cmd/scan"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "localsendgs",
	Short: "LocalSend compatible receiver",
	Long:  "Receive files from LocalSend devices on the local network",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		slog.Error("Fail to execute", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(scan.Cmd)
	rootCmd.AddCommand(recv.Cmd)
	rootCmd.AddCommand(peer.Cmd)
}
