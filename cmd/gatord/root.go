package main

import (
	"github.com/spf13/cobra"

	"github.com/ARM-software/gator-sub005/internal/config"
)

// newRootCommand builds the cobra command tree: the root command is
// daemon mode, and "agent-perf" is the hidden dispatch target the daemon
// re-execs itself into (spec.md §6.3), mirroring the teacher's
// cmd/system-probe command-tree layering while trimmed to this core's
// concerns.
func newRootCommand() *cobra.Command {
	sess := &config.Session{}
	var metricsAddr string
	var captureDir string
	var liveAddr string

	root := &cobra.Command{
		Use:   "gatord",
		Short: "ARM performance-monitoring capture daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sess.Validate(); err != nil {
				return err
			}
			return runDaemon(cmd.Context(), sess, daemonOptions{
				metricsAddr: metricsAddr,
				captureDir:  captureDir,
				liveAddr:    liveAddr,
			})
		},
	}
	sess.BindFlags(root.Flags())
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	root.Flags().StringVar(&captureDir, "capture-dir", "", "local capture directory (empty streams live instead)")
	root.Flags().StringVar(&liveAddr, "live-addr", "127.0.0.1:8080", "host:port to stream a live capture to, when --capture-dir is not set")

	root.AddCommand(&cobra.Command{
		Use:    "agent-perf",
		Short:  "internal: run as the re-exec'd perf agent",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgentPerf()
		},
	})

	return root
}
