// Command corectl drives corert's memory, scheduler, and I/O subsystems
// from the command line: benchmarks, scenario replays, and a long-running
// server mode exposing Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "corectl",
		Short: "corert - host memory, task scheduler, and async I/O engine",
		Long:  "corectl drives the corert runtime: benchmark its subsystems, replay canonical task-graph scenarios, or run it as a long-lived server exposing metrics.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file (optional, defaults apply otherwise)")

	rootCmd.AddCommand(
		benchCmd(),
		runScenarioCmd(),
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the corectl version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("corectl dev")
			return nil
		},
	}
}
