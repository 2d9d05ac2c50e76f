package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"shadekit/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "shadekit",
	Short:        "Shader graph compiler",
	Long:         `shadekit compiles node-based shader graphs to SVM bytecode or OSL program groups`,
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(disasmCmd)
	rootCmd.AddCommand(versionCmd)

	flags := rootCmd.PersistentFlags()
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "suppress non-essential output")
	flags.Bool("timings", false, "show timing information")
	flags.Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	flags.String("trace", "", "write trace events to file (- for stderr)")
	flags.String("trace-level", "off", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	flags.Int("trace-ring-size", 4096, "events kept in ring mode")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval")

	flags.String("cpu-profile", "", "write a CPU profile to file")
	flags.String("mem-profile", "", "write a heap profile to file")
	flags.String("runtime-trace", "", "write a Go runtime trace to file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
