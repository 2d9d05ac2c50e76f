package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shadekit/internal/diag"
)

type outputOptions struct {
	color          bool
	quiet          bool
	timings        bool
	maxDiagnostics int
}

func readOutputOptions(cmd *cobra.Command) (outputOptions, error) {
	flags := cmd.Root().PersistentFlags()
	colorFlag, err := flags.GetString("color")
	if err != nil {
		return outputOptions{}, err
	}
	quiet, err := flags.GetBool("quiet")
	if err != nil {
		return outputOptions{}, err
	}
	timings, err := flags.GetBool("timings")
	if err != nil {
		return outputOptions{}, err
	}
	maxDiag, err := flags.GetInt("max-diagnostics")
	if err != nil {
		return outputOptions{}, err
	}
	if maxDiag <= 0 || maxDiag > 0xffff {
		return outputOptions{}, fmt.Errorf("--max-diagnostics must be between 1 and 65535, got %d", maxDiag)
	}
	return outputOptions{color: useColor(colorFlag), quiet: quiet, timings: timings, maxDiagnostics: maxDiag}, nil
}

// printDiagnostics writes the bag in the short format, colouring the
// severity column.
func printDiagnostics(out io.Writer, bag *diag.Bag, useColor bool) {
	text := diag.FormatShort(bag.Items(), true)
	if text == "" {
		return
	}
	for line := range strings.Lines(text) {
		sev, rest, ok := strings.Cut(line, " ")
		if !ok || strings.HasPrefix(line, " ") {
			fmt.Fprint(out, line)
			continue
		}
		fmt.Fprint(out, severityColor(sev, useColor).Sprint(sev), " ", rest)
	}
	if bag.Len() == int(bag.Cap()) {
		fmt.Fprintf(out, "(stopped after %d diagnostics)\n", bag.Len())
	}
}

func severityColor(sev string, enabled bool) *color.Color {
	var c *color.Color
	switch sev {
	case diag.SevError.String():
		c = color.New(color.FgRed, color.Bold)
	case diag.SevWarning.String():
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}
