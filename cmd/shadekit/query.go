package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shadekit/internal/osl"
	"shadekit/internal/scene"
)

var queryCmd = &cobra.Command{
	Use:   "query <file.oso|file.osl|name>",
	Short: "Show the parameters a compiled shader program declares",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().String("format", "text", "output format (text|json)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return fmt.Errorf("unsupported format %q (must be text or json)", format)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := scene.LoadNearestConfig(cwd)
	if err != nil {
		return err
	}

	loader := osl.NewLoader(
		osl.WithSearchPath(cfg.OSL.SearchPath...),
		osl.WithCompileFunc(osl.ExecCompiler(cfg.OSL.Compiler, cfg.OSL.SearchPath...)))
	info, err := loader.LoadFile(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	printQuery(out, info)
	return nil
}

func printQuery(out io.Writer, info *osl.ShaderInfo) {
	q := info.Query
	fmt.Fprintf(out, "%s %s\n", q.ShaderType, q.ShaderName)
	for _, p := range q.Params {
		dir := "in "
		if p.IsOutput {
			dir = "out"
		}
		typ := p.Type
		switch {
		case p.VarLenArray:
			typ += "[]"
		case p.ArrayLen > 0:
			typ += fmt.Sprintf("[%d]", p.ArrayLen)
		}
		fmt.Fprintf(out, "  %s %-16s %s%s\n", dir, typ, p.Name, defaultOf(p))
	}
	var flags []string
	if info.HasEmission {
		flags = append(flags, "emission")
	}
	if info.HasTransparent {
		flags = append(flags, "transparent")
	}
	if info.HasBSSRDF {
		flags = append(flags, "bssrdf")
	}
	if len(flags) > 0 {
		fmt.Fprintf(out, "  closures: %s\n", strings.Join(flags, ", "))
	}
	for _, line := range q.Skipped {
		fmt.Fprintf(out, "  skipped: %s\n", line)
	}
}

func defaultOf(p osl.Param) string {
	if !p.ValidDefault {
		return ""
	}
	var parts []string
	for _, f := range p.Floats {
		parts = append(parts, fmt.Sprint(f))
	}
	for _, i := range p.Ints {
		parts = append(parts, fmt.Sprint(i))
	}
	for _, s := range p.Strings {
		parts = append(parts, fmt.Sprintf("%q", s))
	}
	if len(parts) == 0 {
		return ""
	}
	return " = " + strings.Join(parts, " ")
}
