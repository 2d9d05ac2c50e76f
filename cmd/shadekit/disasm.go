package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"

	"github.com/spf13/cobra"

	"shadekit/internal/graph"
	"shadekit/internal/osl"
	"shadekit/internal/svm"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <scene.toml>",
	Short: "Print the compiled programs of a scene",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisasm,
}

func init() {
	disasmCmd.Flags().String("backend", "", "svm or osl (overrides shadekit.toml)")
	disasmCmd.Flags().Int("stack-size", 0, "SVM stack size in floats (1..255)")
	disasmCmd.Flags().StringSlice("shader", nil, "only print these shaders")
}

func runDisasm(cmd *cobra.Command, args []string) error {
	cleanup, err := instrument(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	only, _ := cmd.Flags().GetStringSlice("shader")
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	s, err := openSession(cmd, args[0])
	if err != nil {
		return err
	}
	shaders, err := s.loadScene(ctx, args[0])
	if err != nil {
		s.backend.Close()
		return err
	}
	m := s.newManager(nil)
	defer m.Close()
	err = m.HostUpdate(ctx, shaders)
	printDiagnostics(cmd.ErrOrStderr(), s.bag, s.out.color)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, sh := range shaders {
		if len(only) > 0 && !slices.Contains(only, sh.Name) {
			continue
		}
		fmt.Fprintf(out, "shader %s (%s)\n", sh.Name, sh.Caps())
		if p := sh.Program(); p != nil {
			if err := svm.Disassemble(out, p); err != nil {
				return err
			}
		}
		for _, c := range graph.Contexts {
			if g := sh.Group(c); g != nil {
				printGroup(out, c, g)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printGroup(out io.Writer, c graph.Context, g *osl.Group) {
	fmt.Fprintf(out, "%s: group %s\n", c, g.Name)
	for _, l := range g.Layers {
		fmt.Fprintf(out, "  %-12s %-28s %s\n", l.Usage, l.Shader, l.ID)
		for _, b := range l.Params {
			fmt.Fprintf(out, "    param %s\n", b.Name)
		}
	}
	for _, conn := range g.Connections {
		fmt.Fprintf(out, "  connect %s.%s -> %s.%s\n", conn.FromLayer, conn.FromParam, conn.ToLayer, conn.ToParam)
	}
}
