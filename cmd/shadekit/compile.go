package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"shadekit/internal/cache"
	"shadekit/internal/diag"
	"shadekit/internal/osl"
	"shadekit/internal/scene"
	"shadekit/internal/shader"
	"shadekit/internal/svm"
)

var errCompileFailed = errors.New("compilation failed")

var compileCmd = &cobra.Command{
	Use:   "compile <scene.toml>",
	Short: "Compile every shader of a scene",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().String("backend", "", "svm or osl (overrides shadekit.toml)")
	compileCmd.Flags().Int("jobs", 0, "parallel shader compilations (0 = GOMAXPROCS)")
	compileCmd.Flags().Int("stack-size", 0, "SVM stack size in floats (1..255)")
	compileCmd.Flags().String("report", "", "print per-shader reports (text|json)")
	compileCmd.Flags().Lookup("report").NoOptDefVal = "text"
	compileCmd.Flags().String("emit", "", "write the device table to file (msgpack)")
	compileCmd.Flags().String("ui", "auto", "progress view (auto|on|off)")
}

// session holds what the compile and disasm commands share: the
// configuration, the diagnostics sink and the back end.
type session struct {
	cfg      *scene.Config
	out      outputOptions
	bag      *diag.Bag
	reporter diag.Reporter
	backend  shader.Backend
	programs *osl.Loader
}

func openSession(cmd *cobra.Command, scenePath string) (*session, error) {
	out, err := readOutputOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := scene.LoadNearestConfig(filepath.Dir(scenePath))
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cmd, cfg); err != nil {
		return nil, err
	}

	bag := diag.NewBag(out.maxDiagnostics)
	rep := diag.NewLockedReporter(diag.NewDedupReporter(diag.BagReporter{Bag: bag}))
	s := &session{cfg: cfg, out: out, bag: bag, reporter: rep}

	loaderOpts := []osl.LoaderOption{osl.WithLoaderReporter(rep)}
	if disk, err := cache.Open(cfg.OSL.CacheDir); err == nil {
		loaderOpts = append(loaderOpts, osl.WithDiskCache(disk))
	} else if !out.quiet {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: shader cache disabled: %v\n", err)
	}

	switch cfg.Render.Backend {
	case "osl":
		rt := osl.NewRuntime(osl.Config{
			SearchPath: cfg.OSL.SearchPath,
			Compiler:   cfg.OSL.Compiler,
			Loader:     loaderOpts,
		})
		b := shader.NewOSLBackend(rt, osl.WithReporter(rep))
		s.backend, s.programs = b, rt.Loader()
	default:
		loaderOpts = append(loaderOpts,
			osl.WithSearchPath(cfg.OSL.SearchPath...),
			osl.WithCompileFunc(osl.ExecCompiler(cfg.OSL.Compiler, cfg.OSL.SearchPath...)))
		s.backend = shader.NewSVMBackend(svm.WithStackSize(cfg.SVM.StackSize), svm.WithReporter(rep))
		s.programs = osl.NewLoader(loaderOpts...)
	}
	return s, nil
}

func applyOverrides(cmd *cobra.Command, cfg *scene.Config) error {
	flags := cmd.Flags()
	if flags.Lookup("backend") != nil && flags.Changed("backend") {
		v, _ := flags.GetString("backend")
		cfg.Render.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if flags.Lookup("jobs") != nil && flags.Changed("jobs") {
		cfg.Render.Jobs, _ = flags.GetInt("jobs")
	}
	if flags.Lookup("stack-size") != nil && flags.Changed("stack-size") {
		n, _ := flags.GetInt("stack-size")
		if n == 0 {
			return scene.ErrBadStackSize
		}
		cfg.SVM.StackSize = n
	}
	return cfg.Validate()
}

func (s *session) loadScene(ctx context.Context, path string) ([]*shader.Shader, error) {
	l := &scene.Loader{Programs: s.programs, Reporter: s.reporter}
	return l.LoadFile(ctx, path)
}

func (s *session) newManager(sink shader.ProgressSink) *shader.Manager {
	return shader.NewManager(s.backend,
		shader.WithJobs(s.cfg.Render.Jobs),
		shader.WithReporter(s.reporter),
		shader.WithProgress(sink))
}

func runCompile(cmd *cobra.Command, args []string) error {
	cleanup, err := instrument(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	reportFmt, _ := cmd.Flags().GetString("report")
	switch reportFmt {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid --report value %q (expected text|json)", reportFmt)
	}
	emitPath, _ := cmd.Flags().GetString("emit")
	uiFlag, _ := cmd.Flags().GetString("ui")
	mode, err := readUIMode(uiFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	path := args[0]
	s, err := openSession(cmd, path)
	if err != nil {
		return err
	}
	shaders, err := s.loadScene(ctx, path)
	if err != nil {
		s.backend.Close()
		return err
	}

	var (
		tbl     shader.DeviceTable
		reports []shader.Report
	)
	work := func(sink shader.ProgressSink) error {
		m := s.newManager(sink)
		defer m.Close()
		err := m.HostUpdate(ctx, shaders)
		reports = m.Report()
		if err != nil {
			return err
		}
		return m.DeviceUpdate(ctx, &tbl)
	}

	if shouldUseTUI(mode) && !s.out.quiet && reportFmt != "json" {
		names := make([]string, len(shaders))
		for i, sh := range shaders {
			names[i] = sh.Name
		}
		err = runWithUI("compiling "+filepath.Base(path), names, work)
	} else {
		err = work(nil)
	}

	stdout := cmd.OutOrStdout()
	printDiagnostics(cmd.ErrOrStderr(), s.bag, s.out.color)
	if err != nil {
		return err
	}

	if err := printReports(stdout, reports, reportFmt, s.out.timings); err != nil {
		return err
	}
	if emitPath != "" {
		if err := writeTable(emitPath, &tbl); err != nil {
			return err
		}
	}

	failed := countFailed(reports)
	if !s.out.quiet && reportFmt != "json" {
		status := color.New(color.FgGreen)
		if failed > 0 {
			status = color.New(color.FgRed)
		}
		if s.out.color {
			status.EnableColor()
		} else {
			status.DisableColor()
		}
		fmt.Fprintf(stdout, "%s %d of %d shaders compiled with %s\n",
			status.Sprint("done:"), len(reports)-failed, len(shaders), s.backend.Name())
	}
	if failed > 0 || s.bag.HasErrors() {
		return errCompileFailed
	}
	return nil
}

func countFailed(reports []shader.Report) int {
	n := 0
	for _, r := range reports {
		if r.Error != "" || strings.Contains(strings.Join(r.States[:], " "), shader.StateFailed.String()) {
			n++
		}
	}
	return n
}

func printReports(out io.Writer, reports []shader.Report, format string, timings bool) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "text":
		for _, r := range reports {
			fmt.Fprint(out, r.Summary)
			if !strings.HasSuffix(r.Summary, "\n") {
				fmt.Fprintln(out)
			}
		}
	}
	if timings {
		for _, r := range reports {
			fmt.Fprintf(out, "%s %.1f ms\n", r.Name, r.Timings.TotalMS)
			for _, p := range r.Timings.Phases {
				fmt.Fprintf(out, "  %-12s %.1f ms\n", p.Name, p.DurationMS)
			}
		}
	}
	return nil
}

func writeTable(path string, tbl *shader.DeviceTable) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = tbl.WriteTo(f)
	return err
}
