package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"shadekit/internal/diag"
	"shadekit/internal/shader"
)

func TestReadUIMode(t *testing.T) {
	tests := []struct {
		in   string
		want uiMode
		ok   bool
	}{
		{"", uiModeAuto, true},
		{" ON ", uiModeOn, true},
		{"off", uiModeOff, true},
		{"sometimes", "", false},
	}
	for _, tt := range tests {
		got, err := readUIMode(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("readUIMode(%q) = %q, %v", tt.in, got, err)
		}
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Fatalf("explicit modes ignored")
	}
}

func TestPrintDiagnosticsWithoutColor(t *testing.T) {
	bag := diag.NewBag(2)
	rep := diag.BagReporter{Bag: bag}
	diag.ReportError(rep, diag.SceneBadLink, diag.Subject{Shader: "a"}, "unknown node").Emit()
	diag.ReportWarning(rep, diag.SceneBadValue, diag.Subject{Shader: "b"}, "bad value").Emit()

	var buf bytes.Buffer
	printDiagnostics(&buf, bag, false)
	out := buf.String()
	if !strings.Contains(out, "ERROR ") || !strings.Contains(out, "WARNING ") {
		t.Fatalf("output = %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colour codes with colour disabled: %q", out)
	}
	if !strings.Contains(out, "stopped after 2") {
		t.Fatalf("full bag not flagged: %q", out)
	}
}

func TestCountFailed(t *testing.T) {
	ok := shader.Report{States: [4]string{"valid", "clean", "clean", "clean"}}
	bad := shader.Report{States: [4]string{"valid", "failed", "clean", "clean"}}
	broken := shader.Report{Error: "boom"}
	if n := countFailed([]shader.Report{ok, bad, broken}); n != 2 {
		t.Fatalf("failed = %d, want 2", n)
	}
}

const testScene = `
[[shader]]
name = "glow"

  [[shader.node]]
  name = "em"
  kind = "emission"

  [[shader.link]]
  from = "em.Emission"
  to = "output.Surface"
`

func newTestRoot() *cobra.Command {
	root := &cobra.Command{Use: "shadekit"}
	flags := root.PersistentFlags()
	flags.String("color", "off", "")
	flags.Bool("quiet", true, "")
	flags.Bool("timings", false, "")
	flags.Int("max-diagnostics", 100, "")
	flags.String("trace", "", "")
	flags.String("trace-level", "off", "")
	flags.String("trace-mode", "stream", "")
	flags.Int("trace-ring-size", 16, "")
	flags.Duration("trace-heartbeat", 0, "")
	flags.String("cpu-profile", "", "")
	flags.String("mem-profile", "", "")
	flags.String("runtime-trace", "", "")
	root.AddCommand(compileCmd)
	return root
}

func TestCompileCommandEmitsTable(t *testing.T) {
	dir := t.TempDir()
	scenePath := filepath.Join(dir, "scene.toml")
	if err := os.WriteFile(scenePath, []byte(testScene), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "shadekit.toml"), []byte("[osl]\ncache_dir = \".cache\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tablePath := filepath.Join(dir, "table.msgpack")

	root := newTestRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"compile", "--ui=off", "--report=json", "--emit", tablePath, scenePath})
	if err := root.Execute(); err != nil {
		t.Fatalf("compile: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), `"name": "glow"`) {
		t.Fatalf("report missing: %s", out.String())
	}

	f, err := os.Open(tablePath)
	if err != nil {
		t.Fatalf("open table: %v", err)
	}
	defer f.Close()
	tbl, err := shader.ReadDeviceTable(f)
	if err != nil {
		t.Fatalf("read table: %v", err)
	}
	if len(tbl.Names) != 1 || tbl.Names[0] != "glow" || tbl.Backend != "svm" {
		t.Fatalf("table = %+v", tbl)
	}
}
