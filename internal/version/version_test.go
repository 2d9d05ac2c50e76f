package version

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestCurrentReflectsOverrides(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "1.2.3"
	info := Current()
	if info.Version != "1.2.3" || info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Fatalf("info = %+v", info)
	}
}

func TestPrettyWithoutColor(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	info := Info{Version: "0.4.1-rc1", GitCommit: "abc123", GoVersion: "go1.25", Platform: "linux/amd64", Backends: []string{"svm"}}
	out := info.Pretty()
	if !strings.HasPrefix(out, "shadekit 0.4.1-rc1\n") {
		t.Fatalf("banner = %q", out)
	}
	if !strings.Contains(out, "abc123") || strings.Contains(out, "built") {
		t.Fatalf("optional fields wrong: %q", out)
	}
}

func TestColorVersionKeepsOddStrings(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	tests := []string{"dev", "1.2", "1.2.3", "1.2.3-dev"}
	for _, v := range tests {
		if got := colorVersion(v); got != v {
			t.Fatalf("colorVersion(%q) = %q", v, got)
		}
	}
}
